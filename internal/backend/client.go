package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"callstack/internal/domain"
)

const (
	uploadField     = "file"
	maxResponseSize = 4 << 20
)

// Config describes how to reach the voice-agent backend.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the voice-agent backend. It never retries: a failed upload
// may already have executed a command on the server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

type uploadResponse struct {
	Transcript           *string        `json:"transcript"`
	Intent               *domain.Intent `json:"intent"`
	ActionResult         *string        `json:"action_result"`
	ContextProjectsCount *int           `json:"context_projects_count"`
}

// Upload posts one recording to /transcribe with the given bearer credential.
func (c *Client) Upload(ctx context.Context, audio domain.AudioBlob, cred domain.Credential) (domain.UploadResult, error) {
	body, contentType, err := multipartAudio(audio)
	if err != nil {
		return domain.UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", body)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("build upload request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("uploading recording",
		"request_id", requestID,
		"bytes", len(audio.Data),
		"mime_type", audio.MIMEType,
		"token_prefix", tokenPrefix(cred.AccessToken),
	)

	payload, status, err := c.do(req)
	if err != nil {
		return domain.UploadResult{}, err
	}
	if status < 200 || status >= 300 {
		return domain.UploadResult{}, rejected(status, payload)
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return domain.UploadResult{}, nil
	}
	var decoded uploadResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return domain.UploadResult{}, &domain.BackendRejectedError{
			StatusCode: status,
			Message:    "backend returned an unreadable response",
		}
	}
	return domain.UploadResult{
		Transcript:           decoded.Transcript,
		Intent:               decoded.Intent,
		ActionResult:         decoded.ActionResult,
		ContextProjectsCount: decoded.ContextProjectsCount,
	}, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response: %v", domain.ErrNetworkUnreachable, err)
	}
	return payload, resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, path string, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	payload, status, err := c.do(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return rejected(status, payload)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &domain.BackendRejectedError{StatusCode: status, Message: "backend returned an unreadable response"}
	}
	return nil
}

func multipartAudio(audio domain.AudioBlob) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := audio.Filename
	if filename == "" {
		filename = "audio.webm"
	}
	mimeType := audio.MIMEType
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// rejected extracts the backend's own message from a failure body. FastAPI style
// {"detail": ...} bodies are accepted alongside {"message": ...}.
func rejected(status int, payload []byte) error {
	var body struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(payload, &body); err == nil {
		message = strings.TrimSpace(body.Message)
		if message == "" {
			message = detailMessage(body.Detail)
		}
		if message == "" {
			message = strings.TrimSpace(body.Error)
		}
	}
	if message == "" {
		message = fmt.Sprintf("backend returned HTTP %d", status)
	}
	return &domain.BackendRejectedError{StatusCode: status, Message: message}
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		return strings.TrimSpace(items[0].Msg)
	}
	return ""
}

func tokenPrefix(token string) string {
	if len(token) <= 10 {
		return "***"
	}
	return token[:10] + "..."
}
