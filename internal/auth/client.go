package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callstack/internal/domain"
)

// Config describes the identity service and where the session is kept.
type Config struct {
	BaseURL     string
	RedirectURL string
	CountryCode string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Store       *Store
	Logger      *slog.Logger
}

// Client is the identity provider: phone OTP and OAuth sign-in, token refresh
// and sign-out against the identity service, with the session kept in Store.
type Client struct {
	baseURL     string
	redirectURL string
	countryCode string
	httpClient  *http.Client
	store       *Store
	logger      *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("auth base URL is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("auth session store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		redirectURL: cfg.RedirectURL,
		countryCode: cfg.CountryCode,
		httpClient:  httpClient,
		store:       cfg.Store,
		logger:      logger,
	}, nil
}

type sessionResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Phone string `json:"phone"`
	} `json:"user"`
}

// CurrentSession returns the locally stored session, or nil when signed out.
func (c *Client) CurrentSession(_ context.Context) (*domain.Session, error) {
	return c.store.Load()
}

// RefreshSession exchanges the stored token for a fresh one and persists it.
func (c *Client) RefreshSession(ctx context.Context) (*domain.Session, error) {
	current, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNoSession
	}

	body := map[string]string{"token": current.AccessToken}
	if current.RefreshToken != "" {
		body["refresh_token"] = current.RefreshToken
	}
	session, err := c.postSession(ctx, "/auth/refresh", body)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if session.Phone == "" {
		session.Phone = current.Phone
	}
	if session.RefreshToken == "" {
		session.RefreshToken = current.RefreshToken
	}
	if err := c.store.Save(*session); err != nil {
		return nil, err
	}
	c.logger.Debug("session refreshed", "user_id", session.UserID, "expires_at", session.ExpiresAt)
	return session, nil
}

// SendCode asks the identity service to text a one-time code to phone.
func (c *Client) SendCode(ctx context.Context, phone string) error {
	normalized, err := NormalizePhone(phone, c.countryCode)
	if err != nil {
		return err
	}
	_, err = c.post(ctx, "/auth/send-code", map[string]string{"phone": normalized}, "")
	return err
}

// VerifyCode signs in with a one-time code and stores the resulting session.
func (c *Client) VerifyCode(ctx context.Context, phone string, code string) (*domain.Session, error) {
	normalized, err := NormalizePhone(phone, c.countryCode)
	if err != nil {
		return nil, err
	}
	otp, err := ValidateOTP(code)
	if err != nil {
		return nil, err
	}
	session, err := c.postSession(ctx, "/auth/verify-code", map[string]string{"phone": normalized, "code": otp})
	if err != nil {
		return nil, err
	}
	if session.Phone == "" {
		session.Phone = normalized
	}
	if err := c.store.Save(*session); err != nil {
		return nil, err
	}
	c.logger.Info("signed in", "user_id", session.UserID)
	return session, nil
}

// OAuthURL is where the user's browser should be sent to sign in with provider.
func (c *Client) OAuthURL(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", errors.New("oauth provider is required")
	}
	target, err := url.Parse(c.baseURL + "/auth/oauth/" + url.PathEscape(provider))
	if err != nil {
		return "", fmt.Errorf("build oauth url: %w", err)
	}
	if c.redirectURL != "" {
		query := target.Query()
		query.Set("redirect_to", c.redirectURL)
		target.RawQuery = query.Encode()
	}
	return target.String(), nil
}

// ExchangeOAuthCode completes an OAuth sign-in and stores the resulting session.
func (c *Client) ExchangeOAuthCode(ctx context.Context, code string) (*domain.Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("oauth code is required")
	}
	session, err := c.postSession(ctx, "/auth/oauth/exchange", map[string]string{"code": code})
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(*session); err != nil {
		return nil, err
	}
	c.logger.Info("signed in with oauth", "user_id", session.UserID)
	return session, nil
}

// SignOut revokes the session remotely when possible and always forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	current, err := c.store.Load()
	if err != nil {
		c.logger.Warn("read session before sign out", "error", err)
	}
	if current != nil {
		if _, err := c.post(ctx, "/auth/logout", nil, current.AccessToken); err != nil {
			c.logger.Warn("remote sign out failed", "error", err)
		}
	}
	return c.store.Clear()
}

func (c *Client) postSession(ctx context.Context, path string, body any) (*domain.Session, error) {
	payload, err := c.post(ctx, path, body, "")
	if err != nil {
		return nil, err
	}

	var decoded sessionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if strings.TrimSpace(decoded.Token) == "" {
		return nil, errors.New("identity service returned no token")
	}

	session := &domain.Session{
		AccessToken:  decoded.Token,
		RefreshToken: decoded.RefreshToken,
		UserID:       decoded.User.ID,
		Phone:        decoded.User.Phone,
	}
	if decoded.ExpiresAt != "" {
		if expiresAt, err := time.Parse(time.RFC3339, decoded.ExpiresAt); err == nil {
			session.ExpiresAt = expiresAt
		}
	}
	if claims, err := ParseClaims(decoded.Token); err == nil {
		if session.UserID == "" {
			session.UserID = claims.UserID
		}
		if session.Phone == "" {
			session.Phone = claims.Phone
		}
		if session.ExpiresAt.IsZero() {
			session.ExpiresAt = claims.Expiry()
		}
	}
	return session, nil
}

func (c *Client) post(ctx context.Context, path string, body any, token string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetworkUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.BackendRejectedError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, payload)}
	}
	return payload, nil
}

func errorMessage(status int, payload []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if msg := strings.TrimSpace(body.Error); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(body.Message); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("identity service returned HTTP %d", status)
}
