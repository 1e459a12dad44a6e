package backend

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"callstack/internal/domain"
)

var errMissingUserID = errors.New("user id is required")

// Dashboard fetches the per-user projects and tasks summary.
func (c *Client) Dashboard(ctx context.Context, userID string, token string) (domain.Dashboard, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Dashboard{}, errMissingUserID
	}
	var out domain.Dashboard
	if err := c.getJSON(ctx, "/api/dashboard/"+url.PathEscape(userID), token, &out); err != nil {
		return domain.Dashboard{}, err
	}
	return out, nil
}

// History fetches the per-user call-session list.
func (c *Client) History(ctx context.Context, userID string, token string) ([]domain.CallSession, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errMissingUserID
	}
	var out struct {
		Sessions []domain.CallSession `json:"sessions"`
	}
	if err := c.getJSON(ctx, "/api/call-sessions/"+url.PathEscape(userID), token, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}
