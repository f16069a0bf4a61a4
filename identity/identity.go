// Package identity resolves bearer tokens to user accounts against the
// hosted auth service.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnauthenticated is returned when the auth service rejects a token.
var ErrUnauthenticated = errors.New("invalid or expired access token")

const defaultTimeout = 10 * time.Second

// Config contains auth service configuration.
type Config struct {
	BaseURL string // e.g. https://project.supabase.co
	APIKey  string // anon key sent alongside the user token
	Timeout time.Duration
}

// Client verifies access tokens. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// User is the resolved account behind a token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// NewClient creates an auth client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Resolve verifies an access token and returns the account it belongs to.
// Rejected tokens yield ErrUnauthenticated; transport and server failures
// yield ordinary errors so callers can tell outage from bad credentials.
func (c *Client) Resolve(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	default:
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if user.ID == "" {
		return nil, ErrUnauthenticated
	}

	return &user, nil
}
