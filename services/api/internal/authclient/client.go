// Package authclient calls the auth service to resolve the user behind a
// session token.
package authclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plantatlas/pkg/domain"
)

// Client is a thin HTTP client for the auth service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the auth service at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Me resolves the user owning the session token. Any non-200 response is
// treated as "not authenticated".
func (c *Client) Me(token string) (domain.User, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return domain.User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.User{}, fmt.Errorf("auth me: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.User{}, fmt.Errorf("auth me: http %d", resp.StatusCode)
	}
	var out struct {
		User domain.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.User{}, fmt.Errorf("auth me: decode: %w", err)
	}
	if out.User.ID == "" {
		return domain.User{}, fmt.Errorf("auth me: empty user")
	}
	return out.User, nil
}
