package client

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
	"sync"
	"time"

	"plantatlas/pkg/domain"
)

// APIError is a normalized failure from the backend. Any non-2xx response
// becomes one of these; transport failures are wrapped with %w instead.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s, http %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("api: %s (http %d)", e.Message, e.Status)
}

// Gateway implements Backend and SessionAPI over the plantatlas HTTP
// services. It holds the bearer token for the current session; SignIn and
// SignOut swap it atomically so the stores never see a half-updated client.
type Gateway struct {
	apiURL     string
	authURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gateway) { g.httpClient = hc }
}

// WithLogger overrides the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway returns a gateway talking to the api service at apiURL and the
// auth service at authURL.
func NewGateway(apiURL, authURL string, opts ...Option) *Gateway {
	g := &Gateway{
		apiURL:     strings.TrimRight(apiURL, "/"),
		authURL:    strings.TrimRight(authURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetToken attaches a session token to subsequent requests. An empty token
// detaches.
func (g *Gateway) SetToken(token string) {
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
}

// Token returns the currently attached session token, if any.
func (g *Gateway) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

func (g *Gateway) newRequest(ctx context.Context, method, rawURL string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := g.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes a 2xx body into out (when out is non-nil). Error
// bodies are normalized to *APIError regardless of shape.
func (g *Gateway) do(req *http.Request, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil && body.Error.Message != "" {
			apiErr.Code = body.Error.Code
			apiErr.Message = body.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FetchPlants implements Backend.
func (g *Gateway) FetchPlants(ctx context.Context, ownerID string) ([]domain.PlantRecord, error) {
	u := g.apiURL + "/plants"
	if ownerID != "" {
		u += "?owner=" + url.QueryEscape(ownerID)
	}
	req, err := g.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Plants []domain.PlantRecord `json:"plants"`
	}
	if err := g.do(req, &out); err != nil {
		g.logger.Warn("fetch plants failed", "err", err)
		return nil, err
	}
	return out.Plants, nil
}

// CreatePlant implements Backend.
func (g *Gateway) CreatePlant(ctx context.Context, draft PlantDraft) (domain.PlantRecord, error) {
	req, err := g.newRequest(ctx, http.MethodPost, g.apiURL+"/plants", draft)
	if err != nil {
		return domain.PlantRecord{}, err
	}
	var out struct {
		Plant domain.PlantRecord `json:"plant"`
	}
	if err := g.do(req, &out); err != nil {
		g.logger.Warn("create plant failed", "err", err)
		return domain.PlantRecord{}, err
	}
	return out.Plant, nil
}

// UpdatePlant implements Backend.
func (g *Gateway) UpdatePlant(ctx context.Context, id string, patch domain.PlantPatch) error {
	req, err := g.newRequest(ctx, http.MethodPatch, g.apiURL+"/plants/"+url.PathEscape(id), patch)
	if err != nil {
		return err
	}
	if err := g.do(req, nil); err != nil {
		g.logger.Warn("update plant failed", "id", id, "err", err)
		return err
	}
	return nil
}

// DeletePlant implements Backend.
func (g *Gateway) DeletePlant(ctx context.Context, id string) error {
	req, err := g.newRequest(ctx, http.MethodDelete, g.apiURL+"/plants/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if err := g.do(req, nil); err != nil {
		g.logger.Warn("delete plant failed", "id", id, "err", err)
		return err
	}
	return nil
}

// ResolveSignedURLs implements Backend.
func (g *Gateway) ResolveSignedURLs(ctx context.Context, paths []string) ([]string, error) {
	body := struct {
		Paths []string `json:"paths"`
	}{Paths: paths}
	req, err := g.newRequest(ctx, http.MethodPost, g.apiURL+"/storage/sign", body)
	if err != nil {
		return nil, err
	}
	var out struct {
		URLs []string `json:"urls"`
	}
	if err := g.do(req, &out); err != nil {
		g.logger.Warn("sign urls failed", "count", len(paths), "err", err)
		return nil, err
	}
	if len(out.URLs) != len(paths) {
		return nil, fmt.Errorf("sign urls: got %d results for %d paths", len(out.URLs), len(paths))
	}
	return out.URLs, nil
}

// FetchDictionary implements Backend.
func (g *Gateway) FetchDictionary(ctx context.Context) ([]domain.DictionaryEntry, error) {
	req, err := g.newRequest(ctx, http.MethodGet, g.apiURL+"/dictionary", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Entries []domain.DictionaryEntry `json:"entries"`
	}
	if err := g.do(req, &out); err != nil {
		g.logger.Warn("fetch dictionary failed", "err", err)
		return nil, err
	}
	return out.Entries, nil
}

// CheckSession implements SessionAPI.
func (g *Gateway) CheckSession(ctx context.Context) (domain.User, bool, error) {
	if g.Token() == "" {
		return domain.User{}, false, nil
	}
	req, err := g.newRequest(ctx, http.MethodGet, g.authURL+"/auth/session", nil)
	if err != nil {
		return domain.User{}, false, err
	}
	var out struct {
		User domain.User `json:"user"`
	}
	if err := g.do(req, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return out.User, true, nil
}

// SignIn implements SessionAPI. On success the returned session token is
// attached to the gateway for subsequent requests.
func (g *Gateway) SignIn(ctx context.Context, provider, identityToken string) (domain.User, error) {
	body := struct {
		Provider      string `json:"provider"`
		IdentityToken string `json:"identityToken"`
	}{Provider: provider, IdentityToken: identityToken}
	req, err := g.newRequest(ctx, http.MethodPost, g.authURL+"/auth/token", body)
	if err != nil {
		return domain.User{}, err
	}
	var out struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := g.do(req, &out); err != nil {
		g.logger.Warn("sign in failed", "provider", provider, "err", err)
		return domain.User{}, err
	}
	g.SetToken(out.Token)
	return out.User, nil
}

// SignOut implements SessionAPI. The local token is dropped even when the
// backend call fails so the client never stays attached to a dead session.
func (g *Gateway) SignOut(ctx context.Context) error {
	req, err := g.newRequest(ctx, http.MethodPost, g.authURL+"/auth/logout", nil)
	if err != nil {
		g.SetToken("")
		return err
	}
	err = g.do(req, nil)
	g.SetToken("")
	if err != nil {
		g.logger.Warn("sign out failed", "err", err)
	}
	return err
}

// DeleteAccount implements SessionAPI.
func (g *Gateway) DeleteAccount(ctx context.Context) error {
	req, err := g.newRequest(ctx, http.MethodDelete, g.authURL+"/auth/account", nil)
	if err != nil {
		return err
	}
	if err := g.do(req, nil); err != nil {
		g.logger.Warn("delete account failed", "err", err)
		return err
	}
	g.SetToken("")
	return nil
}

var (
	_ Backend    = (*Gateway)(nil)
	_ SessionAPI = (*Gateway)(nil)
)
