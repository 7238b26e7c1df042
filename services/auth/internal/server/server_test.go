package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"plantatlas/pkg/queue"
	"plantatlas/pkg/store"
	"plantatlas/services/auth/internal/app"
)

type stubIdentity struct{}

func (stubIdentity) Verify(provider, token string) (string, error) {
	if provider != "apple" {
		return "", app.ErrUnknownProvider
	}
	if token != "tok-good" {
		return "", app.ErrInvalidIdentityToken
	}
	return "subj-1", nil
}

type stubQueue struct{ enqueued []string }

func (s *stubQueue) Enqueue(_ context.Context, userID string) (queue.JobStatus, error) {
	s.enqueued = append(s.enqueued, userID)
	return queue.JobStatus{ID: "job-1", UserID: userID, Status: queue.StatusQueued}, nil
}

func (s *stubQueue) GetJob(_ context.Context, jobID string) (queue.JobStatus, bool, error) {
	if jobID != "job-1" || len(s.enqueued) == 0 {
		return queue.JobStatus{}, false, nil
	}
	return queue.JobStatus{ID: "job-1", UserID: s.enqueued[0], Status: queue.StatusQueued}, true, nil
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mem := store.NewMemoryStore()
	appCore, err := app.New(app.Config{
		Store:     mem,
		Sessions:  mem,
		Identity:  stubIdentity{},
		Deletions: &stubQueue{},
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: appCore}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func signIn(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	body := bytes.NewBufferString(`{"provider":"apple","identityToken":"tok-good"}`)
	resp, err := http.Post(srv.URL+"/auth/token", "application/json", body)
	if err != nil {
		t.Fatalf("POST /auth/token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign in status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Token == "" {
		t.Fatal("empty token")
	}
	return out.Token
}

func doAuthed(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestTokenAndSessionFlow(t *testing.T) {
	srv := testServer(t)
	token := signIn(t, srv)

	resp := doAuthed(t, http.MethodGet, srv.URL+"/auth/session", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session status %d", resp.StatusCode)
	}
	var out struct {
		User struct {
			ID       string `json:"id"`
			Provider string `json:"provider"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.ID == "" || out.User.Provider != "apple" {
		t.Fatalf("unexpected session user: %+v", out.User)
	}
}

func TestTokenRejectsBadIdentity(t *testing.T) {
	srv := testServer(t)
	body := bytes.NewBufferString(`{"provider":"apple","identityToken":"tok-bad"}`)
	resp, err := http.Post(srv.URL+"/auth/token", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error.Code != "invalid_identity" {
		t.Fatalf("unexpected error code %q", out.Error.Code)
	}
}

func TestSessionRequiresToken(t *testing.T) {
	srv := testServer(t)
	resp := doAuthed(t, http.MethodGet, srv.URL+"/auth/session", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	srv := testServer(t)
	token := signIn(t, srv)

	resp := doAuthed(t, http.MethodPost, srv.URL+"/auth/logout", token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", resp.StatusCode)
	}

	resp = doAuthed(t, http.MethodGet, srv.URL+"/auth/session", token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestAccountDeletionAccepted(t *testing.T) {
	srv := testServer(t)
	token := signIn(t, srv)

	resp := doAuthed(t, http.MethodDelete, srv.URL+"/auth/account", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var out struct {
		Job queue.JobStatus `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Job.ID != "job-1" || out.Job.Status != queue.StatusQueued {
		t.Fatalf("unexpected job: %+v", out.Job)
	}
}
