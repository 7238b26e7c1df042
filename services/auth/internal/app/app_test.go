package app

import (
	"context"
	"errors"
	"testing"

	"plantatlas/pkg/queue"
	"plantatlas/pkg/store"
)

type stubIdentity struct {
	subjects map[string]string // token -> subject
}

func (s *stubIdentity) Verify(provider, token string) (string, error) {
	if provider != "apple" && provider != "google" {
		return "", ErrUnknownProvider
	}
	subject, ok := s.subjects[token]
	if !ok {
		return "", ErrInvalidIdentityToken
	}
	return subject, nil
}

type stubQueue struct {
	enqueued []string
	err      error
}

func (s *stubQueue) Enqueue(_ context.Context, userID string) (queue.JobStatus, error) {
	if s.err != nil {
		return queue.JobStatus{}, s.err
	}
	s.enqueued = append(s.enqueued, userID)
	return queue.JobStatus{ID: "job-1", UserID: userID, Status: queue.StatusQueued}, nil
}

func (s *stubQueue) GetJob(_ context.Context, jobID string) (queue.JobStatus, bool, error) {
	if jobID != "job-1" || len(s.enqueued) == 0 {
		return queue.JobStatus{}, false, nil
	}
	return queue.JobStatus{ID: "job-1", UserID: s.enqueued[0], Status: queue.StatusQueued}, true, nil
}

func testApp(t *testing.T) (*App, *stubQueue) {
	t.Helper()
	mem := store.NewMemoryStore()
	q := &stubQueue{}
	a, err := New(Config{
		Store:     mem,
		Sessions:  mem,
		Identity:  &stubIdentity{subjects: map[string]string{"tok-good": "subj-1"}},
		Deletions: q,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, q
}

func TestSignInCreatesAccountOnce(t *testing.T) {
	a, _ := testApp(t)

	first, token, err := a.SignIn("apple", "tok-good", "Lina")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if first.ID == "" || token == "" {
		t.Fatalf("missing user or token: %+v %q", first, token)
	}
	if first.Provider != "apple" || first.Nickname != "Lina" {
		t.Fatalf("unexpected user: %+v", first)
	}

	again, _, err := a.SignIn("apple", "tok-good", "ignored")
	if err != nil {
		t.Fatalf("second SignIn: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("returning user got a new account: %q vs %q", again.ID, first.ID)
	}
	if again.Nickname != "Lina" {
		t.Fatalf("nickname overwritten on return: %q", again.Nickname)
	}
}

func TestSignInRejectsBadToken(t *testing.T) {
	a, _ := testApp(t)
	if _, _, err := a.SignIn("apple", "tok-bad", ""); !errors.Is(err, ErrInvalidIdentityToken) {
		t.Fatalf("expected ErrInvalidIdentityToken, got %v", err)
	}
	if _, _, err := a.SignIn("myspace", "tok-good", ""); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if _, _, err := a.SignIn("", "", ""); !errors.Is(err, ErrProviderAndTokenRequired) {
		t.Fatalf("expected ErrProviderAndTokenRequired, got %v", err)
	}
}

func TestUserFromTokenAndLogout(t *testing.T) {
	a, _ := testApp(t)
	user, token, err := a.SignIn("apple", "tok-good", "")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	got, ok := a.UserFromToken(token)
	if !ok || got.ID != user.ID {
		t.Fatalf("UserFromToken: ok=%v got=%+v", ok, got)
	}

	if err := a.Logout(token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := a.UserFromToken(token); ok {
		t.Fatal("token still valid after logout")
	}
}

func TestRequestAccountDeletionEnqueues(t *testing.T) {
	a, q := testApp(t)
	user, token, err := a.SignIn("apple", "tok-good", "")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	job, err := a.RequestAccountDeletion(context.Background(), user, token)
	if err != nil {
		t.Fatalf("RequestAccountDeletion: %v", err)
	}
	if job.ID != "job-1" || job.Status != queue.StatusQueued {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != user.ID {
		t.Fatalf("queue saw %v", q.enqueued)
	}
	if _, ok := a.UserFromToken(token); ok {
		t.Fatal("session must be revoked when deletion is requested")
	}

	got, found, err := a.DeletionStatus(context.Background(), "job-1")
	if err != nil || !found || got.UserID != user.ID {
		t.Fatalf("DeletionStatus: %+v found=%v err=%v", got, found, err)
	}
}
