package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testQueue(t *testing.T) (*RedisJobQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Addr:       mr.Addr(),
		Stream:     "test:deletions",
		Group:      "workers",
		Consumer:   "test",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRedisJobQueue: %v", err)
	}
	return q, mr
}

func TestEnqueueAndGetJob(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == "" || job.UserID != "user-1" || job.Status != StatusQueued {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, found, err := q.GetJob(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("GetJob: found=%v err=%v", found, err)
	}
	if got.Status != StatusQueued || got.UserID != "user-1" {
		t.Fatalf("unexpected stored job: %+v", got)
	}
}

func TestEnqueueRequiresUserID(t *testing.T) {
	q, _ := testQueue(t)
	if _, err := q.Enqueue(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestHandleMessageSuccessMarksDone(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var handled []string
	q.handleMessage(ctx, redis.XMessage{
		ID:     "1-1",
		Values: map[string]any{"job_id": job.ID, "user_id": job.UserID},
	}, func(_ context.Context, j JobStatus) error {
		handled = append(handled, j.UserID)
		return nil
	})

	if len(handled) != 1 || handled[0] != "user-1" {
		t.Fatalf("handler saw %v", handled)
	}
	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("expected done, got %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", got.Attempts)
	}
}

func TestHandleMessageRetriesThenFails(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	boom := errors.New("cascade failed")
	msg := redis.XMessage{ID: "1-1", Values: map[string]any{"job_id": job.ID, "user_id": job.UserID}}

	// First failure requeues.
	q.handleMessage(ctx, msg, func(context.Context, JobStatus) error { return boom })
	got, _, _ := q.GetJob(ctx, job.ID)
	if got.Status != StatusQueued {
		t.Fatalf("after first failure, expected queued, got %q", got.Status)
	}

	// Second failure exhausts maxRetries.
	q.handleMessage(ctx, redis.XMessage{ID: "1-2", Values: msg.Values}, func(context.Context, JobStatus) error { return boom })
	got, _, _ = q.GetJob(ctx, job.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	if got.ErrorMessage != "cascade failed" {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
}

func TestJobStatusExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{Addr: mr.Addr(), JobTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedisJobQueue: %v", err)
	}
	ctx := context.Background()
	job, err := q.Enqueue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, found, _ := q.GetJob(ctx, job.ID); found {
		t.Fatal("job status should expire")
	}
}
