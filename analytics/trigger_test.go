package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/finrecords_backend/queue"
	"github.com/mmdatafocus/finrecords_backend/utils"
)

type recordedJob struct {
	payload  queue.AnalyticsPayload
	priority queue.Priority
	delay    time.Duration
}

type fakeEnqueuer struct {
	jobs []recordedJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, payload queue.AnalyticsPayload, priority queue.Priority, delay time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, recordedJob{payload, priority, delay})
	return "job-1", nil
}

func TestOnTransactionMutatedInvalidatesThenEnqueues(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(emptyCountingStore())
	enq := &fakeEnqueuer{}
	trigger := NewTrigger(svc, enq, nil)

	if _, err := svc.GetSummary(ctx, "co-1"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	trigger.OnTransactionMutated(ctx, "co-1")

	if len(backend.data) != 0 {
		t.Fatalf("cache should be empty after mutation, has %d keys", len(backend.data))
	}
	if len(enq.jobs) != 1 {
		t.Fatalf("expected one refresh job, got %d", len(enq.jobs))
	}
	job := enq.jobs[0]
	if job.payload.Type != queue.JobTypeAll {
		t.Fatalf("job type = %s, want all", job.payload.Type)
	}
	if job.priority != queue.PriorityMutation {
		t.Fatalf("priority = %d, want mutation priority", job.priority)
	}
	if job.delay != 2*time.Second {
		t.Fatalf("delay = %v, want 2s", job.delay)
	}
	if job.payload.UserId != "system" {
		t.Fatalf("userId = %s, want system fallback", job.payload.UserId)
	}
}

func TestOnTransactionMutatedUsesContextUser(t *testing.T) {
	svc, _ := newTestService(emptyCountingStore())
	enq := &fakeEnqueuer{}
	trigger := NewTrigger(svc, enq, nil)

	ctx := utils.SetUserIdInContext(context.Background(), "u-42")
	trigger.OnTransactionMutated(ctx, "co-1")

	if enq.jobs[0].payload.UserId != "u-42" {
		t.Fatalf("userId = %s, want u-42", enq.jobs[0].payload.UserId)
	}
}

func TestOnTransactionMutatedEnqueueFailureIsSilent(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(emptyCountingStore())
	trigger := NewTrigger(svc, &fakeEnqueuer{err: errors.New("redis down")}, nil)

	if _, err := svc.GetSummary(ctx, "co-1"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	// Must not panic or propagate; invalidation still happens.
	trigger.OnTransactionMutated(ctx, "co-1")
	if len(backend.data) != 0 {
		t.Fatal("invalidation must run even when the enqueue fails")
	}
}

func TestRequestRefreshUnknownCompany(t *testing.T) {
	svc, _ := newTestService(emptyCountingStore())
	trigger := NewTrigger(svc, &fakeEnqueuer{}, nil)

	_, err := trigger.RequestRefresh(context.Background(), "nope", queue.JobTypeAll, "u-1", queue.PriorityUserRequested)
	if !utils.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestRequestRefreshReturnsJobId(t *testing.T) {
	svc, _ := newTestService(emptyCountingStore())
	enq := &fakeEnqueuer{}
	trigger := NewTrigger(svc, enq, nil)

	jobId, err := trigger.RequestRefresh(context.Background(), "co-1", "summary", "u-1", queue.PriorityUserRequested)
	if err != nil {
		t.Fatalf("request refresh: %v", err)
	}
	if jobId != "job-1" {
		t.Fatalf("jobId = %s, want job-1", jobId)
	}
	if enq.jobs[0].priority != queue.PriorityUserRequested {
		t.Fatalf("priority = %d, want user-requested", enq.jobs[0].priority)
	}
	if enq.jobs[0].delay != 0 {
		t.Fatalf("on-demand refresh should not be delayed, got %v", enq.jobs[0].delay)
	}
}
