package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/finrecords_backend/models"
)

// Refresher recomputes analytics views and repopulates the cache.
// Implemented by the analytics façade.
type Refresher interface {
	RefreshAll(ctx context.Context, companyId string) error
	RefreshView(ctx context.Context, companyId string, view models.AnalyticsViewType) error
}

// ActivityLister reports companies with recent logins. Implemented by the
// cache store's activity tracker.
type ActivityLister interface {
	ActiveCompanyIDs(ctx context.Context) ([]string, error)
}

// Enqueuer is the slice of Queue the recurring discovery step needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload AnalyticsPayload, priority Priority, delay time.Duration) (string, error)
}

const discoveryLockKey = "queue:analytics:recurring:discovery"

// Worker drains the analytics queue with bounded concurrency. A failing job
// propagates into the queue's retry machinery; tenants never see worker
// errors — at worst a view stays cold and is computed on the next read.
type Worker struct {
	Queue     *Queue
	Analytics Refresher
	Activity  ActivityLister
	Enqueuer  Enqueuer
	Locker    *redislock.Client
	Logger    *logrus.Logger

	Concurrency  int
	PollInterval time.Duration
	Stagger      time.Duration
}

func NewWorker(q *Queue, analytics Refresher, activity ActivityLister, locker *redislock.Client, logger *logrus.Logger) *Worker {
	return &Worker{
		Queue:        q,
		Analytics:    analytics,
		Activity:     activity,
		Enqueuer:     q,
		Locker:       locker,
		Logger:       logger,
		Concurrency:  3,
		PollInterval: time.Second,
		Stagger:      100 * time.Millisecond,
	}
}

func (w *Worker) Run(ctx context.Context) {
	for i := 0; i < w.Concurrency; i++ {
		go w.loop(ctx)
	}
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Queue.Dequeue(ctx)
		if err != nil || job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.PollInterval):
			}
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	start := time.Now()
	if err := w.process(ctx, job.Payload); err != nil {
		if w.Logger != nil {
			w.Logger.WithFields(logrus.Fields{
				"module":    "worker",
				"jobId":     job.ID,
				"companyId": job.Payload.CompanyId,
				"type":      job.Payload.Type,
				"attempt":   job.Attempts,
			}).Warn("analytics job failed: " + err.Error())
		}
		w.Queue.Fail(ctx, job, err)
		return
	}
	w.Queue.MarkCompleted(ctx, job)
	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"module":    "worker",
			"jobId":     job.ID,
			"companyId": job.Payload.CompanyId,
			"type":      job.Payload.Type,
			"ms":        time.Since(start).Milliseconds(),
		}).Info("analytics job completed")
	}
}

func (w *Worker) process(ctx context.Context, p AnalyticsPayload) error {
	switch p.Type {
	case JobTypeRecurring:
		return w.processRecurring(ctx)
	case JobTypeAll:
		return w.Analytics.RefreshAll(ctx, p.CompanyId)
	default:
		view, err := p.viewType()
		if err != nil {
			return fmt.Errorf("unknown analytics job type %q", p.Type)
		}
		return w.Analytics.RefreshView(ctx, p.CompanyId, view)
	}
}

// processRecurring is the scheduler's discovery step: find companies active
// in the last 24h and enqueue a low-priority full refresh for each, staggered
// so a fleet of warm-ups does not land on the database at once.
func (w *Worker) processRecurring(ctx context.Context) error {
	if w.Locker != nil {
		lock, err := w.Locker.Obtain(ctx, discoveryLockKey, 5*time.Minute, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				// Another instance is already discovering this tick.
				return nil
			}
			return err
		}
		defer lock.Release(ctx)
	}

	ids, err := w.Activity.ActiveCompanyIDs(ctx)
	if err != nil {
		return err
	}
	for _, companyId := range ids {
		payload := AnalyticsPayload{
			CompanyId: companyId,
			Type:      JobTypeAll,
			UserId:    "system",
			Priority:  int(PriorityLowBackground),
		}
		if _, err := w.Enqueuer.Enqueue(ctx, payload, PriorityLowBackground, 0); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.Stagger):
		}
	}
	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"module":    "worker",
			"companies": len(ids),
		}).Info("recurring analytics discovery completed")
	}
	return nil
}
