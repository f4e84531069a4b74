package queue

import (
	"time"

	"github.com/mmdatafocus/finrecords_backend/models"
)

// Priority levels for analytics jobs. Call sites use the named constants;
// the concrete integers only matter at the queue boundary where they are
// folded into the ready-set score.
type Priority int

const (
	// PriorityLowBackground is used by the recurring scheduler's pre-warm jobs.
	PriorityLowBackground Priority = 1
	// PriorityMutation is used by invalidation-triggered recomputes.
	PriorityMutation Priority = 5
	// PriorityUserRequested is used by explicit "refresh now" requests.
	PriorityUserRequested Priority = 8
)

// maxPriority bounds the score encoding; priorities above it are clamped.
const maxPriority = 10

// Job types beyond the five concrete views.
const (
	JobTypeAll       = "all"
	JobTypeRecurring = "recurring"
)

// AnalyticsPayload is the wire shape of a queued analytics job.
type AnalyticsPayload struct {
	CompanyId string `json:"companyId"`
	Type      string `json:"type"`
	UserId    string `json:"userId"`
	Priority  int    `json:"priority,omitempty"`
}

func (p AnalyticsPayload) viewType() (models.AnalyticsViewType, error) {
	return models.ParseAnalyticsViewType(p.Type)
}

// Job is the durable record of one queued computation, persisted as JSON
// next to the scheduling sets.
type Job struct {
	ID          string           `json:"id"`
	Queue       string           `json:"queue"`
	Payload     AnalyticsPayload `json:"payload"`
	Priority    Priority         `json:"priority"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"maxAttempts"`
	EnqueuedAt  time.Time        `json:"enqueuedAt"`
	ReadyAt     time.Time        `json:"readyAt"`
	LastError   string           `json:"lastError,omitempty"`
}

// backoffDelay returns the wait before retry attempt n (1-based):
// initial, 2*initial, 4*initial, ...
func backoffDelay(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// readyScore orders the ready set: higher priority pops first, FIFO within
// the same priority. seq is a monotonically increasing counter.
func readyScore(priority Priority, seq int64) float64 {
	p := int(priority)
	if p < 0 {
		p = 0
	}
	if p > maxPriority {
		p = maxPriority
	}
	return float64(maxPriority-p)*1e15 + float64(seq)
}

// nextRunAfter computes the next firing time of a recurring pattern.
// Only the hourly "0 * * * *" pattern is registered today; anything else
// falls back to one interval from now.
func nextRunAfter(pattern string, t time.Time) time.Time {
	if pattern == "0 * * * *" {
		return t.Truncate(time.Hour).Add(time.Hour)
	}
	return t.Add(time.Hour)
}
