package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/finrecords_backend/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue is a durable Redis-backed job queue with delays, priorities and
// exponential-backoff retries. Layout per queue name:
//
//	queue:{name}:job:{id}   JSON job record
//	queue:{name}:delayed    ZSET, score = ready-at unix ms
//	queue:{name}:ready      ZSET, score = priority band + FIFO sequence
//	queue:{name}:seq        INCR counter feeding the FIFO sequence
//	queue:{name}:completed  LIST, newest first, capped
//	queue:{name}:failed     LIST, newest first, capped
//	queue:{name}:recurring  SET of recurring entry names
//	queue:{name}:recurring:{entry}  HASH {pattern, payload, next_run_at}
//
// With a nil Redis client every operation is a no-op, mirroring the
// cache store's degraded mode: jobs are simply never executed and reads
// fall back to synchronous computation.
type Queue struct {
	rdb    *redis.Client
	name   string
	logger *logrus.Logger
	now    func() time.Time

	MaxAttempts      int
	InitialBackoff   time.Duration
	CompletedHistory int
	FailedHistory    int
}

func New(rdb *redis.Client, name string, logger *logrus.Logger) *Queue {
	return &Queue{
		rdb:              rdb,
		name:             name,
		logger:           logger,
		now:              time.Now,
		MaxAttempts:      3,
		InitialBackoff:   2 * time.Second,
		CompletedHistory: 50,
		FailedHistory:    100,
	}
}

func (q *Queue) key(suffix string) string {
	return "queue:" + q.name + ":" + suffix
}

func (q *Queue) jobKey(id string) string {
	return q.key("job:" + id)
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, q.jobKey(job.ID), data, 0).Err()
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	val, err := q.rdb.Get(ctx, q.jobKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Enqueue persists the job and schedules it after the optional delay.
// Returns the job id for 202-style acknowledgments.
func (q *Queue) Enqueue(ctx context.Context, payload AnalyticsPayload, priority Priority, delay time.Duration) (string, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Queue:       q.name,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: q.MaxAttempts,
		EnqueuedAt:  q.now(),
		ReadyAt:     q.now().Add(delay),
	}
	if q.rdb == nil {
		return job.ID, nil
	}
	if err := q.saveJob(ctx, job); err != nil {
		return "", err
	}
	if delay > 0 {
		err := q.rdb.ZAdd(ctx, q.key("delayed"), redis.Z{
			Score:  float64(job.ReadyAt.UnixMilli()),
			Member: job.ID,
		}).Err()
		return job.ID, err
	}
	return job.ID, q.pushReady(ctx, job)
}

func (q *Queue) pushReady(ctx context.Context, job *Job) error {
	seq, err := q.rdb.Incr(ctx, q.key("seq")).Result()
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.key("ready"), redis.Z{
		Score:  readyScore(job.Priority, seq),
		Member: job.ID,
	}).Err()
}

// Dequeue promotes due work and pops the highest-priority ready job.
// Returns nil when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if q.rdb == nil {
		return nil, nil
	}
	q.promote(ctx)

	popped, err := q.rdb.ZPopMin(ctx, q.key("ready"), 1).Result()
	if err != nil || len(popped) == 0 {
		return nil, err
	}
	id, _ := popped[0].Member.(string)
	job, err := q.loadJob(ctx, id)
	if err != nil || job == nil {
		// Orphaned member: record already gone, nothing to run.
		return nil, err
	}
	job.Attempts++
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// promote moves due delayed jobs to the ready set and fires due recurring
// entries. Best effort: errors are logged and retried on the next poll.
func (q *Queue) promote(ctx context.Context) {
	nowMs := strconv.FormatInt(q.now().UnixMilli(), 10)

	due, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf", Max: nowMs, Count: 100,
	}).Result()
	if err != nil {
		config.LogError(q.logger, "queue", "promote", "delayed range", q.name, err)
		return
	}
	for _, id := range due {
		if removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result(); err != nil || removed == 0 {
			// Another worker claimed it.
			continue
		}
		job, err := q.loadJob(ctx, id)
		if err != nil || job == nil {
			continue
		}
		if err := q.pushReady(ctx, job); err != nil {
			config.LogError(q.logger, "queue", "promote", "push ready", id, err)
		}
	}

	q.promoteRecurring(ctx)
}

// MarkCompleted drops the job record and appends it to the capped
// completed history.
func (q *Queue) MarkCompleted(ctx context.Context, job *Job) {
	if q.rdb == nil {
		return
	}
	q.rdb.Del(ctx, q.jobKey(job.ID))
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	pipe := q.rdb.Pipeline()
	pipe.LPush(ctx, q.key("completed"), data)
	pipe.LTrim(ctx, q.key("completed"), 0, int64(q.CompletedHistory-1))
	if _, err := pipe.Exec(ctx); err != nil {
		config.LogError(q.logger, "queue", "MarkCompleted", "history", job.ID, err)
	}
}

// Fail either reschedules the job with exponential backoff or, once the
// attempts are exhausted, moves it to the capped failed history. Terminal
// failures are observability events only; nothing is surfaced to tenants.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) {
	if q.rdb == nil {
		return
	}
	job.LastError = cause.Error()

	if job.Attempts < job.MaxAttempts {
		delay := backoffDelay(q.InitialBackoff, job.Attempts)
		job.ReadyAt = q.now().Add(delay)
		if err := q.saveJob(ctx, job); err != nil {
			config.LogError(q.logger, "queue", "Fail", "save for retry", job.ID, err)
			return
		}
		if err := q.rdb.ZAdd(ctx, q.key("delayed"), redis.Z{
			Score:  float64(job.ReadyAt.UnixMilli()),
			Member: job.ID,
		}).Err(); err != nil {
			config.LogError(q.logger, "queue", "Fail", "schedule retry", job.ID, err)
		}
		return
	}

	q.rdb.Del(ctx, q.jobKey(job.ID))
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	pipe := q.rdb.Pipeline()
	pipe.LPush(ctx, q.key("failed"), data)
	pipe.LTrim(ctx, q.key("failed"), 0, int64(q.FailedHistory-1))
	if _, err := pipe.Exec(ctx); err != nil {
		config.LogError(q.logger, "queue", "Fail", "history", job.ID, err)
	}
	if q.logger != nil {
		q.logger.WithFields(logrus.Fields{
			"module":    "queue",
			"jobId":     job.ID,
			"companyId": job.Payload.CompanyId,
			"type":      job.Payload.Type,
			"attempts":  job.Attempts,
		}).Error("job failed permanently: " + job.LastError)
	}
}

// RegisterRecurring upserts a named recurring entry. Re-registering the same
// name is a no-op update that keeps the existing next-run time, so the
// fallback timer can call this every hour without creating duplicates.
func (q *Queue) RegisterRecurring(ctx context.Context, name string, pattern string, payload AnalyticsPayload) error {
	if q.rdb == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	entryKey := q.key("recurring:" + name)
	pipe := q.rdb.Pipeline()
	pipe.HSet(ctx, entryKey, "pattern", pattern, "payload", data)
	pipe.HSetNX(ctx, entryKey, "next_run_at", strconv.FormatInt(nextRunAfter(pattern, q.now()).UnixMilli(), 10))
	pipe.SAdd(ctx, q.key("recurring"), name)
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) promoteRecurring(ctx context.Context) {
	names, err := q.rdb.SMembers(ctx, q.key("recurring")).Result()
	if err != nil {
		config.LogError(q.logger, "queue", "promoteRecurring", "members", q.name, err)
		return
	}
	now := q.now()
	for _, name := range names {
		entryKey := q.key("recurring:" + name)
		entry, err := q.rdb.HGetAll(ctx, entryKey).Result()
		if err != nil || len(entry) == 0 {
			continue
		}
		nextRunMs, _ := strconv.ParseInt(entry["next_run_at"], 10, 64)
		if nextRunMs == 0 || now.UnixMilli() < nextRunMs {
			continue
		}

		// Advance next_run_at before enqueuing. Two promoters racing the same
		// tick can double-fire; the recurring job is idempotent so that is
		// benign, and the worker-side discovery lock dedupes the heavy part.
		next := nextRunAfter(entry["pattern"], now)
		if err := q.rdb.HSet(ctx, entryKey, "next_run_at", strconv.FormatInt(next.UnixMilli(), 10)).Err(); err != nil {
			continue
		}

		var payload AnalyticsPayload
		if err := json.Unmarshal([]byte(entry["payload"]), &payload); err != nil {
			config.LogError(q.logger, "queue", "promoteRecurring", "payload", name, err)
			continue
		}
		if _, err := q.Enqueue(ctx, payload, PriorityLowBackground, 0); err != nil {
			config.LogError(q.logger, "queue", "promoteRecurring", "enqueue", name, err)
		}
	}
}

// Counts reports pending/history sizes for the ops endpoint.
func (q *Queue) Counts(ctx context.Context) (map[string]int64, error) {
	if q.rdb == nil {
		return map[string]int64{}, nil
	}
	counts := map[string]int64{}
	for _, bucket := range []string{"ready", "delayed"} {
		n, err := q.rdb.ZCard(ctx, q.key(bucket)).Result()
		if err != nil {
			return nil, err
		}
		counts[bucket] = n
	}
	for _, bucket := range []string{"completed", "failed"} {
		n, err := q.rdb.LLen(ctx, q.key(bucket)).Result()
		if err != nil {
			return nil, err
		}
		counts[bucket] = n
	}
	return counts, nil
}
