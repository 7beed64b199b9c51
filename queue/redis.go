package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/models"
)

// NewRedisClient parses url and pings the server
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisQueue stores jobs as hashes and moves their ids between lists:
// wait -> active -> completed|failed, with active -> delayed -> wait on retry.
type RedisQueue struct {
	rdb     *goredis.Client
	log     *logger.Logger
	prefix  string
	options map[Kind]Options
	idemTTL time.Duration
	now     func() time.Time
}

type RedisQueueOption func(*RedisQueue)

// RedisWithPrefix namespaces every key
func RedisWithPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) { q.prefix = prefix }
}

// RedisWithOptions overrides the options of one kind
func RedisWithOptions(kind Kind, opts Options) RedisQueueOption {
	return func(q *RedisQueue) { q.options[kind] = opts }
}

// RedisWithClock replaces time.Now
func RedisWithClock(now func() time.Time) RedisQueueOption {
	return func(q *RedisQueue) { q.now = now }
}

// RedisWithLogger sets the logger
func RedisWithLogger(l *logger.Logger) RedisQueueOption {
	return func(q *RedisQueue) { q.log = l }
}

// RedisWithIdempotencyTTL sets how long idempotency keys are remembered
func RedisWithIdempotencyTTL(ttl time.Duration) RedisQueueOption {
	return func(q *RedisQueue) { q.idemTTL = ttl }
}

func NewRedisQueue(rdb *goredis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		rdb:     rdb,
		log:     logger.Nop(),
		prefix:  "petichat:queue",
		options: make(map[Kind]Options),
		idemTTL: 24 * time.Hour,
		now:     time.Now,
	}
	for _, k := range []Kind{KindGenerateDocument, KindIngestJurisprudence, KindGenerateEmbeddings} {
		q.options[k] = DefaultOptions(k)
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.With("component", "queue")
	return q
}

// Options returns the effective options for kind
func (q *RedisQueue) Options(kind Kind) Options {
	if o, ok := q.options[kind]; ok {
		return o
	}
	return DefaultOptions(kind)
}

func (q *RedisQueue) jobKey(id string) string { return q.prefix + ":job:" + id }

func (q *RedisQueue) listKey(kind Kind, list string) string {
	return q.prefix + ":" + string(kind) + ":" + list
}

func (q *RedisQueue) idemKey(key string) string { return q.prefix + ":idem:" + key }

var errEncodeResult = errors.New("encode job result")

func ms(t time.Time) int64 { return t.UnixMilli() }

// Enqueue adds a job to the kind's ready list
func (q *RedisQueue) Enqueue(ctx context.Context, kind Kind, payload any, idempotencyKey string) (*Job, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("Tipo de tarefa inválido", apperr.FieldError{Field: "kind", Message: string(kind)})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	id := uuid.NewString()
	if idempotencyKey != "" {
		existing, err := q.claimIdempotencyKey(ctx, idempotencyKey, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			q.log.Debug("Duplicate enqueue suppressed", "kind", kind, "job_id", existing.ID, "idempotency_key", idempotencyKey)
			return existing, nil
		}
	}

	opts := q.Options(kind)
	now := q.now()
	job := &Job{
		ID:             id,
		Kind:           kind,
		Payload:        raw,
		Status:         models.JobStatusWaiting,
		MaxAttempts:    opts.MaxAttempts,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(id), map[string]any{
		"kind":            string(kind),
		"payload":         string(raw),
		"status":          string(job.Status),
		"progress":        0,
		"attempts":        0,
		"max_attempts":    opts.MaxAttempts,
		"idempotency_key": idempotencyKey,
		"created_at":      ms(now),
	})
	pipe.LPush(ctx, q.listKey(kind, "wait"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	q.log.Info("Job enqueued", "kind", kind, "job_id", id)
	return job, nil
}

// claimIdempotencyKey binds key to id, or returns the job already bound to it.
// A key whose job was trimmed by retention is rebound to the new id.
func (q *RedisQueue) claimIdempotencyKey(ctx context.Context, key, id string) (*Job, error) {
	ok, err := q.rdb.SetNX(ctx, q.idemKey(key), id, q.idemTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}
	existingID, err := q.rdb.Get(ctx, q.idemKey(key)).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("idempotency key: %w", err)
	}
	if existingID != "" {
		job, err := q.Get(ctx, existingID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	if err := q.rdb.Set(ctx, q.idemKey(key), id, q.idemTTL).Err(); err != nil {
		return nil, fmt.Errorf("idempotency key: %w", err)
	}
	return nil, nil
}

// Get loads a job by id
func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, apperr.NotFound("job")
	}
	return decodeJob(id, fields), nil
}

func decodeJob(id string, f map[string]string) *Job {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(f[k])
		return n
	}
	at := func(k string) time.Time {
		n, err := strconv.ParseInt(f[k], 10, 64)
		if err != nil || n == 0 {
			return time.Time{}
		}
		return time.UnixMilli(n)
	}
	job := &Job{
		ID:             id,
		Kind:           Kind(f["kind"]),
		Payload:        json.RawMessage(f["payload"]),
		Status:         models.JobStatus(f["status"]),
		Progress:       atoi("progress"),
		Attempts:       atoi("attempts"),
		MaxAttempts:    atoi("max_attempts"),
		LastError:      f["last_error"],
		IdempotencyKey: f["idempotency_key"],
		CreatedAt:      at("created_at"),
		StartedAt:      at("started_at"),
		HeartbeatAt:    at("heartbeat_at"),
		FinishedAt:     at("finished_at"),
	}
	if r := f["result"]; r != "" {
		job.Result = json.RawMessage(r)
	}
	return job
}

// promote moves delayed jobs whose backoff elapsed back to the ready list
func (q *RedisQueue) promote(ctx context.Context, kind Kind) error {
	due, err := q.rdb.ZRangeByScore(ctx, q.listKey(kind, "delayed"), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(ms(q.now()), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range due {
		removed, err := q.rdb.ZRem(ctx, q.listKey(kind, "delayed"), id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, q.jobKey(id), "status", string(models.JobStatusWaiting))
		pipe.LPush(ctx, q.listKey(kind, "wait"), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// claim atomically takes the oldest ready job of kind, or returns nil
func (q *RedisQueue) claim(ctx context.Context, kind Kind) (*Job, error) {
	if err := q.promote(ctx, kind); err != nil {
		return nil, fmt.Errorf("promote delayed %s: %w", kind, err)
	}
	id, err := q.rdb.LMove(ctx, q.listKey(kind, "wait"), q.listKey(kind, "active"), "RIGHT", "LEFT").Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", kind, err)
	}

	pipe := q.rdb.TxPipeline()
	now := ms(q.now())
	pipe.HSet(ctx, q.jobKey(id), "status", string(models.JobStatusActive), "started_at", now, "heartbeat_at", now)
	pipe.HIncrBy(ctx, q.jobKey(id), "attempts", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("claim %s: %w", kind, err)
	}
	return q.Get(ctx, id)
}

func (q *RedisQueue) setProgress(ctx context.Context, id string, progress int) error {
	return q.rdb.HSet(ctx, q.jobKey(id), "progress", progress, "heartbeat_at", ms(q.now())).Err()
}

// heartbeat renews the lease of a running job so RequeueStalled leaves it alone
func (q *RedisQueue) heartbeat(ctx context.Context, id string) error {
	return q.rdb.HSet(ctx, q.jobKey(id), "heartbeat_at", ms(q.now())).Err()
}

func (q *RedisQueue) complete(ctx context.Context, job *Job, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: %v", errEncodeResult, err)
	}
	now := q.now()
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.listKey(job.Kind, "active"), 1, job.ID)
	pipe.HSet(ctx, q.jobKey(job.ID),
		"status", string(models.JobStatusCompleted),
		"progress", 100,
		"result", string(raw),
		"finished_at", ms(now),
	)
	pipe.LPush(ctx, q.listKey(job.Kind, "completed"), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	job.Status, job.Progress, job.Result, job.FinishedAt = models.JobStatusCompleted, 100, raw, now
	return q.trim(ctx, job.Kind, "completed", q.Options(job.Kind).KeepCompleted)
}

// fail schedules a retry with exponential backoff while attempts remain and
// otherwise parks the job in the failed list
func (q *RedisQueue) fail(ctx context.Context, job *Job, cause error) error {
	if job.Attempts >= job.MaxAttempts {
		return q.park(ctx, job, cause)
	}
	runAt := q.now().Add(q.Options(job.Kind).BackoffFor(job.Attempts))
	job.LastError = cause.Error()

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.listKey(job.Kind, "active"), 1, job.ID)
	pipe.HSet(ctx, q.jobKey(job.ID), "status", string(models.JobStatusDelayed), "last_error", job.LastError)
	pipe.ZAdd(ctx, q.listKey(job.Kind, "delayed"), goredis.Z{Score: float64(ms(runAt)), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	job.Status = models.JobStatusDelayed
	return nil
}

// park moves the job to the failed list regardless of remaining attempts
func (q *RedisQueue) park(ctx context.Context, job *Job, cause error) error {
	now := q.now()
	job.LastError = cause.Error()

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.listKey(job.Kind, "active"), 1, job.ID)
	pipe.HSet(ctx, q.jobKey(job.ID),
		"status", string(models.JobStatusFailed),
		"last_error", job.LastError,
		"finished_at", ms(now),
	)
	pipe.LPush(ctx, q.listKey(job.Kind, "failed"), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	job.Status, job.FinishedAt = models.JobStatusFailed, now
	return q.trim(ctx, job.Kind, "failed", q.Options(job.Kind).KeepFailed)
}

// trim keeps the newest keep ids of a retention list and drops the rest
func (q *RedisQueue) trim(ctx context.Context, kind Kind, list string, keep int) error {
	if keep <= 0 {
		return nil
	}
	key := q.listKey(kind, list)
	overflow, err := q.rdb.LRange(ctx, key, int64(keep), -1).Result()
	if err != nil || len(overflow) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.LTrim(ctx, key, 0, int64(keep-1))
	for _, id := range overflow {
		pipe.Del(ctx, q.jobKey(id))
	}
	_, err = pipe.Exec(ctx)
	return err
}

var errStalled = errors.New("worker stopped renewing the job lease")

// RequeueStalled returns active jobs whose lease was last renewed before
// olderThan to the ready list. Used after a worker crash; processors are
// idempotent. A stalled job with no attempts left is parked as failed.
func (q *RedisQueue) RequeueStalled(ctx context.Context, kind Kind, olderThan time.Duration) (int, error) {
	active := q.listKey(kind, "active")
	ids, err := q.rdb.LRange(ctx, active, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	cutoff := q.now().Add(-olderThan)
	n, parked := 0, 0
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				q.rdb.LRem(ctx, active, 1, id)
				continue
			}
			return n, err
		}
		if job.leaseStart().After(cutoff) {
			continue
		}
		removed, err := q.rdb.LRem(ctx, active, 1, id).Result()
		if err != nil {
			return n, err
		}
		if removed == 0 {
			continue
		}
		if job.Attempts >= job.MaxAttempts {
			if err := q.park(ctx, job, apperr.Job(string(kind), errStalled)); err != nil {
				return n, err
			}
			parked++
			continue
		}
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, q.jobKey(id), "status", string(models.JobStatusWaiting))
		pipe.LPush(ctx, q.listKey(kind, "wait"), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		q.log.Warn("Requeued stalled jobs", "kind", kind, "count", n)
	}
	if parked > 0 {
		q.log.Error("Stalled jobs out of attempts", "kind", kind, "count", parked)
	}
	return n, nil
}

// Counts reports list sizes per status for kind
func (q *RedisQueue) Counts(ctx context.Context, kind Kind) (map[models.JobStatus]int64, error) {
	pipe := q.rdb.Pipeline()
	wait := pipe.LLen(ctx, q.listKey(kind, "wait"))
	delayed := pipe.ZCard(ctx, q.listKey(kind, "delayed"))
	active := pipe.LLen(ctx, q.listKey(kind, "active"))
	completed := pipe.LLen(ctx, q.listKey(kind, "completed"))
	failed := pipe.LLen(ctx, q.listKey(kind, "failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return map[models.JobStatus]int64{
		models.JobStatusWaiting:   wait.Val(),
		models.JobStatusDelayed:   delayed.Val(),
		models.JobStatusActive:    active.Val(),
		models.JobStatusCompleted: completed.Val(),
		models.JobStatusFailed:    failed.Val(),
	}, nil
}

// Retry moves a failed job back to the ready list with a fresh attempt budget
func (q *RedisQueue) Retry(ctx context.Context, id string) (*Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed {
		return nil, apperr.Validation("Apenas tarefas com falha podem ser reprocessadas")
	}
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.listKey(job.Kind, "failed"), 1, id)
	pipe.HSet(ctx, q.jobKey(id), "status", string(models.JobStatusWaiting), "attempts", 0, "finished_at", 0)
	pipe.LPush(ctx, q.listKey(job.Kind, "wait"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return q.Get(ctx, id)
}
