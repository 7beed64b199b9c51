// Package queue runs background jobs on Redis: per-kind ready lists, a delayed
// set for retry backoff, bounded retention of finished jobs and a worker pool
// with per-kind concurrency.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/luantaraschi/petichat-definitive/models"
)

type Kind string

const (
	KindGenerateDocument    Kind = "generate-document"
	KindIngestJurisprudence Kind = "ingest-jurisprudence"
	KindGenerateEmbeddings  Kind = "generate-embeddings"
)

func (k Kind) Valid() bool {
	switch k {
	case KindGenerateDocument, KindIngestJurisprudence, KindGenerateEmbeddings:
		return true
	}
	return false
}

// Options control retries, parallelism and retention for one kind
type Options struct {
	MaxAttempts   int
	Backoff       time.Duration
	Concurrency   int
	KeepCompleted int
	KeepFailed    int
}

var defaultOptions = map[Kind]Options{
	KindGenerateDocument:    {MaxAttempts: 3, Backoff: time.Second, Concurrency: 2, KeepCompleted: 100, KeepFailed: 1000},
	KindIngestJurisprudence: {MaxAttempts: 3, Backoff: 2 * time.Second, Concurrency: 1, KeepCompleted: 50, KeepFailed: 500},
	KindGenerateEmbeddings:  {MaxAttempts: 3, Backoff: time.Second, Concurrency: 3, KeepCompleted: 100, KeepFailed: 500},
}

// DefaultOptions returns the built-in options for kind
func DefaultOptions(kind Kind) Options {
	if o, ok := defaultOptions[kind]; ok {
		return o
	}
	return Options{MaxAttempts: 3, Backoff: time.Second, Concurrency: 1, KeepCompleted: 100, KeepFailed: 500}
}

// BackoffFor is the delay before retrying after the given failed attempt:
// Backoff, 2*Backoff, 4*Backoff...
func (o Options) BackoffFor(attempt int) time.Duration {
	d := o.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Job is the queue's view of one unit of work
type Job struct {
	ID             string           `json:"id"`
	Kind           Kind             `json:"kind"`
	Payload        json.RawMessage  `json:"payload"`
	Status         models.JobStatus `json:"status"`
	Progress       int              `json:"progress"`
	Attempts       int              `json:"attempts"`
	MaxAttempts    int              `json:"max_attempts"`
	Result         json.RawMessage  `json:"result,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	IdempotencyKey string           `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      time.Time        `json:"started_at,omitempty"`
	HeartbeatAt    time.Time        `json:"heartbeat_at,omitempty"`
	FinishedAt     time.Time        `json:"finished_at,omitempty"`
}

// leaseStart is the last time a worker proved it still runs the job
func (j *Job) leaseStart() time.Time {
	if j.HeartbeatAt.After(j.StartedAt) {
		return j.HeartbeatAt
	}
	return j.StartedAt
}

// Decode unmarshals the payload into v
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Record converts the job for durable storage
func (j *Job) Record() *models.JobRecord {
	rec := &models.JobRecord{
		ID:          j.ID,
		Kind:        string(j.Kind),
		Status:      j.Status,
		Progress:    j.Progress,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Payload:     models.JobData(j.Payload),
		Result:      models.JobData(j.Result),
		CreatedAt:   j.CreatedAt,
		FinishedAt:  j.FinishedAt,
	}
	if j.LastError != "" {
		msg := j.LastError
		rec.LastError = &msg
	}
	return rec
}

// Enqueuer submits work. A non-empty idempotency key returns the existing job
// instead of enqueuing a duplicate.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind Kind, payload any, idempotencyKey string) (*Job, error)
}

// Queue is the job-queue contract used by the API process
type Queue interface {
	Enqueuer
	Get(ctx context.Context, id string) (*Job, error)
}
