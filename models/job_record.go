package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JobStatus represents where a background job is in its lifecycle
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the job will not run again
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobData is an opaque JSON document (payload or result) of a job
type JobData json.RawMessage

// Value implements driver.Valuer for JSONB
func (d JobData) Value() (driver.Value, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return []byte(d), nil
}

// Scan implements sql.Scanner for JSONB
func (d *JobData) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*d = append(JobData{}, v...)
	case string:
		*d = JobData(v)
	default:
		*d = nil
	}
	return nil
}

// MarshalJSON keeps the raw document when the record is serialized
func (d JobData) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return []byte(d), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *JobData) UnmarshalJSON(raw []byte) error {
	*d = append(JobData{}, raw...)
	return nil
}

// JobRecord is the terminal outcome of a background job archived for
// operators and status polling after the queue has pruned it.
type JobRecord struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Payload     JobData   `json:"payload"`
	Result      JobData   `json:"result,omitempty"`
	LastError   *string   `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
