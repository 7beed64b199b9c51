package models

import (
	"database/sql/driver"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// CaseStatus represents the lifecycle status of a case
type CaseStatus string

const (
	CaseStatusDraft    CaseStatus = "draft"
	CaseStatusActive   CaseStatus = "active"
	CaseStatusEditing  CaseStatus = "editing"
	CaseStatusArchived CaseStatus = "archived"
)

// Valid reports whether s is a known case status
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusDraft, CaseStatusActive, CaseStatusEditing, CaseStatusArchived:
		return true
	}
	return false
}

// MinFactsLength is the shortest facts description accepted as AI input.
const MinFactsLength = 10

// Wizard steps persisted on the case.
const (
	StepFacts  = 1
	StepTheses = 2
	StepDraft  = 3
)

// CaseMetadata is free-form structured data attached to a case
type CaseMetadata map[string]interface{}

// Value implements driver.Valuer for JSONB
func (m CaseMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB
func (m *CaseMetadata) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = CaseMetadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		*m = CaseMetadata{}
		return nil
	}
	if len(raw) == 0 {
		*m = CaseMetadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// StepSet is the set of completed wizard steps, stored as a sorted int array
type StepSet []int

// Add inserts step keeping the set sorted and unique
func (s StepSet) Add(step int) StepSet {
	for _, existing := range s {
		if existing == step {
			return s
		}
	}
	out := append(append(StepSet{}, s...), step)
	sort.Ints(out)
	return out
}

// Has reports whether step was completed
func (s StepSet) Has(step int) bool {
	for _, existing := range s {
		if existing == step {
			return true
		}
	}
	return false
}

// Case is the tenant-scoped unit of work a petition is drafted for
type Case struct {
	ID               uuid.UUID    `json:"id"`
	TenantID         uuid.UUID    `json:"tenant_id"`
	OwnerID          uuid.UUID    `json:"owner_id"`
	ClientName       string       `json:"client_name"`
	CaseType         string       `json:"case_type"`
	TemplateName     *string      `json:"template_name,omitempty"`
	FactsDescription string       `json:"facts_description"`
	Status           CaseStatus   `json:"status"`
	Metadata         CaseMetadata `json:"metadata"`

	CurrentStep    int     `json:"current_step"`
	CompletedSteps StepSet `json:"completed_steps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseFilter narrows a tenant-scoped case listing
type CaseFilter struct {
	TenantID uuid.UUID
	OwnerID  *uuid.UUID
	Status   *CaseStatus
	Search   string
	Limit    int
	Offset   int
}
