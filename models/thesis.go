package models

import (
	"time"

	"github.com/google/uuid"
)

// ThesisCategory groups theses by the part of the petition they argue
type ThesisCategory string

const (
	ThesisPreliminary ThesisCategory = "preliminary"
	ThesisMerits      ThesisCategory = "merits"
	ThesisClaim       ThesisCategory = "claim"
)

// Valid reports whether c is a known category
func (c ThesisCategory) Valid() bool {
	switch c {
	case ThesisPreliminary, ThesisMerits, ThesisClaim:
		return true
	}
	return false
}

// ReviewStatus tracks the lawyer's review of an AI-suggested thesis
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewApproved      ReviewStatus = "approved"
	ReviewRejected      ReviewStatus = "rejected"
	ReviewNeedsRevision ReviewStatus = "needs_revision"
)

// Valid reports whether s is a known review status
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewNeedsRevision:
		return true
	}
	return false
}

// Thesis is a candidate legal argument attached to a case.
// OrderIndex is unique per case and defines presentation order.
type Thesis struct {
	ID           uuid.UUID      `json:"id"`
	CaseID       uuid.UUID      `json:"case_id"`
	Category     ThesisCategory `json:"category"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Selected     bool           `json:"selected"`
	OrderIndex   int            `json:"order_index"`
	AIGenerated  bool           `json:"ai_generated"`
	ReviewStatus ReviewStatus   `json:"review_status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
