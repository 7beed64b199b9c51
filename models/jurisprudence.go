package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimensions is the fixed vector size stored for jurisprudence chunks
const EmbeddingDimensions = 768

// Jurisprudence is a citable court decision. Rows are immutable once ingested
// and unique on (tribunal, process_number).
type Jurisprudence struct {
	ID            uuid.UUID  `json:"id"`
	Tribunal      string     `json:"tribunal"`
	ProcessNumber string     `json:"process_number"`
	DecisionDate  *time.Time `json:"decision_date,omitempty"`
	Rapporteur    *string    `json:"rapporteur,omitempty"`
	JudgingBody   *string    `json:"judging_body,omitempty"`
	Summary       string     `json:"summary"`
	FullText      *string    `json:"full_text,omitempty"`
	Source        string     `json:"source"`
	ExternalLink  *string    `json:"external_link,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DedupKey identifies a decision independent of its database id
func (j *Jurisprudence) DedupKey() string {
	return j.Tribunal + "|" + j.ProcessNumber
}

// ChunkType labels which part of a decision a chunk was cut from
type ChunkType string

const (
	ChunkSummary  ChunkType = "summary"
	ChunkFullText ChunkType = "full_text"
)

// JurisprudenceChunk is a piece of decision text with its embedding vector
type JurisprudenceChunk struct {
	ID              uuid.UUID  `json:"id"`
	JurisprudenceID uuid.UUID  `json:"jurisprudence_id"`
	Position        int        `json:"position"`
	ChunkType       ChunkType  `json:"chunk_type"`
	Content         string     `json:"content"`
	Embedding       []float32  `json:"-"`
	EmbeddedAt      *time.Time `json:"embedded_at,omitempty"`
	Distance        float64    `json:"distance,omitempty"` // vector similarity distance
}

// Citation is a case's reference to a jurisprudence excerpt
type Citation struct {
	ID              uuid.UUID `json:"id"`
	CaseID          uuid.UUID `json:"case_id"`
	JurisprudenceID uuid.UUID `json:"jurisprudence_id"`
	Tribunal        string    `json:"tribunal"`
	ProcessNumber   string    `json:"process_number"`
	Excerpt         string    `json:"excerpt"`
	Position        int       `json:"position"`
	CreatedAt       time.Time `json:"created_at"`
}

// JurisprudenceFilter narrows a keyword search
type JurisprudenceFilter struct {
	Query    string
	Tribunal string
	Year     int
	Limit    int
	Offset   int
}
