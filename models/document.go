package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DocumentType is the kind of legal piece being drafted
type DocumentType string

const (
	DocumentPetition     DocumentType = "petition"
	DocumentContestation DocumentType = "contestation"
	DocumentAppeal       DocumentType = "appeal"
	DocumentMotion       DocumentType = "motion"
	DocumentBrief        DocumentType = "brief"
	DocumentContract     DocumentType = "contract"
	DocumentOther        DocumentType = "other"
)

var documentTypeLabels = map[DocumentType]string{
	DocumentPetition:     "Petição Inicial",
	DocumentContestation: "Contestação",
	DocumentAppeal:       "Recurso de Apelação",
	DocumentMotion:       "Requerimento",
	DocumentBrief:        "Parecer",
	DocumentContract:     "Contrato",
	DocumentOther:        "Documento",
}

// Valid reports whether t is a known document type
func (t DocumentType) Valid() bool {
	_, ok := documentTypeLabels[t]
	return ok
}

// Label returns the pt-BR name of the document type
func (t DocumentType) Label() string {
	if label, ok := documentTypeLabels[t]; ok {
		return label
	}
	return documentTypeLabels[DocumentOther]
}

// DocumentStatus represents the editing status of a document
type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "draft"
	DocumentStatusCompleted DocumentStatus = "completed"
)

// Valid reports whether s is a known document status
func (s DocumentStatus) Valid() bool {
	return s == DocumentStatusDraft || s == DocumentStatusCompleted
}

// DocumentSection is one ordered block of a generated document
type DocumentSection struct {
	ID      string `json:"id"`
	Type    string `json:"type" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
	Order   int    `json:"order"`
}

// DocumentSections is the ordered structured content of a document
type DocumentSections []DocumentSection

// Value implements driver.Valuer for JSONB
func (s DocumentSections) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *DocumentSections) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	}
	if len(raw) == 0 {
		*s = make(DocumentSections, 0)
		return nil
	}
	return json.Unmarshal(raw, s)
}

// LegalDocument is a generated or hand-edited legal piece bound to a case.
// Revision increases on every content write.
type LegalDocument struct {
	ID           uuid.UUID        `json:"id"`
	CaseID       uuid.UUID        `json:"case_id"`
	TenantID     uuid.UUID        `json:"tenant_id"`
	Title        string           `json:"title"`
	DocumentType DocumentType     `json:"document_type"`
	Status       DocumentStatus   `json:"status"`
	Sections     DocumentSections `json:"sections"`
	ContentHTML  string           `json:"content_html"`
	Revision     int              `json:"revision"`
	CreatedBy    uuid.UUID        `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// DocumentVersion is an immutable snapshot of a document's content
type DocumentVersion struct {
	ID          uuid.UUID        `json:"id"`
	DocumentID  uuid.UUID        `json:"document_id"`
	Revision    int              `json:"revision"`
	ContentHTML string           `json:"content_html"`
	Sections    DocumentSections `json:"sections"`
	CreatedBy   uuid.UUID        `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
}

// DocumentFilter narrows a tenant-scoped document listing
type DocumentFilter struct {
	TenantID uuid.UUID
	CaseID   *uuid.UUID
	Status   *DocumentStatus
	Limit    int
	Offset   int
}

// ExportFormat is a target format for document export
type ExportFormat string

const (
	ExportPDF  ExportFormat = "pdf"
	ExportDOCX ExportFormat = "docx"
	ExportTXT  ExportFormat = "txt"
)

// Valid reports whether f is a supported export format
func (f ExportFormat) Valid() bool {
	return f == ExportPDF || f == ExportDOCX || f == ExportTXT
}
