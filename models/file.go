package models

import (
	"time"

	"github.com/google/uuid"
)

// File is a stored export artifact
type File struct {
	ID          uuid.UUID    `json:"id"`
	TenantID    uuid.UUID    `json:"tenant_id"`
	UserID      uuid.UUID    `json:"user_id"`
	DocumentID  *uuid.UUID   `json:"document_id,omitempty"`
	Format      ExportFormat `json:"format"`
	Filename    string       `json:"filename"`
	MimeType    string       `json:"mime_type"`
	Size        int64        `json:"size"`
	StoragePath string       `json:"storage_path"`
	CreatedAt   time.Time    `json:"created_at"`
}
