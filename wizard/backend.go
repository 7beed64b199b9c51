// Package wizard drives the three-step case-to-document flow: facts, then
// theses and jurisprudence, then the generated draft. Sessions are held in
// memory and never persisted; the case and document they create are.
package wizard

import (
	"context"

	"github.com/luantaraschi/petichat-definitive/service"
)

// Cases creates and edits the case behind a session
type Cases interface {
	CreateCase(ctx context.Context, req service.CreateCaseRequest) (*service.CreateCaseResult, error)
	UpdateCase(ctx context.Context, req service.UpdateCaseRequest) (*service.UpdateCaseResult, error)
}

type Theses interface {
	SuggestTheses(ctx context.Context, req service.SuggestThesesRequest) (*service.SuggestThesesResult, error)
}

type Drafts interface {
	GenerateDraft(ctx context.Context, req service.GenerateDraftRequest) (*service.GenerateDraftResult, error)
}

type Jurisprudence interface {
	Search(ctx context.Context, req service.SearchJurisprudenceRequest) (*service.SearchJurisprudenceResult, error)
}

type Documents interface {
	UpdateDocument(ctx context.Context, req service.UpdateDocumentRequest) (*service.UpdateDocumentResult, error)
}

// Backend bundles the services a session calls
type Backend struct {
	Cases         Cases
	Theses        Theses
	Drafts        Drafts
	Jurisprudence Jurisprudence
	Documents     Documents
}

var (
	_ Cases         = (*service.CaseService)(nil)
	_ Theses        = (*service.ThesisService)(nil)
	_ Drafts        = (*service.DraftService)(nil)
	_ Jurisprudence = (*service.JurisprudenceService)(nil)
	_ Documents     = (*service.DocumentService)(nil)
)
