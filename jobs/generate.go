package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/service"
)

// GenerateResult is stored on a completed generate-document job
type GenerateResult struct {
	Success     bool      `json:"success"`
	DocumentID  uuid.UUID `json:"documentId"`
	Title       string    `json:"title"`
	Provider    string    `json:"provider"`
	Revision    int       `json:"revision"`
	CompletedAt time.Time `json:"completedAt"`
}

// GenerateHandler runs queued draft generation
type GenerateHandler struct {
	drafts DraftGenerator
	now    func() time.Time
}

func NewGenerateHandler(drafts DraftGenerator) *GenerateHandler {
	return &GenerateHandler{drafts: drafts, now: time.Now}
}

func (h *GenerateHandler) Kind() queue.Kind { return queue.KindGenerateDocument }

func (h *GenerateHandler) Run(jc *queue.Context) (any, error) {
	if h.drafts == nil {
		return nil, errors.New("draft service not set")
	}
	var req service.GenerateDraftRequest
	if err := jc.Decode(&req); err != nil {
		return nil, err
	}
	req.Progress = jc.Progress

	jc.Log.Info("Generating document", "case_id", req.CaseID, "tenant_id", req.TenantID, "theses", len(req.ThesisIDs))
	res, err := h.drafts.GenerateDraft(jc.Context(), req)
	if err != nil {
		return nil, err
	}
	return GenerateResult{
		Success:     true,
		DocumentID:  res.Document.ID,
		Title:       res.Document.Title,
		Provider:    res.Provider,
		Revision:    res.Document.Revision,
		CompletedAt: h.now().UTC(),
	}, nil
}
