package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/editor"
)

// EditorHandler serves inline AI actions, both the stateless flow over a
// stored document and server-held editing sessions
type EditorHandler struct {
	actions  *editor.ActionStore
	sessions *editor.Manager
}

func NewEditorHandler(actions *editor.ActionStore, sessions *editor.Manager) *EditorHandler {
	return &EditorHandler{actions: actions, sessions: sessions}
}

type inlineActionBody struct {
	Action           editor.ActionKind `json:"action" binding:"required"`
	Text             string            `json:"text" binding:"required"`
	CustomPrompt     string            `json:"customPrompt"`
	Provider         string            `json:"provider"`
	CaseID           *string           `json:"caseId"`
	ThesisID         *string           `json:"thesisId"`
	DocumentID       *string           `json:"documentId"`
	JurisprudenceIDs []string          `json:"jurisprudenceIds"`
}

// InlineAction handles POST /api/editor/inline-action. The result is a
// preview; nothing is written until apply.
func (h *EditorHandler) InlineAction(c *gin.Context) {
	var body inlineActionBody
	if !bindJSON(c, &body) {
		return
	}
	tenantID, userID := principal(c)
	req := editor.InlineActionRequest{
		TenantID: tenantID,
		UserID:   userID,
		Kind:     body.Action,
		Text:     body.Text,
		Custom:   body.CustomPrompt,
		Provider: body.Provider,
	}
	var err error
	if req.CaseID, err = optionalUUID("caseId", body.CaseID); err != nil {
		respondError(c, err)
		return
	}
	if req.ThesisID, err = optionalUUID("thesisId", body.ThesisID); err != nil {
		respondError(c, err)
		return
	}
	if req.DocumentID, err = optionalUUID("documentId", body.DocumentID); err != nil {
		respondError(c, err)
		return
	}
	if req.JurisprudenceIDs, err = parseUUIDs("jurisprudenceIds", body.JurisprudenceIDs); err != nil {
		respondError(c, err)
		return
	}

	action, err := h.actions.Perform(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, action)
}

type applyActionBody struct {
	ActionID         string `json:"actionId" binding:"required"`
	DocumentID       string `json:"documentId" binding:"required"`
	From             *int   `json:"from" binding:"required"`
	To               *int   `json:"to" binding:"required"`
	ExpectedRevision *int   `json:"expectedRevision"`
}

// ApplyAction handles POST /api/editor/apply
func (h *EditorHandler) ApplyAction(c *gin.Context) {
	var body applyActionBody
	if !bindJSON(c, &body) {
		return
	}
	docID, err := optionalUUID("documentId", &body.DocumentID)
	if err != nil {
		respondError(c, err)
		return
	}
	tenantID, userID := principal(c)
	res, err := h.actions.Apply(c.Request.Context(), editor.ApplyRequest{
		TenantID:         tenantID,
		UserID:           userID,
		ActionID:         body.ActionID,
		DocumentID:       *docID,
		From:             *body.From,
		To:               *body.To,
		ExpectedRevision: body.ExpectedRevision,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"document": res.Document, "version": res.Version})
}

// DiscardAction handles DELETE /api/editor/actions/:actionId
func (h *EditorHandler) DiscardAction(c *gin.Context) {
	tenantID, userID := principal(c)
	if err := h.actions.Discard(tenantID, userID, c.Param("actionId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ActionKinds handles GET /api/editor/actions
func (h *EditorHandler) ActionKinds(c *gin.Context) {
	respondOK(c, http.StatusOK, editor.Kinds())
}

type openSessionBody struct {
	DocumentID string `json:"documentId" binding:"required"`
}

func sessionView(id string, s *editor.Session) gin.H {
	return gin.H{
		"sessionId": id,
		"state":     s.State(),
		"outcome":   s.Outcome(),
		"busy":      s.Busy(),
		"content":   s.Buffer().String(),
		"version":   s.Buffer().Version(),
		"pending":   s.Pending(),
	}
}

// OpenSession handles POST /api/editor/sessions
func (h *EditorHandler) OpenSession(c *gin.Context) {
	var body openSessionBody
	if !bindJSON(c, &body) {
		return
	}
	docID, err := optionalUUID("documentId", &body.DocumentID)
	if err != nil {
		respondError(c, err)
		return
	}
	tenantID, userID := principal(c)
	res, err := h.sessions.Open(c.Request.Context(), tenantID, userID, *docID)
	if err != nil {
		respondError(c, err)
		return
	}
	view := sessionView(res.SessionID, res.Session)
	view["document"] = res.Document
	respondOK(c, http.StatusCreated, view)
}

func (h *EditorHandler) session(c *gin.Context) (*editor.Session, bool) {
	tenantID, userID := principal(c)
	s, err := h.sessions.Get(tenantID, userID, c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

// GetSession handles GET /api/editor/sessions/:sessionId
func (h *EditorHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, sessionView(c.Param("sessionId"), s))
}

type editBody struct {
	Op   string `json:"op" binding:"required,oneof=insert delete"`
	Pos  int    `json:"pos"`
	From int    `json:"from"`
	To   int    `json:"to"`
	Text string `json:"text"`
}

// Edit handles POST /api/editor/sessions/:sessionId/edits. Typing moves the
// pending selection along with the text it denotes.
func (h *EditorHandler) Edit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body editBody
	if !bindJSON(c, &body) {
		return
	}
	var err error
	switch body.Op {
	case "insert":
		err = s.Buffer().Insert(body.Pos, body.Text)
	case "delete":
		err = s.Buffer().Delete(body.From, body.To)
	}
	if err != nil {
		respondError(c, apperr.Validation("Edição inválida", apperr.FieldError{Field: "position", Message: err.Error()}))
		return
	}
	respondOK(c, http.StatusOK, sessionView(c.Param("sessionId"), s))
}

type requestActionBody struct {
	Action       editor.ActionKind `json:"action" binding:"required"`
	From         int               `json:"from"`
	To           int               `json:"to"`
	CustomPrompt string            `json:"customPrompt"`
}

// RequestAction handles POST /api/editor/sessions/:sessionId/actions
func (h *EditorHandler) RequestAction(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body requestActionBody
	if !bindJSON(c, &body) {
		return
	}
	action, err := s.Request(c.Request.Context(), editor.RequestInput{
		Kind:   body.Action,
		From:   body.From,
		To:     body.To,
		Custom: body.CustomPrompt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, action)
}

// ApplySessionAction handles POST /api/editor/sessions/:sessionId/actions/:actionId/apply
func (h *EditorHandler) ApplySessionAction(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Apply(c.Param("actionId")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sessionView(c.Param("sessionId"), s))
}

// DiscardSessionAction handles DELETE /api/editor/sessions/:sessionId/actions/:actionId
func (h *EditorHandler) DiscardSessionAction(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Discard(c.Param("actionId")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sessionView(c.Param("sessionId"), s))
}

// SaveSession handles POST /api/editor/sessions/:sessionId/save
func (h *EditorHandler) SaveSession(c *gin.Context) {
	tenantID, userID := principal(c)
	res, err := h.sessions.Save(c.Request.Context(), tenantID, userID, c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"document": res.Document, "version": res.Version, "changed": res.Changed})
}

// CloseSession handles DELETE /api/editor/sessions/:sessionId
func (h *EditorHandler) CloseSession(c *gin.Context) {
	tenantID, userID := principal(c)
	if err := h.sessions.Close(tenantID, userID, c.Param("sessionId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
