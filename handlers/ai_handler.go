package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/service"
)

// AIHandler exposes direct provider operations
type AIHandler struct {
	providers service.ProviderResolver
	audit     *service.AuditService
}

func NewAIHandler(providers service.ProviderResolver, audit *service.AuditService) *AIHandler {
	return &AIHandler{providers: providers, audit: audit}
}

type rewriteBody struct {
	Text              string         `json:"text" binding:"required"`
	Instruction       ai.Instruction `json:"instruction" binding:"required"`
	CustomInstruction string         `json:"customInstruction"`
	Context           string         `json:"context"`
	Provider          string         `json:"provider"`
}

// Rewrite handles POST /api/ai/rewrite. A custom instruction needs its text.
func (h *AIHandler) Rewrite(c *gin.Context) {
	var body rewriteBody
	if !bindJSON(c, &body) {
		return
	}
	if !body.Instruction.Valid() {
		respondError(c, apperr.Validation("", apperr.FieldError{Field: "instruction", Message: "Deve ser um de: improve, simplify, expand, formalize, custom"}))
		return
	}
	if body.Instruction == ai.InstructionCustom && strings.TrimSpace(body.CustomInstruction) == "" {
		respondError(c, apperr.Validation("", apperr.FieldError{Field: "customInstruction", Message: "Campo obrigatório para instrução personalizada"}))
		return
	}

	p, err := h.providers.Provider(body.Provider)
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := p.RewriteText(c.Request.Context(), ai.RewriteRequest{
		Text:        body.Text,
		Instruction: body.Instruction,
		Custom:      body.CustomInstruction,
		Context:     body.Context,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	tenantID, userID := principal(c)
	h.audit.LogAI(c.Request.Context(), service.AIUsage{
		TenantID: tenantID,
		UserID:   userID,
		Action:   "rewrite." + string(body.Instruction),
		Provider: p.Name(),
		Input:    body.Text,
		Output:   out,
	})
	respondOK(c, http.StatusOK, gin.H{"text": out, "provider": p.Name()})
}
