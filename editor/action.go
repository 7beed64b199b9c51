// Package editor implements the inline AI edit protocol: a selection is sent
// to the provider, the proposal is held as a pending action for preview and
// only an explicit apply writes it into the document.
package editor

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
)

const (
	// MinSelectionLength is the shortest selection, in runes, an action accepts
	MinSelectionLength = 3
	// DefaultExpiry is how long a pending action can still be applied
	DefaultExpiry = 5 * time.Minute
	// contextRunes is how much surrounding text is sent with a selection
	contextRunes = 400
)

// ErrBusy is returned when an action is requested while another is in flight
var ErrBusy = &apperr.Error{Kind: apperr.KindConflict, Message: "Aguarde a conclusão da ação em andamento"}

// ErrSelectionChanged is returned when the target text no longer matches the
// text the action was computed from
var ErrSelectionChanged = &apperr.Error{Kind: apperr.KindConflict, Message: "O trecho selecionado foi alterado. Solicite a ação novamente."}

type ActionKind string

const (
	ActionRewrite      ActionKind = "rewrite"
	ActionExpand       ActionKind = "expand"
	ActionShorten      ActionKind = "shorten"
	ActionFormalize    ActionKind = "formalize"
	ActionCite         ActionKind = "cite"
	ActionCreateTopic  ActionKind = "create_topic"
	ActionCreateClaims ActionKind = "create_claims"
)

var kindInstructions = map[ActionKind]ai.Instruction{
	ActionRewrite:      ai.InstructionImprove,
	ActionExpand:       ai.InstructionExpand,
	ActionShorten:      ai.InstructionSimplify,
	ActionFormalize:    ai.InstructionFormalize,
	ActionCite:         ai.InstructionCustom,
	ActionCreateTopic:  ai.InstructionCustom,
	ActionCreateClaims: ai.InstructionCustom,
}

var kindDirectives = map[ActionKind]string{
	ActionCite:         "Complemente o trecho com a citação de jurisprudência pertinente (tribunal, número do processo, relator e data do julgamento).",
	ActionCreateTopic:  "Transforme o trecho em um tópico de petição, com título em caixa alta seguido da fundamentação.",
	ActionCreateClaims: "Transforme o trecho na seção de pedidos da petição, com os pedidos enumerados em alíneas.",
}

func (k ActionKind) Valid() bool {
	_, ok := kindInstructions[k]
	return ok
}

// Kinds lists every action kind
func Kinds() []ActionKind {
	return []ActionKind{ActionRewrite, ActionExpand, ActionShorten, ActionFormalize, ActionCite, ActionCreateTopic, ActionCreateClaims}
}

// rewriteRequest maps the action to a provider rewrite. A custom text on
// rewrite replaces the default improve instruction.
func (k ActionKind) rewriteRequest(text, custom, context string) ai.RewriteRequest {
	req := ai.RewriteRequest{Text: text, Instruction: kindInstructions[k], Context: context}
	if d, ok := kindDirectives[k]; ok {
		req.Custom = d
	}
	if k == ActionRewrite && strings.TrimSpace(custom) != "" {
		req.Instruction = ai.InstructionCustom
		req.Custom = strings.TrimSpace(custom)
	}
	return req
}

// PendingAction is a provider proposal awaiting apply or discard
type PendingAction struct {
	ID        string     `json:"actionId"`
	Kind      ActionKind `json:"action"`
	Original  string     `json:"original"`
	Result    string     `json:"result"`
	Preview   bool       `json:"preview"`
	Provider  string     `json:"provider"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`

	rng *Range
}

func newPending(kind ActionKind, original, result, provider string, now time.Time, expiry time.Duration) *PendingAction {
	return &PendingAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Original:  original,
		Result:    result,
		Preview:   true,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(expiry),
	}
}

// Expired reports whether the action can no longer be applied at now
func (a *PendingAction) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

func (a *PendingAction) snapshot() *PendingAction {
	cp := *a
	cp.rng = nil
	return &cp
}

func validateKind(kind ActionKind) error {
	if !kind.Valid() {
		return apperr.Validation("Ação inválida", apperr.FieldError{Field: "action", Message: "Ação não suportada"})
	}
	return nil
}

func validateSelection(text string) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinSelectionLength {
		return apperr.Validation("Selecione um trecho maior",
			apperr.FieldError{Field: "text", Message: "Selecione ao menos 3 caracteres"})
	}
	return nil
}
