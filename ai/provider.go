// Package ai defines the capability interface the petition workflow uses to
// reach a language model, and its OpenAI, Gemini and deterministic mock backends.
package ai

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/luantaraschi/petichat-definitive/models"
)

// DefaultMaxTheses caps SuggestTheses results when no MaxCount is given
const DefaultMaxTheses = 6

// Provider is the capability surface of a language model backend.
// Implementations must not retry: failures surface as apperr.KindProvider.
type Provider interface {
	Name() string
	SuggestTheses(ctx context.Context, facts string, opts ThesisOptions) ([]ThesisSuggestion, error)
	GenerateDocument(ctx context.Context, in GenerateContext) (*GeneratedDocument, error)
	RewriteText(ctx context.Context, req RewriteRequest) (string, error)
}

type ThesisOptions struct {
	DocumentType models.DocumentType
	LegalArea    string
	MaxCount     int
}

func (o ThesisOptions) max() int {
	if o.MaxCount <= 0 {
		return DefaultMaxTheses
	}
	return o.MaxCount
}

type ThesisSuggestion struct {
	Category models.ThesisCategory `json:"category"`
	Title    string                `json:"title"`
	Content  string                `json:"content"`
}

type ThesisInput struct {
	Category models.ThesisCategory
	Title    string
	Content  string
}

type CitationInput struct {
	Tribunal      string
	ProcessNumber string
	Excerpt       string
}

// GenerateContext is everything a provider needs to draft a document
type GenerateContext struct {
	Facts        string
	DocumentType models.DocumentType
	Theses       []ThesisInput
	Citations    []CitationInput
	ClientName   string
	CaseType     string
}

// GeneratedDocument is a drafted document. ContentHTML always equals
// RenderSections(Sections).
type GeneratedDocument struct {
	Title       string
	ContentHTML string
	Sections    models.DocumentSections
}

// Instruction selects a rewrite transform
type Instruction string

const (
	InstructionImprove   Instruction = "improve"
	InstructionSimplify  Instruction = "simplify"
	InstructionExpand    Instruction = "expand"
	InstructionFormalize Instruction = "formalize"
	InstructionCustom    Instruction = "custom"
)

// Valid reports whether i is a known instruction
func (i Instruction) Valid() bool {
	switch i {
	case InstructionImprove, InstructionSimplify, InstructionExpand, InstructionFormalize, InstructionCustom:
		return true
	}
	return false
}

// RewriteRequest asks for one transform of Text. Custom carries the free-text
// instruction for InstructionCustom; Context is surrounding document text.
type RewriteRequest struct {
	Text        string
	Instruction Instruction
	Custom      string
	Context     string
}

// Directive returns the instruction text sent to the model. A custom
// instruction without text falls back to the literal instruction token.
func (r RewriteRequest) Directive() string {
	if r.Instruction == InstructionCustom {
		if c := strings.TrimSpace(r.Custom); c != "" {
			return c
		}
	}
	return string(r.Instruction)
}

var sectionPolicy = bluemonday.UGCPolicy()

// RenderSections renders ordered sections to the flat HTML stored on a document
func RenderSections(sections models.DocumentSections) string {
	ordered := append(models.DocumentSections(nil), sections...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var b strings.Builder
	for i, s := range ordered {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<section><h2>%s</h2>%s</section>", html.EscapeString(s.Title), s.Content)
	}
	return b.String()
}

// finalizeDocument normalizes provider output: sanitized bodies, orders
// 1..n, stable section ids and ContentHTML derived from the sections.
func finalizeDocument(title string, sections models.DocumentSections) *GeneratedDocument {
	ordered := append(models.DocumentSections(nil), sections...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	for i := range ordered {
		ordered[i].Order = i + 1
		if ordered[i].ID == "" {
			ordered[i].ID = fmt.Sprintf("sec-%d", i+1)
		}
		if ordered[i].Type == "" {
			ordered[i].Type = "content"
		}
		ordered[i].Content = sanitizeBody(ordered[i].Content)
	}
	return &GeneratedDocument{
		Title:       strings.TrimSpace(title),
		Sections:    ordered,
		ContentHTML: RenderSections(ordered),
	}
}

// sanitizeBody strips unsafe markup and wraps plain text paragraphs
func sanitizeBody(body string) string {
	body = strings.TrimSpace(body)
	if !strings.Contains(body, "<") {
		var b strings.Builder
		for _, para := range strings.Split(body, "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				b.WriteString("<p>")
				b.WriteString(html.EscapeString(para))
				b.WriteString("</p>")
			}
		}
		return b.String()
	}
	return sectionPolicy.Sanitize(body)
}

// NormalizeCategory maps model output (pt-BR or English) to a thesis category
func NormalizeCategory(raw string) (models.ThesisCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "preliminary", "preliminar", "preliminares":
		return models.ThesisPreliminary, true
	case "merits", "merit", "merito", "mérito", "meritos", "méritos":
		return models.ThesisMerits, true
	case "claim", "claims", "pedido", "pedidos":
		return models.ThesisClaim, true
	}
	return "", false
}
