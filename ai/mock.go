package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/luantaraschi/petichat-definitive/models"
)

const ProviderMock = "mock"

// MockProvider returns fixed pt-BR content. It backs local development and tests.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (MockProvider) Name() string { return ProviderMock }

var mockTheses = []ThesisSuggestion{
	{
		Category: models.ThesisPreliminary,
		Title:    "Ilegitimidade Passiva",
		Content:  "A parte ré não possui legitimidade para figurar no polo passivo da demanda, nos termos do art. 17 do CPC.",
	},
	{
		Category: models.ThesisPreliminary,
		Title:    "Prescrição",
		Content:  "A pretensão encontra-se fulminada pela prescrição, conforme art. 206 do Código Civil.",
	},
	{
		Category: models.ThesisMerits,
		Title:    "Responsabilidade Civil Objetiva",
		Content:  "Configura-se a responsabilidade objetiva do fornecedor, nos termos do art. 14 do CDC, independentemente de culpa.",
	},
	{
		Category: models.ThesisMerits,
		Title:    "Dano Moral Configurado",
		Content:  "Os fatos narrados ultrapassam o mero dissabor e configuram dano moral indenizável, conforme arts. 186 e 927 do Código Civil.",
	},
}

func (MockProvider) SuggestTheses(ctx context.Context, facts string, opts ThesisOptions) ([]ThesisSuggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := opts.max()
	if n > len(mockTheses) {
		n = len(mockTheses)
	}
	return append([]ThesisSuggestion(nil), mockTheses[:n]...), nil
}

func (MockProvider) GenerateDocument(ctx context.Context, in GenerateContext) (*GeneratedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subject := in.ClientName
	if subject == "" {
		subject = in.CaseType
	}
	title := in.DocumentType.Label()
	if subject != "" {
		title += " - " + subject
	}

	sections := models.DocumentSections{
		{Type: "header", Title: "Qualificação das Partes", Content: fmt.Sprintf("%s, já qualificado(a) nos autos, vem respeitosamente propor a presente ação.", orDefault(in.ClientName, "O(A) autor(a)"))},
		{Type: "facts", Title: "Dos Fatos", Content: in.Facts},
	}
	for _, t := range in.Theses {
		sections = append(sections, models.DocumentSection{Type: string(t.Category), Title: t.Title, Content: t.Content})
	}
	if len(in.Citations) > 0 {
		var b strings.Builder
		for _, c := range in.Citations {
			fmt.Fprintf(&b, "%s, %s: %s\n\n", c.Tribunal, c.ProcessNumber, c.Excerpt)
		}
		sections = append(sections, models.DocumentSection{Type: "jurisprudence", Title: "Da Jurisprudência", Content: b.String()})
	}
	sections = append(sections, models.DocumentSection{
		Type:    "claims",
		Title:   "Dos Pedidos",
		Content: "Diante do exposto, requer a procedência integral dos pedidos.",
	})
	for i := range sections {
		sections[i].Order = i + 1
	}
	return finalizeDocument(title, sections), nil
}

func (MockProvider) RewriteText(ctx context.Context, req RewriteRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(req.Text)
	switch req.Instruction {
	case InstructionSimplify:
		words := strings.Fields(text)
		half := (len(words) + 1) / 2
		return strings.TrimSuffix(strings.Join(words[:half], " "), ".") + ".", nil
	case InstructionFormalize:
		return "Destarte, " + lowerFirst(text), nil
	case InstructionExpand:
		return text + " Ademais, tal circunstância encontra amparo na legislação vigente e na jurisprudência consolidada dos tribunais pátrios.", nil
	}
	return fmt.Sprintf("[Texto reescrito - %s] %s", req.Directive(), text), nil
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
