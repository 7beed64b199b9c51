package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/models"
)

func TestMockSuggestThesesRespectsMaxCount(t *testing.T) {
	p := NewMockProvider()

	all, err := p.SuggestTheses(context.Background(), "cliente sofreu dano material de R$500", ThesisOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for _, th := range all {
		assert.Contains(t, []models.ThesisCategory{models.ThesisPreliminary, models.ThesisMerits}, th.Category)
	}

	two, err := p.SuggestTheses(context.Background(), "fatos", ThesisOptions{MaxCount: 2})
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestMockGenerateDocumentReferencesCase(t *testing.T) {
	doc, err := NewMockProvider().GenerateDocument(context.Background(), GenerateContext{
		Facts:        "cliente sofreu dano material de R$500",
		DocumentType: models.DocumentPetition,
		ClientName:   "Maria Souza",
		Theses:       []ThesisInput{{Category: models.ThesisMerits, Title: "Dano Material", Content: "Houve dano."}},
		Citations:    []CitationInput{{Tribunal: "STJ", ProcessNumber: "REsp 1.234.567/SP", Excerpt: "Dano presumido."}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Petição Inicial - Maria Souza", doc.Title)
	assert.GreaterOrEqual(t, len(doc.Sections), 1)
	assert.Equal(t, RenderSections(doc.Sections), doc.ContentHTML)
	assert.Contains(t, doc.ContentHTML, "Dano Material")
	assert.Contains(t, doc.ContentHTML, "REsp 1.234.567/SP")
	for i, s := range doc.Sections {
		assert.Equal(t, i+1, s.Order)
	}
}

func TestMockRewriteText(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	out, err := p.RewriteText(ctx, RewriteRequest{Text: "O réu não pagou", Instruction: InstructionFormalize})
	require.NoError(t, err)
	assert.Equal(t, "Destarte, o réu não pagou", out)

	out, err = p.RewriteText(ctx, RewriteRequest{Text: "um dois três quatro", Instruction: InstructionSimplify})
	require.NoError(t, err)
	assert.Equal(t, "um dois.", out)

	out, err = p.RewriteText(ctx, RewriteRequest{Text: "texto", Instruction: InstructionCustom})
	require.NoError(t, err)
	assert.Equal(t, "[Texto reescrito - custom] texto", out)
}

func TestMockEmbedderIsDeterministicAndNormalized(t *testing.T) {
	e := MockEmbedder{}
	vecs, err := e.Embed(context.Background(), []string{"dano moral", "dano moral", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], models.EmbeddingDimensions)
	assert.Equal(t, vecs[0], vecs[1])

	var sum float64
	for _, x := range vecs[0] {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, float32(1), vecs[2][0])
}
