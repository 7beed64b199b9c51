package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

// Embedder turns texts into fixed-size, L2-normalized vectors
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type embeddingCreator interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder uses the OpenAI embeddings endpoint truncated to models.EmbeddingDimensions
type OpenAIEmbedder struct {
	client embeddingCreator
	model  string
}

func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	e := &OpenAIEmbedder{model: model}
	if apiKey != "" {
		e.client = openai.NewClient(apiKey)
	}
	return e
}

func (e *OpenAIEmbedder) Name() string { return ProviderOpenAI }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.client == nil {
		return nil, apperr.Provider(ProviderOpenAI, errors.New("OPENAI_API_KEY is not configured"))
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: models.EmbeddingDimensions,
	})
	if err != nil {
		return nil, apperr.Provider(ProviderOpenAI, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperr.Provider(ProviderOpenAI, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, apperr.Provider(ProviderOpenAI, fmt.Errorf("embedding index %d out of range", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	return checkVectors(ProviderOpenAI, out)
}

// GeminiEmbedder uses Gemini batch embeddings
type GeminiEmbedder struct {
	conn  *geminiConn
	model string
}

func NewGeminiEmbedder(apiKey, model string) *GeminiEmbedder {
	return newGeminiEmbedder(&geminiConn{apiKey: apiKey}, model)
}

func newGeminiEmbedder(conn *geminiConn, model string) *GeminiEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{conn: conn, model: model}
}

func (e *GeminiEmbedder) Name() string { return ProviderGemini }

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := e.conn.get()
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	em := client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, apperr.Provider(ProviderGemini, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, apperr.Provider(ProviderGemini, fmt.Errorf("got %d embeddings for %d inputs", len(res.Embeddings), len(texts)))
	}
	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		out[i] = emb.Values
	}
	return checkVectors(ProviderGemini, out)
}

// MockEmbedder derives a deterministic vector from the text's tokens
type MockEmbedder struct{}

func (MockEmbedder) Name() string { return ProviderMock }

func (MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, models.EmbeddingDimensions)
		for _, tok := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New64a()
			h.Write([]byte(tok))
			sum := h.Sum64()
			idx := int(sum % uint64(len(vec)))
			if sum&(1<<63) != 0 {
				vec[idx] -= 1
			} else {
				vec[idx] += 1
			}
		}
		if isZero(vec) {
			vec[0] = 1
		}
		out[i] = normalize(vec)
	}
	return out, nil
}

func checkVectors(provider string, vecs [][]float32) ([][]float32, error) {
	for i, v := range vecs {
		if len(v) != models.EmbeddingDimensions {
			return nil, apperr.Provider(provider, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), models.EmbeddingDimensions))
		}
		vecs[i] = normalize(v)
	}
	return vecs, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
