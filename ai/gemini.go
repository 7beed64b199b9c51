package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/luantaraschi/petichat-definitive/apperr"
)

const (
	ProviderGemini     = "gemini"
	defaultGeminiModel = "gemini-1.5-pro"
)

// geminiConn lazily dials the Gemini API once and is shared by the
// provider and the embedder.
type geminiConn struct {
	apiKey string
	once   sync.Once
	client *genai.Client
	err    error
}

func (c *geminiConn) get() (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, apperr.Provider(ProviderGemini, errors.New("GEMINI_API_KEY is not configured"))
	}
	c.once.Do(func() {
		c.client, c.err = genai.NewClient(context.Background(), option.WithAPIKey(c.apiKey))
	})
	if c.err != nil {
		return nil, apperr.Provider(ProviderGemini, c.err)
	}
	return c.client, nil
}

func (c *geminiConn) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GeminiProvider drafts through Google's Gemini models
type GeminiProvider struct {
	conn  *geminiConn
	model string
}

// NewGeminiProvider never fails: a missing key is reported on first use
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return newGeminiProvider(&geminiConn{apiKey: apiKey}, model)
}

func newGeminiProvider(conn *geminiConn, model string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{conn: conn, model: model}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

func (p *GeminiProvider) Close() error { return p.conn.Close() }

func (p *GeminiProvider) generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	client, err := p.conn.get()
	if err != nil {
		return "", err
	}
	model := client.GenerativeModel(p.model)
	model.SetTemperature(0.4)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	if jsonMode {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", apperr.Provider(ProviderGemini, err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", apperr.Provider(ProviderGemini, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", apperr.Provider(ProviderGemini, errEmptyOutput)
	}
	return b.String(), nil
}

func (p *GeminiProvider) SuggestTheses(ctx context.Context, facts string, opts ThesisOptions) ([]ThesisSuggestion, error) {
	raw, err := p.generate(ctx, thesesPrompt(facts, opts), true)
	if err != nil {
		return nil, err
	}
	theses, err := parseTheses(raw, opts.max())
	if err != nil {
		return nil, apperr.Provider(ProviderGemini, err)
	}
	return theses, nil
}

func (p *GeminiProvider) GenerateDocument(ctx context.Context, in GenerateContext) (*GeneratedDocument, error) {
	raw, err := p.generate(ctx, documentPrompt(in), true)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, apperr.Provider(ProviderGemini, err)
	}
	return doc, nil
}

func (p *GeminiProvider) RewriteText(ctx context.Context, req RewriteRequest) (string, error) {
	raw, err := p.generate(ctx, rewritePrompt(req), false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
