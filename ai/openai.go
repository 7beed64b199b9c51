package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/luantaraschi/petichat-definitive/apperr"
)

const (
	ProviderOpenAI     = "openai"
	defaultOpenAIModel = "gpt-4-turbo-preview"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider drafts through the OpenAI chat completions API
type OpenAIProvider struct {
	client chatCompleter
	model  string
}

// NewOpenAIProvider never fails: a missing key is reported on first use
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	p := &OpenAIProvider{model: model}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

func (p *OpenAIProvider) complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if p.client == nil {
		return "", apperr.Provider(ProviderOpenAI, errors.New("OPENAI_API_KEY is not configured"))
	}
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.4,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperr.Provider(ProviderOpenAI, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperr.Provider(ProviderOpenAI, errEmptyOutput)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) SuggestTheses(ctx context.Context, facts string, opts ThesisOptions) ([]ThesisSuggestion, error) {
	raw, err := p.complete(ctx, thesesPrompt(facts, opts), true)
	if err != nil {
		return nil, err
	}
	theses, err := parseTheses(raw, opts.max())
	if err != nil {
		return nil, apperr.Provider(ProviderOpenAI, err)
	}
	return theses, nil
}

func (p *OpenAIProvider) GenerateDocument(ctx context.Context, in GenerateContext) (*GeneratedDocument, error) {
	raw, err := p.complete(ctx, documentPrompt(in), true)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, apperr.Provider(ProviderOpenAI, err)
	}
	return doc, nil
}

func (p *OpenAIProvider) RewriteText(ctx context.Context, req RewriteRequest) (string, error) {
	raw, err := p.complete(ctx, rewritePrompt(req), false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
