package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/metrics"
)

// Settings selects and configures providers
type Settings struct {
	DefaultProvider string

	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string

	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbeddingModel string
}

// Registry resolves providers by name. It is built once at process start and
// handed to every component that needs AI; each name is constructed once.
type Registry struct {
	settings Settings
	log      *logger.Logger

	mu        sync.Mutex
	providers map[string]Provider
	embedders map[string]Embedder
	gemini    *geminiConn
	overrides map[string]Provider
}

type RegistryOption func(*Registry)

// RegistryWithLogger sets the logger
func RegistryWithLogger(l *logger.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// RegistryWithProvider registers a ready-made provider under its name
func RegistryWithProvider(p Provider) RegistryOption {
	return func(r *Registry) { r.overrides[canonicalName(p.Name())] = p }
}

func NewRegistry(settings Settings, opts ...RegistryOption) *Registry {
	r := &Registry{
		settings:  settings,
		log:       logger.Nop(),
		providers: make(map[string]Provider),
		embedders: make(map[string]Embedder),
		overrides: make(map[string]Provider),
		gemini:    &geminiConn{apiKey: settings.GeminiAPIKey},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func canonicalName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "google" {
		return ProviderGemini
	}
	return name
}

func (r *Registry) resolveName(name string) string {
	if n := canonicalName(name); n != "" {
		return n
	}
	if n := canonicalName(r.settings.DefaultProvider); n != "" {
		return n
	}
	return ProviderOpenAI
}

// Provider returns the provider for name, falling back to the configured default
func (r *Registry) Provider(name string) (Provider, error) {
	key := r.resolveName(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[key]; ok {
		return p, nil
	}

	var p Provider
	switch {
	case r.overrides[key] != nil:
		p = r.overrides[key]
	case key == ProviderOpenAI:
		p = NewOpenAIProvider(r.settings.OpenAIAPIKey, r.settings.OpenAIModel)
	case key == ProviderGemini:
		p = newGeminiProvider(r.gemini, r.settings.GeminiModel)
	case key == ProviderMock:
		p = NewMockProvider()
	default:
		return nil, apperr.Provider(key, fmt.Errorf("unknown AI provider %q", key))
	}

	p = &instrumented{next: p, log: r.log.With("component", "ai", "provider", key)}
	r.providers[key] = p
	r.log.Info("AI provider initialized", "provider", key)
	return p, nil
}

// Default returns the configured default provider
func (r *Registry) Default() (Provider, error) { return r.Provider("") }

// Embedder returns the embedding backend matching the provider name
func (r *Registry) Embedder(name string) (Embedder, error) {
	key := r.resolveName(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.embedders[key]; ok {
		return e, nil
	}
	var e Embedder
	switch key {
	case ProviderOpenAI:
		e = NewOpenAIEmbedder(r.settings.OpenAIAPIKey, r.settings.OpenAIEmbeddingModel)
	case ProviderGemini:
		e = newGeminiEmbedder(r.gemini, r.settings.GeminiEmbeddingModel)
	case ProviderMock:
		e = MockEmbedder{}
	default:
		return nil, apperr.Provider(key, fmt.Errorf("no embedder for provider %q", key))
	}
	r.embedders[key] = e
	return e, nil
}

// Close releases provider connections
func (r *Registry) Close() error {
	return r.gemini.Close()
}

// instrumented records latency and outcome of every provider call
type instrumented struct {
	next Provider
	log  *logger.Logger
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) observe(op string, start time.Time, err error) {
	metrics.ObserveAI(i.next.Name(), op, start, err)
	if err != nil {
		i.log.Warn("AI call failed", "operation", op, "elapsed", time.Since(start), "error", err)
		return
	}
	i.log.Debug("AI call finished", "operation", op, "elapsed", time.Since(start))
}

func (i *instrumented) SuggestTheses(ctx context.Context, facts string, opts ThesisOptions) (out []ThesisSuggestion, err error) {
	defer func(start time.Time) { i.observe("suggest_theses", start, err) }(time.Now())
	return i.next.SuggestTheses(ctx, facts, opts)
}

func (i *instrumented) GenerateDocument(ctx context.Context, in GenerateContext) (out *GeneratedDocument, err error) {
	defer func(start time.Time) { i.observe("generate_document", start, err) }(time.Now())
	return i.next.GenerateDocument(ctx, in)
}

func (i *instrumented) RewriteText(ctx context.Context, req RewriteRequest) (out string, err error) {
	defer func(start time.Time) { i.observe("rewrite_text", start, err) }(time.Now())
	return i.next.RewriteText(ctx, req)
}
