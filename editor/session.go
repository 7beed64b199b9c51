package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/metrics"
	"github.com/luantaraschi/petichat-definitive/service"
)

// State is the position of a session in the inline action protocol
type State string

const (
	StateIdle       State = "idle"
	StateRequested  State = "requested"
	StatePreviewing State = "previewing"
	StateApplied    State = "applied"
	StateDiscarded  State = "discarded"
)

// RequestInput selects [From, To) of the buffer for one action. Custom is
// an optional free-text instruction for ActionRewrite.
type RequestInput struct {
	Kind   ActionKind
	From   int
	To     int
	Custom string
}

// Session runs the inline action protocol over one buffer. At most one
// action is in flight and at most one proposal is pending; the buffer is
// only written by Apply.
type Session struct {
	mu        sync.Mutex
	buf       *Buffer
	providers service.ProviderResolver
	provider  string
	expiry    time.Duration
	now       func() time.Time
	log       *logger.Logger
	onPreview func(ctx context.Context, a *PendingAction)

	state   State
	outcome State
	busy    bool
	pending *PendingAction
}

type SessionOption func(*Session)

// SessionWithProvider selects the provider by name; empty uses the default
func SessionWithProvider(name string) SessionOption {
	return func(s *Session) { s.provider = name }
}

func SessionWithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// SessionWithExpiry overrides DefaultExpiry
func SessionWithExpiry(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.expiry = d
		}
	}
}

func SessionWithLogger(l *logger.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// SessionOnPreview is called with every new proposal
func SessionOnPreview(fn func(ctx context.Context, a *PendingAction)) SessionOption {
	return func(s *Session) { s.onPreview = fn }
}

func NewSession(buf *Buffer, providers service.ProviderResolver, opts ...SessionOption) *Session {
	s := &Session{
		buf:       buf,
		providers: providers,
		expiry:    DefaultExpiry,
		now:       time.Now,
		log:       logger.Nop(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Buffer() *Buffer { return s.buf }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome is how the last action ended: applied, discarded, or empty
func (s *Session) Outcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// finishLocked records the outcome and returns the session to idle
func (s *Session) finishLocked(outcome State) {
	s.clearLocked()
	s.outcome = outcome
	s.state = StateIdle
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Pending returns a copy of the pending action, or nil
func (s *Session) Pending() *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	return s.pending.snapshot()
}

// Request asks the provider to transform the selection and holds the result
// as the pending action. A proposal still pending is replaced.
func (s *Session) Request(ctx context.Context, in RequestInput) (*PendingAction, error) {
	if err := validateKind(in.Kind); err != nil {
		return nil, err
	}
	if s.providers == nil {
		return nil, errors.New("AI provider registry not set")
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	rng, err := s.buf.Track(in.From, in.To)
	if err != nil {
		s.mu.Unlock()
		return nil, apperr.Validation("Seleção inválida", apperr.FieldError{Field: "position", Message: "Posição fora do documento"})
	}
	original := rng.Text()
	if err := validateSelection(original); err != nil {
		rng.Release()
		s.mu.Unlock()
		return nil, err
	}
	if s.pending != nil {
		metrics.InlineAction(string(s.pending.Kind), "replaced")
		s.clearLocked()
	}
	s.busy = true
	s.state = StateRequested
	req := in.Kind.rewriteRequest(original, in.Custom, s.surrounding(in.From, in.To))
	s.mu.Unlock()
	metrics.InlineAction(string(in.Kind), "requested")

	result, providerName, err := s.rewrite(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		rng.Release()
		s.state = StateIdle
		metrics.InlineAction(string(in.Kind), "failed")
		s.log.Warn("Inline action failed", "action", in.Kind, "error", err)
		return nil, err
	}

	a := newPending(in.Kind, original, result, providerName, s.now(), s.expiry)
	a.rng = rng
	s.pending = a
	s.state = StatePreviewing
	metrics.InlineAction(string(in.Kind), "previewed")

	out := a.snapshot()
	if s.onPreview != nil {
		s.onPreview(ctx, out)
	}
	return out, nil
}

func (s *Session) rewrite(ctx context.Context, req ai.RewriteRequest) (string, string, error) {
	p, err := s.providers.Provider(s.provider)
	if err != nil {
		return "", "", err
	}
	out, err := p.RewriteText(ctx, req)
	if err != nil {
		return "", "", err
	}
	return out, p.Name(), nil
}

// surrounding returns text around [from, to) for provider context
func (s *Session) surrounding(from, to int) string {
	start := max(from-contextRunes, 0)
	end := min(to+contextRunes, s.buf.Len())
	text, err := s.buf.Slice(start, end)
	if err != nil {
		return ""
	}
	return text
}

// Apply writes the pending result over the live selection range. An expired
// action is dropped and fails with a stale action error, leaving the buffer
// untouched.
func (s *Session) Apply(actionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.pending
	if a == nil || a.ID != actionID {
		return "", apperr.NotFound("Ação")
	}
	if a.Expired(s.now()) {
		s.finishLocked(StateDiscarded)
		metrics.InlineAction(string(a.Kind), "expired")
		return "", apperr.StaleAction(actionID)
	}
	if err := s.buf.Replace(a.rng, a.Result); err != nil {
		return "", err
	}
	s.finishLocked(StateApplied)
	metrics.InlineAction(string(a.Kind), "applied")
	return s.buf.String(), nil
}

// Discard drops the pending action without touching the buffer
func (s *Session) Discard(actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.pending
	if a == nil || a.ID != actionID {
		return apperr.NotFound("Ação")
	}
	s.finishLocked(StateDiscarded)
	metrics.InlineAction(string(a.Kind), "discarded")
	return nil
}

func (s *Session) clearLocked() {
	if s.pending != nil {
		s.pending.rng.Release()
		s.pending = nil
	}
}
