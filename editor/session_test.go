package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/ai"
	"github.com/luantaraschi/petichat-definitive/apperr"
)

const petitionText = "O cliente afirma que o réu não pagou a dívida vencida."

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type blockingProvider struct {
	ai.MockProvider
	started chan struct{}
	release chan struct{}
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *blockingProvider) RewriteText(ctx context.Context, req ai.RewriteRequest) (string, error) {
	p.started <- struct{}{}
	<-p.release
	return p.MockProvider.RewriteText(ctx, req)
}

type failingProvider struct {
	ai.MockProvider
}

func (failingProvider) RewriteText(context.Context, ai.RewriteRequest) (string, error) {
	return "", apperr.Provider(ai.ProviderMock, errors.New("upstream unavailable"))
}

func mockRegistry(opts ...ai.RegistryOption) *ai.Registry {
	return ai.NewRegistry(ai.Settings{DefaultProvider: ai.ProviderMock}, opts...)
}

func newTestSession(t *testing.T, text string, clock *testClock, opts ...ai.RegistryOption) *Session {
	t.Helper()
	return NewSession(NewBuffer(text), mockRegistry(opts...), SessionWithClock(clock.Now))
}

func TestRequestHoldsPreviewWithoutTouchingBuffer(t *testing.T) {
	clock := newTestClock()
	s := newTestSession(t, petitionText, clock)
	from, to := runeSpan(t, petitionText, "o réu não pagou", 0)

	a, err := s.Request(context.Background(), RequestInput{Kind: ActionFormalize, From: from, To: to})
	require.NoError(t, err)
	assert.True(t, a.Preview)
	assert.Equal(t, ActionFormalize, a.Kind)
	assert.Equal(t, "o réu não pagou", a.Original)
	assert.Equal(t, "Destarte, o réu não pagou", a.Result)
	assert.Equal(t, clock.Now().Add(DefaultExpiry), a.ExpiresAt)
	assert.Equal(t, StatePreviewing, s.State())
	assert.Equal(t, petitionText, s.Buffer().String())

	require.NoError(t, s.Discard(a.ID))
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, StateDiscarded, s.Outcome())
	assert.Nil(t, s.Pending())
	assert.Equal(t, petitionText, s.Buffer().String())

	again, err := s.Request(context.Background(), RequestInput{Kind: ActionFormalize, From: from, To: to})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, again.ID)
}

func TestApplyReplacesLiveRange(t *testing.T) {
	clock := newTestClock()
	s := newTestSession(t, petitionText, clock)
	from, to := runeSpan(t, petitionText, "o réu não pagou", 0)
	a, err := s.Request(context.Background(), RequestInput{Kind: ActionFormalize, From: from, To: to})
	require.NoError(t, err)

	require.NoError(t, s.Buffer().Insert(0, "DOS FATOS. "))
	clock.Advance(DefaultExpiry)

	out, err := s.Apply(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "DOS FATOS. O cliente afirma que Destarte, o réu não pagou a dívida vencida.", out)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, StateApplied, s.Outcome())
	assert.Nil(t, s.Pending())

	_, err = s.Apply(a.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestApplyTargetsSelectedOccurrence(t *testing.T) {
	text := "O réu não pagou. Depois, o réu não pagou novamente."
	s := newTestSession(t, text, newTestClock())
	from, to := runeSpan(t, text, "o réu não pagou", 0)
	a, err := s.Request(context.Background(), RequestInput{Kind: ActionFormalize, From: from, To: to})
	require.NoError(t, err)

	out, err := s.Apply(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "O réu não pagou. Depois, Destarte, o réu não pagou novamente.", out)
}

func TestApplyAfterExpiryIsStale(t *testing.T) {
	clock := newTestClock()
	s := newTestSession(t, petitionText, clock)
	from, to := runeSpan(t, petitionText, "o réu não pagou", 0)
	a, err := s.Request(context.Background(), RequestInput{Kind: ActionExpand, From: from, To: to})
	require.NoError(t, err)

	clock.Advance(DefaultExpiry + time.Second)
	_, err = s.Apply(a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrStaleAction))
	assert.Equal(t, petitionText, s.Buffer().String())
	assert.Nil(t, s.Pending())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, StateDiscarded, s.Outcome())
}

func TestRequestRejectsShortSelection(t *testing.T) {
	s := newTestSession(t, "ab  c de", newTestClock())
	for _, span := range [][2]int{{0, 2}, {2, 5}, {3, 3}} {
		_, err := s.Request(context.Background(), RequestInput{Kind: ActionRewrite, From: span[0], To: span[1]})
		assert.True(t, errors.Is(err, apperr.ErrValidation), "span %v", span)
	}
	_, err := s.Request(context.Background(), RequestInput{Kind: ActionRewrite, From: 0, To: 99})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = s.Request(context.Background(), RequestInput{Kind: "translate", From: 0, To: 8})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, StateIdle, s.State())
}

func TestRequestWhileBusy(t *testing.T) {
	p := newBlockingProvider()
	s := newTestSession(t, petitionText, newTestClock(), ai.RegistryWithProvider(p))
	from, to := runeSpan(t, petitionText, "o réu não pagou", 0)

	done := make(chan error, 1)
	go func() {
		_, err := s.Request(context.Background(), RequestInput{Kind: ActionFormalize, From: from, To: to})
		done <- err
	}()
	<-p.started
	assert.True(t, s.Busy())
	assert.Equal(t, StateRequested, s.State())

	_, err := s.Request(context.Background(), RequestInput{Kind: ActionShorten, From: from, To: to})
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	close(p.release)
	require.NoError(t, <-done)
	assert.False(t, s.Busy())
	require.NotNil(t, s.Pending())
	assert.Equal(t, ActionFormalize, s.Pending().Kind)
	assert.Equal(t, petitionText, s.Buffer().String())
}

func TestRequestFailureReturnsToIdle(t *testing.T) {
	s := newTestSession(t, petitionText, newTestClock(), ai.RegistryWithProvider(failingProvider{}))
	from, to := runeSpan(t, petitionText, "o réu não pagou", 0)

	_, err := s.Request(context.Background(), RequestInput{Kind: ActionRewrite, From: from, To: to})
	assert.True(t, errors.Is(err, apperr.ErrProvider))
	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Busy())
	assert.Nil(t, s.Pending())
	assert.Equal(t, petitionText, s.Buffer().String())
}

func TestNewRequestReplacesPending(t *testing.T) {
	s := newTestSession(t, petitionText, newTestClock())
	from, to := runeSpan(t, petitionText, "o réu não pagou", 0)
	first, err := s.Request(context.Background(), RequestInput{Kind: ActionFormalize, From: from, To: to})
	require.NoError(t, err)
	second, err := s.Request(context.Background(), RequestInput{Kind: ActionShorten, From: from, To: to})
	require.NoError(t, err)

	_, err = s.Apply(first.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, second.ID, s.Pending().ID)
	assert.Equal(t, petitionText, s.Buffer().String())
}

func TestPreviewHookSeesEveryProposal(t *testing.T) {
	var seen []ActionKind
	s := NewSession(NewBuffer(petitionText), mockRegistry(), SessionOnPreview(func(_ context.Context, a *PendingAction) {
		seen = append(seen, a.Kind)
	}))
	from, to := runeSpan(t, petitionText, "a dívida vencida", 0)
	for _, k := range []ActionKind{ActionCite, ActionCreateClaims} {
		_, err := s.Request(context.Background(), RequestInput{Kind: k, From: from, To: to})
		require.NoError(t, err)
	}
	assert.Equal(t, []ActionKind{ActionCite, ActionCreateClaims}, seen)
}

func TestActionKindsMapToInstructions(t *testing.T) {
	want := map[ActionKind]ai.Instruction{
		ActionRewrite:      ai.InstructionImprove,
		ActionExpand:       ai.InstructionExpand,
		ActionShorten:      ai.InstructionSimplify,
		ActionFormalize:    ai.InstructionFormalize,
		ActionCite:         ai.InstructionCustom,
		ActionCreateTopic:  ai.InstructionCustom,
		ActionCreateClaims: ai.InstructionCustom,
	}
	require.Len(t, Kinds(), len(want))
	for _, k := range Kinds() {
		req := k.rewriteRequest("texto", "", "")
		assert.Equal(t, want[k], req.Instruction, k)
		if req.Instruction == ai.InstructionCustom {
			assert.NotEmpty(t, req.Custom, k)
		}
	}

	req := ActionRewrite.rewriteRequest("texto", "  torne mais persuasivo ", "")
	assert.Equal(t, ai.InstructionCustom, req.Instruction)
	assert.Equal(t, "torne mais persuasivo", req.Directive())
}
