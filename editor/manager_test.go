package editor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/service"
)

func TestManagerSaveCommitsAppliedAction(t *testing.T) {
	clock := newTestClock()
	docs, audit := newMemDocs(), &memAudit{}
	tenant, user := uuid.New(), uuid.New()
	doc := docs.add(tenant, petitionText)
	m := NewManager(docs, mockRegistry(),
		ManagerWithClock(clock.Now),
		ManagerWithAudit(service.NewAuditService(service.AuditWithStore(audit))),
	)
	ctx := context.Background()

	opened, err := m.Open(ctx, tenant, user, doc.ID)
	require.NoError(t, err)
	s, err := m.Get(tenant, user, opened.SessionID)
	require.NoError(t, err)

	unchanged, err := m.Save(ctx, tenant, user, opened.SessionID)
	require.NoError(t, err)
	assert.False(t, unchanged.Changed)
	assert.Empty(t, docs.versions)

	from, to := runeSpan(t, petitionText, "o réu não pagou", 0)
	a, err := s.Request(ctx, RequestInput{Kind: ActionFormalize, From: from, To: to})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, doc.CaseID, *audit.logs[0].CaseID)
	_, err = s.Apply(a.ID)
	require.NoError(t, err)

	saved, err := m.Save(ctx, tenant, user, opened.SessionID)
	require.NoError(t, err)
	assert.True(t, saved.Changed)
	assert.Equal(t, 2, saved.Document.Revision)
	require.NotNil(t, saved.Version)
	assert.Equal(t, petitionText, saved.Version.ContentHTML)
	assert.Equal(t, "O cliente afirma que Destarte, o réu não pagou a dívida vencida.", docs.content(doc.ID))

	require.NoError(t, s.Buffer().Insert(s.Buffer().Len(), " Pede deferimento."))
	saved, err = m.Save(ctx, tenant, user, opened.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Document.Revision)
	assert.Len(t, docs.versions, 2)
}

func TestManagerSaveConflictsWithOtherWriter(t *testing.T) {
	docs := newMemDocs()
	tenant, user := uuid.New(), uuid.New()
	doc := docs.add(tenant, petitionText)
	m := NewManager(docs, mockRegistry())
	ctx := context.Background()

	opened, err := m.Open(ctx, tenant, user, doc.ID)
	require.NoError(t, err)
	_, err = docs.UpdateContent(ctx, tenant, uuid.New(), doc.ID, "conteúdo de outra aba", nil)
	require.NoError(t, err)

	require.NoError(t, opened.Session.Buffer().Insert(0, "Excelentíssimo. "))
	_, err = m.Save(ctx, tenant, user, opened.SessionID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, "conteúdo de outra aba", docs.content(doc.ID))
}

func TestManagerScopesSessions(t *testing.T) {
	docs := newMemDocs()
	tenant, user := uuid.New(), uuid.New()
	doc := docs.add(tenant, petitionText)
	m := NewManager(docs, mockRegistry())
	ctx := context.Background()

	_, err := m.Open(ctx, uuid.New(), user, doc.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	opened, err := m.Open(ctx, tenant, user, doc.ID)
	require.NoError(t, err)
	_, err = m.Get(tenant, uuid.New(), opened.SessionID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = m.Save(ctx, uuid.New(), user, opened.SessionID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	require.NoError(t, m.Close(tenant, user, opened.SessionID))
	assert.Zero(t, m.Len())
}

func TestManagerEvictsIdleSessions(t *testing.T) {
	clock := newTestClock()
	docs := newMemDocs()
	tenant, user := uuid.New(), uuid.New()
	doc := docs.add(tenant, petitionText)
	m := NewManager(docs, mockRegistry(), ManagerWithClock(clock.Now))
	ctx := context.Background()

	stale, err := m.Open(ctx, tenant, user, doc.ID)
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	fresh, err := m.Open(ctx, tenant, user, doc.ID)
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	assert.Equal(t, 1, m.EvictIdle(30*time.Minute))
	_, err = m.Get(tenant, user, stale.SessionID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = m.Get(tenant, user, fresh.SessionID)
	assert.NoError(t, err)
}
