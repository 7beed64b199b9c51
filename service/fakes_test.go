package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/repository"
)

type fakeCases struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*models.Case
	docs  *fakeDocuments
}

func newFakeCases() *fakeCases {
	return &fakeCases{cases: make(map[uuid.UUID]*models.Case)}
}

func copyCase(c *models.Case) *models.Case {
	out := *c
	out.CompletedSteps = append(models.StepSet{}, c.CompletedSteps...)
	out.Metadata = models.CaseMetadata{}
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

func (f *fakeCases) Create(_ context.Context, c *models.Case) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.cases[c.ID] = copyCase(c)
	return nil
}

func (f *fakeCases) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok || c.TenantID != tenantID {
		return nil, apperr.NotFound("case")
	}
	return copyCase(c), nil
}

func (f *fakeCases) Update(_ context.Context, c *models.Case) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.cases[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return apperr.NotFound("case")
	}
	c.UpdatedAt = time.Now()
	f.cases[c.ID] = copyCase(c)
	return nil
}

func (f *fakeCases) List(_ context.Context, filter models.CaseFilter) ([]*models.Case, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.Case
	for _, c := range f.cases {
		if c.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.ClientName), strings.ToLower(filter.Search)) {
			continue
		}
		all = append(all, copyCase(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ClientName < all[j].ClientName })
	total := len(all)
	if filter.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (f *fakeCases) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok || c.TenantID != tenantID {
		return apperr.NotFound("case")
	}
	delete(f.cases, id)
	return nil
}

func (f *fakeCases) ArchiveAbandonedDrafts(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.cases {
		if c.Status != models.CaseStatusDraft || !c.UpdatedAt.Before(before) {
			continue
		}
		if f.docs != nil && f.docs.countForCase(c.ID) > 0 {
			continue
		}
		c.Status = models.CaseStatusArchived
		n++
	}
	return n, nil
}

type fakeTheses struct {
	mu     sync.Mutex
	theses []*models.Thesis
}

func (f *fakeTheses) nextIndex(caseID uuid.UUID) int {
	next := 0
	for _, t := range f.theses {
		if t.CaseID == caseID && t.OrderIndex >= next {
			next = t.OrderIndex + 1
		}
	}
	return next
}

func (f *fakeTheses) ReplaceSuggestions(_ context.Context, caseID uuid.UUID, theses []*models.Thesis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.theses[:0]
	for _, t := range f.theses {
		if !(t.CaseID == caseID && t.AIGenerated) {
			kept = append(kept, t)
		}
	}
	f.theses = kept
	next := f.nextIndex(caseID)
	for i, t := range theses {
		t.ID = uuid.New()
		t.CaseID = caseID
		t.OrderIndex = next + i
		cp := *t
		f.theses = append(f.theses, &cp)
	}
	return nil
}

func (f *fakeTheses) Create(_ context.Context, t *models.Thesis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = uuid.New()
	t.OrderIndex = f.nextIndex(t.CaseID)
	cp := *t
	f.theses = append(f.theses, &cp)
	return nil
}

func (f *fakeTheses) ListByCase(_ context.Context, caseID uuid.UUID) ([]*models.Thesis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Thesis
	for _, t := range f.theses {
		if t.CaseID == caseID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (f *fakeTheses) SetSelected(_ context.Context, caseID uuid.UUID, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[uuid.UUID]bool)
	for _, id := range ids {
		want[id] = true
	}
	for _, t := range f.theses {
		if t.CaseID == caseID {
			t.Selected = want[t.ID]
		}
	}
	return nil
}

func (f *fakeTheses) UpdateReview(_ context.Context, caseID, id uuid.UUID, status models.ReviewStatus) (*models.Thesis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.theses {
		if t.CaseID == caseID && t.ID == id {
			t.ReviewStatus = status
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("thesis")
}

type fakeDocuments struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*models.LegalDocument
	versions []*models.DocumentVersion
	seq      time.Time
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{docs: make(map[uuid.UUID]*models.LegalDocument), seq: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func copyDoc(d *models.LegalDocument) *models.LegalDocument {
	out := *d
	out.Sections = append(models.DocumentSections{}, d.Sections...)
	return &out
}

func (f *fakeDocuments) tick() time.Time {
	f.seq = f.seq.Add(time.Second)
	return f.seq
}

func (f *fakeDocuments) countForCase(caseID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.docs {
		if d.CaseID == caseID {
			n++
		}
	}
	return n
}

func (f *fakeDocuments) addVersion(docID uuid.UUID, v *models.DocumentVersion) {
	v.ID = uuid.New()
	v.DocumentID = docID
	v.CreatedAt = f.tick()
	cp := *v
	f.versions = append(f.versions, &cp)
}

func (f *fakeDocuments) Create(_ context.Context, doc *models.LegalDocument, initial *models.DocumentVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ID = uuid.New()
	doc.CreatedAt = f.tick()
	doc.UpdatedAt = doc.CreatedAt
	f.docs[doc.ID] = copyDoc(doc)
	if initial != nil {
		f.addVersion(doc.ID, initial)
	}
	return nil
}

func (f *fakeDocuments) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.LegalDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return nil, apperr.NotFound("document")
	}
	return copyDoc(d), nil
}

func (f *fakeDocuments) LatestForCase(_ context.Context, tenantID, caseID uuid.UUID) (*models.LegalDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.LegalDocument
	for _, d := range f.docs {
		if d.TenantID == tenantID && d.CaseID == caseID && (latest == nil || d.CreatedAt.After(latest.CreatedAt)) {
			latest = d
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("document")
	}
	return copyDoc(latest), nil
}

func (f *fakeDocuments) List(_ context.Context, filter models.DocumentFilter) ([]*models.LegalDocument, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LegalDocument
	for _, d := range f.docs {
		if d.TenantID != filter.TenantID {
			continue
		}
		if filter.CaseID != nil && d.CaseID != *filter.CaseID {
			continue
		}
		out = append(out, copyDoc(d))
	}
	return out, len(out), nil
}

func (f *fakeDocuments) Mutate(_ context.Context, tenantID, id uuid.UUID, fn repository.DocumentMutation) (*models.LegalDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return nil, apperr.NotFound("document")
	}
	working := copyDoc(d)
	version, err := fn(working)
	if err != nil {
		return nil, err
	}
	if version != nil {
		f.addVersion(id, version)
	}
	working.UpdatedAt = f.tick()
	f.docs[id] = copyDoc(working)
	return working, nil
}

func (f *fakeDocuments) ListVersions(_ context.Context, tenantID, documentID uuid.UUID, limit, offset int) ([]*models.DocumentVersion, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok || d.TenantID != tenantID {
		return nil, 0, nil
	}
	var out []*models.DocumentVersion
	for _, v := range f.versions {
		if v.DocumentID == documentID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeDocuments) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.TenantID != tenantID {
		return apperr.NotFound("document")
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeDocuments) versionsOf(id uuid.UUID) []*models.DocumentVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DocumentVersion
	for _, v := range f.versions {
		if v.DocumentID == id {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

type fakeAudit struct {
	mu     sync.Mutex
	logs   []*models.AuditLog
	events []*models.MetricsEvent
}

func (f *fakeAudit) LogAI(_ context.Context, l *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
	return nil
}

func (f *fakeAudit) Track(_ context.Context, e *models.MetricsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAudit) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Name)
	}
	return out
}

type fakeJuris struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*models.Jurisprudence
	chunks    map[uuid.UUID]*models.JurisprudenceChunk
	citations []*models.Citation
}

func newFakeJuris() *fakeJuris {
	return &fakeJuris{items: make(map[uuid.UUID]*models.Jurisprudence), chunks: make(map[uuid.UUID]*models.JurisprudenceChunk)}
}

func (f *fakeJuris) InsertIfAbsent(_ context.Context, j *models.Jurisprudence) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.DedupKey() == j.DedupKey() {
			j.ID = existing.ID
			return false, nil
		}
	}
	j.ID = uuid.New()
	cp := *j
	f.items[j.ID] = &cp
	return true, nil
}

func (f *fakeJuris) GetByID(_ context.Context, id uuid.UUID) (*models.Jurisprudence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return nil, apperr.NotFound("jurisprudence")
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJuris) Search(_ context.Context, filter models.JurisprudenceFilter) ([]*models.Jurisprudence, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Jurisprudence
	for _, j := range f.items {
		if filter.Tribunal != "" && j.Tribunal != filter.Tribunal {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(j.Summary), strings.ToLower(filter.Query)) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeJuris) Tribunals(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, j := range f.items {
		if !seen[j.Tribunal] {
			seen[j.Tribunal] = true
			out = append(out, j.Tribunal)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeJuris) UpsertChunks(_ context.Context, chunks []*models.JurisprudenceChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		cp := *c
		f.chunks[c.ID] = &cp
	}
	return nil
}

func (f *fakeJuris) GetChunks(_ context.Context, ids []uuid.UUID) ([]*models.JurisprudenceChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.JurisprudenceChunk
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeJuris) PendingChunks(_ context.Context, limit int) ([]*models.JurisprudenceChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.JurisprudenceChunk
	for _, c := range f.chunks {
		if c.Embedding == nil && len(out) < limit {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeJuris) SetEmbedding(_ context.Context, chunkID uuid.UUID, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chunks[chunkID]
	if !ok {
		return apperr.NotFound("chunk")
	}
	c.Embedding = embedding
	return nil
}

func (f *fakeJuris) SearchSimilar(_ context.Context, embedding []float32, tribunal string, limit int) ([]*models.JurisprudenceChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.JurisprudenceChunk
	for _, c := range f.chunks {
		if c.Embedding == nil {
			continue
		}
		if tribunal != "" && f.items[c.JurisprudenceID].Tribunal != tribunal {
			continue
		}
		var dot float64
		for i := range embedding {
			dot += float64(embedding[i]) * float64(c.Embedding[i])
		}
		cp := *c
		cp.Distance = 1 - dot
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJuris) AddCitation(_ context.Context, c *models.Citation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.New()
	cp := *c
	f.citations = append(f.citations, &cp)
	return nil
}

func (f *fakeJuris) ListCitations(_ context.Context, caseID uuid.UUID) ([]*models.Citation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Citation
	for _, c := range f.citations {
		if c.CaseID == caseID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAuth struct {
	mu          sync.Mutex
	users       map[string]*models.User
	memberships map[uuid.UUID]*models.Membership
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{users: map[string]*models.User{}, memberships: map[uuid.UUID]*models.Membership{}}
}

func (f *fakeAuth) Signup(_ context.Context, tenant *models.Tenant, user *models.User) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Email]; ok {
		return nil, apperr.Validation("E-mail ou escritório já cadastrado")
	}
	tenant.ID = uuid.New()
	user.ID = uuid.New()
	cp := *user
	f.users[user.Email] = &cp
	m := &models.Membership{ID: uuid.New(), TenantID: tenant.ID, UserID: user.ID, Role: models.RoleOwner}
	f.memberships[user.ID] = m
	return m, nil
}

func (f *fakeAuth) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAuth) PrimaryMembership(_ context.Context, userID uuid.UUID) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[userID]
	if !ok {
		return nil, apperr.NotFound("membership")
	}
	return m, nil
}
