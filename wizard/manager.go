package wizard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/logger"
)

// DefaultSessionTTL is how long an untouched session is kept
const DefaultSessionTTL = 2 * time.Hour

// Manager keeps wizard sessions by id. Each session belongs to the user
// that started it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	backend  Backend
	ttl      time.Duration
	now      func() time.Time
	log      *logger.Logger
}

type entry struct {
	session  *Session
	tenantID uuid.UUID
	userID   uuid.UUID
	lastUsed time.Time
}

type ManagerOption func(*Manager)

func ManagerWithTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func ManagerWithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func ManagerWithLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*entry),
		backend:  backend,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "WizardManager")
	return m
}

// Start opens a new session for the user
func (m *Manager) Start(tenantID, userID uuid.UUID, opts ...Option) (string, *Session) {
	id := uuid.NewString()
	opts = append([]Option{WithLogger(m.log.With("session_id", id))}, opts...)
	s := NewSession(tenantID, userID, m.backend, opts...)

	m.mu.Lock()
	m.sessions[id] = &entry{session: s, tenantID: tenantID, userID: userID, lastUsed: m.now()}
	m.mu.Unlock()
	return id, s
}

// Get returns the caller's session. Sessions of other users are not found.
func (m *Manager) Get(tenantID, userID uuid.UUID, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.tenantID != tenantID || e.userID != userID {
		return nil, apperr.NotFound("Sessão do assistente")
	}
	e.lastUsed = m.now()
	return e.session, nil
}

// End closes and forgets the caller's session
func (m *Manager) End(tenantID, userID uuid.UUID, id string) error {
	s, err := m.Get(tenantID, userID, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	s.Close()
	return nil
}

// EvictIdle closes sessions untouched for longer than the TTL
func (m *Manager) EvictIdle() int {
	m.mu.Lock()
	cutoff := m.now().Add(-m.ttl)
	var evicted []*Session
	for id, e := range m.sessions {
		if e.lastUsed.Before(cutoff) {
			evicted = append(evicted, e.session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}
	if len(evicted) > 0 {
		m.log.Info("Evicted idle wizard sessions", "count", len(evicted))
	}
	return len(evicted)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
