// ABOUTME: Session manager tracking open KSC sessions by ID
// ABOUTME: Opens sessions lazily, lists them for health checks and closes them on shutdown

package session

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/harper/ksc-bridge/internal/rpc"
)

// Journal records session lifecycles and the calls made on them; *db.DB implements it.
type Journal interface {
	CreateSession(sessionID, server string) error
	CloseSession(sessionID string) error
	Observer(sessionID string) rpc.Observer
}

type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	journal  Journal
}

// NewManager creates a manager; journal may be nil.
func NewManager(journal Journal) *Manager {
	return &Manager{sessions: make(map[string]*Session), journal: journal}
}

// Open registers a new session. It does not contact the server.
func (m *Manager) Open(cfg Config) *Session {
	sess := New(cfg)
	if m.journal != nil {
		sess.cfg.Observers = append(slices.Clone(cfg.Observers), m.journal.Observer(sess.ID))
		if err := m.journal.CreateSession(sess.ID, cfg.Transport.BaseURL); err != nil {
			log.Warn("[%s] failed to journal session: %v", sess.ID, err)
		}
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	log.Debug("[%s] registered for %s", sess.ID, cfg.Transport.BaseURL)
	return sess
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session not found: %s", id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.closeSession(ctx, sess)
	return nil
}

func (m *Manager) closeSession(ctx context.Context, sess *Session) {
	sess.Close(ctx)
	if m.journal != nil {
		if err := m.journal.CloseSession(sess.ID); err != nil {
			log.Warn("[%s] failed to journal close: %v", sess.ID, err)
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range all {
		m.closeSession(ctx, sess)
	}
}

// List returns a snapshot of every session ordered by ID.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
