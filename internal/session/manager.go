package session

import (
	"errors"
	"sync"
	"time"

	"pix-deposit-go/internal/models"

	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// NotifierFactory builds the notifier for a new session. It receives the
// session id so transports can route events per session.
type NotifierFactory func(sessionId string) Notifier

// Manager tracks the live sessions of a server process
type Manager struct {
	deps     Deps
	cfg      Config
	notifier NotifierFactory

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps, cfg Config, notifier NotifierFactory) *Manager {
	return &Manager{
		deps:     deps,
		cfg:      cfg,
		notifier: notifier,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session for wallet and moves it to amount entry
func (m *Manager) Create(wallet models.WalletContext) (*Session, error) {
	deps := m.deps
	s, err := New(wallet, deps, m.cfg)
	if err != nil {
		return nil, err
	}
	if m.notifier != nil {
		s.deps.Notifier = MultiNotifier{LogNotifier{}, m.notifier(s.id)}
	}
	if err := s.Begin(); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	zap.L().Info("Deposit session created",
		zap.String("session_id", s.id),
		zap.String("address", wallet.Address()))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove closes and forgets the session
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session, used on shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Reap closes and removes sessions that finished more than grace ago and
// returns their ids.
func (m *Manager) Reap(now time.Time, grace time.Duration) []string {
	m.mu.Lock()
	var reaped []*Session
	for id, s := range m.sessions {
		at, ok := s.Finished()
		if !ok || now.Sub(at) < grace {
			continue
		}
		reaped = append(reaped, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(reaped))
	for _, s := range reaped {
		s.Close()
		ids = append(ids, s.id)
	}
	return ids
}
