package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/surgtrack/curator/internal/config"
	"github.com/surgtrack/curator/internal/remote"
)

// Manager enforces the single-session rule: at most one live session per
// process. Opening a new session supersedes the previous one, whose pending
// operations fail with ErrClosed.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Open connects to the configured document and returns the live session.
// Any previously open session is closed first, even when the new open
// fails.
func (m *Manager) Open(ctx context.Context, cfg config.Config, rem remote.Store) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.markClosed()
		m.logger.WarnContext(ctx, "Superseded open session", "document", m.current.cfg.DocumentPath)
		m.current = nil
	}
	s, err := open(ctx, cfg, rem, m.logger, time.Now)
	if err != nil {
		return nil, err
	}
	s.release = func() { m.release(s) }
	m.current = s
	return s, nil
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
}
