// Package session tracks capture session lifecycle. A manager owns at most
// one active session at a time; starting while active and stopping while idle
// are both rejected so callers cannot corrupt session accounting.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"netscope.xyz/netscope/internal/core"
)

// Recorder is the slice of the store the manager needs to persist session
// lifecycle transitions.
type Recorder interface {
	SaveSession(sess core.Session) error
	CountSession(id string) (int64, error)
	MarkSessionDegraded(id string) error
}

// Manager is the session state machine. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	store   Recorder
	current *core.Session
}

func NewManager(store Recorder) *Manager {
	return &Manager{store: store}
}

// Start opens a new capture session with the given filter. It fails with
// core.ErrAlreadyCapturing if a session is already active.
func (m *Manager) Start(filter core.FilterConfig) (core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return core.Session{}, fmt.Errorf("%w: session %s is active", core.ErrAlreadyCapturing, m.current.ID)
	}

	sess := core.Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Filter:    filter,
	}
	if err := m.store.SaveSession(sess); err != nil {
		return core.Session{}, err
	}
	m.current = &sess
	slog.Info("session started", "session_id", sess.ID, "protocol", filter.Protocol)
	return sess, nil
}

// Stop closes the active session. The packet count is frozen from the store
// at stop time so the summary reflects exactly what was persisted. It fails
// with core.ErrNotCapturing if no session is active.
func (m *Manager) Stop() (core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return core.Session{}, core.ErrNotCapturing
	}

	sess := *m.current
	sess.EndTime = time.Now()

	count, err := m.store.CountSession(sess.ID)
	if err != nil {
		return core.Session{}, err
	}
	sess.PacketCount = count

	if err := m.store.SaveSession(sess); err != nil {
		return core.Session{}, err
	}
	m.current = nil
	slog.Info("session stopped",
		"session_id", sess.ID,
		"packets", sess.PacketCount,
		"duration", sess.EndTime.Sub(sess.StartTime).Round(time.Millisecond),
	)
	return sess, nil
}

// Tag stamps the active session id onto the record. While idle the record is
// returned untagged.
func (m *Manager) Tag(rec core.PacketRecord) core.PacketRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return rec
	}
	return rec.WithSession(m.current.ID)
}

// Current returns a copy of the active session, if any.
func (m *Manager) Current() (core.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return core.Session{}, false
	}
	return *m.current, true
}

// Active reports whether a session is in progress.
func (m *Manager) Active() bool {
	_, ok := m.Current()
	return ok
}

// Degrade flags the active session as having lost data, typically after the
// store exhausted its write retries. Capture continues; the flag only marks
// the session summary as incomplete.
func (m *Manager) Degrade() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.Degraded {
		return
	}
	m.current.Degraded = true
	if err := m.store.MarkSessionDegraded(m.current.ID); err != nil {
		slog.Error("failed to persist degraded flag", "session_id", m.current.ID, "error", err)
	}
	slog.Warn("session degraded, stored data may be incomplete", "session_id", m.current.ID)
}
