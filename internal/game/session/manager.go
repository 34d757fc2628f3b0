package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ludoteca/ludoteca/internal/game/room"
)

// ErrUnknownGame is returned when a room's game slug resolves to no
// registered adapter.
var ErrUnknownGame = errors.New("unknown game")

// ErrAlreadyStarted is returned when a room already has a live session.
var ErrAlreadyStarted = errors.New("game already started")

// ErrNotReady is returned when the room does not satisfy the readiness
// quorum.
var ErrNotReady = errors.New("room not ready to start")

// Manager is the registry of live game sessions, keyed by room id.
// All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	registry   *Registry
	recorder   Recorder
	tickPeriod time.Duration
	logger     *zap.Logger
}

// NewManager creates a session Manager over the given adapter registry.
//
// Precondition: registry, recorder, and logger must be non-nil; tickPeriod
// must be positive.
func NewManager(registry *Registry, recorder Recorder, tickPeriod time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		registry:   registry,
		recorder:   recorder,
		tickPeriod: tickPeriod,
		logger:     logger,
	}
}

// StartGame resolves the room's game slug, constructs a session with the
// room's config (falling back to the adapter's default), registers it, and
// starts it.
//
// Postcondition: Returns the running session, or an error without mutating
// the room: ErrUnknownGame for an unresolvable slug, ErrAlreadyStarted if a
// session already exists for the room, ErrNotReady if the readiness quorum
// is not met.
func (m *Manager) StartGame(r *room.Room) (*Session, error) {
	adapter, ok := m.registry.Resolve(r.GameSlug())
	if !ok {
		m.logger.Warn("no adapter for game",
			zap.String("room_id", r.ID()),
			zap.String("game_slug", r.GameSlug()),
		)
		return nil, ErrUnknownGame
	}

	if !r.ReadyToStart() {
		return nil, ErrNotReady
	}

	m.mu.Lock()
	if _, exists := m.sessions[r.ID()]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}

	sess := New(r, adapter, r.Config(), m.tickPeriod, m.recorder, m.logger)
	m.sessions[r.ID()] = sess
	m.mu.Unlock()

	sess.Start()
	return sess, nil
}

// GetSession returns the live session for the room id, or nil.
func (m *Manager) GetSession(roomID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[roomID]
}

// RemoveSession stops and evicts the session for the room id, if any.
func (m *Manager) RemoveSession(roomID string) {
	m.mu.Lock()
	sess := m.sessions[roomID]
	delete(m.sessions, roomID)
	m.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
}

// Reap evicts every finished session and returns the eviction count.
// Rooms are single-use, so a finished session is never consulted again.
func (m *Manager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, sess := range m.sessions {
		if sess.Finished() {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Info("reap evicted sessions",
			zap.Int("count", evicted),
		)
	}
	return evicted
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Destroy stops every session and clears the registry. Used on process
// shutdown.
func (m *Manager) Destroy() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
}
