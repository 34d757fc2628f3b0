package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ludoteca/ludoteca/internal/config"
	"github.com/ludoteca/ludoteca/internal/protocol"
)

// Record is the durable projection of a room, as persisted by the
// relational store.
type Record struct {
	ID         string
	Code       string
	GameSlug   string
	HostID     string
	MaxPlayers int
	Config     map[string]any
	Status     string
}

// Store is the durable lookup the manager hydrates non-resident rooms from.
type Store interface {
	// GetRoom returns the persisted room or an error if absent.
	GetRoom(ctx context.Context, roomID string) (Record, error)
}

// Manager is the registry of live rooms and the user → room index.
// At most one room per user at a time. All methods are safe for concurrent
// use.
type Manager struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	playerRooms map[string]string // userID → roomID

	store         Store
	sweepInterval time.Duration
	chatLimit     int
	logger        *zap.Logger

	quit     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a room Manager backed by the given durable store.
//
// Precondition: store and logger must be non-nil.
func NewManager(store Store, cfg config.RoomsConfig, logger *zap.Logger) *Manager {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	chatLimit := cfg.ChatHistoryLimit
	if chatLimit <= 0 {
		chatLimit = DefaultChatLimit
	}
	return &Manager{
		rooms:         make(map[string]*Room),
		playerRooms:   make(map[string]string),
		store:         store,
		sweepInterval: interval,
		chatLimit:     chatLimit,
		logger:        logger,
		quit:          make(chan struct{}),
	}
}

// Start runs the periodic sweep of abandoned rooms. It blocks until Stop is
// called, satisfying the server.Service contract.
func (m *Manager) Start() error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.quit:
			return nil
		}
	}
}

// Stop halts the sweep and clears all in-memory state. Durable storage is
// unaffected. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = make(map[string]*Room)
	m.playerRooms = make(map[string]string)
}

// CreateRoom registers a new in-memory room. Persisting the room durably is
// a collaborator responsibility prior to orchestration.
//
// Precondition: params.ID must not collide with a resident room.
func (m *Manager) CreateRoom(params Params) *Room {
	if params.ChatLimit <= 0 {
		params.ChatLimit = m.chatLimit
	}
	r := New(params, m.logger)

	m.mu.Lock()
	m.rooms[r.ID()] = r
	m.mu.Unlock()

	m.logger.Info("room created",
		zap.String("room_id", r.ID()),
		zap.String("game_slug", r.GameSlug()),
		zap.String("host_id", r.HostID()),
	)
	return r
}

// GetRoom returns the resident room with the given id, or nil.
func (m *Manager) GetRoom(roomID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomID]
}

// GetRoomByCode returns the resident room with the given join code, or nil.
func (m *Manager) GetRoomByCode(code string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		if r.Code() == code {
			return r
		}
	}
	return nil
}

// GetPlayerRoom returns the room the user is currently tracked in, or nil.
func (m *Manager) GetPlayerRoom(userID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.playerRooms[userID]
	if !ok {
		return nil
	}
	return m.rooms[roomID]
}

// JoinRoom admits a user to the room with the given id, evicting them from
// any room they are currently in. If the room is not resident it is
// hydrated from the durable store; hydration only succeeds when the
// persisted status is waiting.
//
// Postcondition: Returns the joined room, or nil if the room is absent,
// full, finished, or otherwise not joinable. On nil, no mapping was
// recorded.
func (m *Manager) JoinRoom(ctx context.Context, roomID, userID, displayName string, conn Conn) *Room {
	m.LeaveCurrentRoom(userID)

	m.mu.RLock()
	r := m.rooms[roomID]
	m.mu.RUnlock()

	if r == nil {
		// Blocking store read happens outside the registry lock so other
		// rooms' traffic is unaffected.
		rec, err := m.store.GetRoom(ctx, roomID)
		if err != nil {
			m.logger.Debug("room hydration failed",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
			return nil
		}
		if rec.Status != string(StatusWaiting) {
			return nil
		}

		m.mu.Lock()
		// Another join may have hydrated the room while we were reading.
		if existing := m.rooms[roomID]; existing != nil {
			r = existing
		} else {
			r = New(Params{
				ID:         rec.ID,
				Code:       rec.Code,
				GameSlug:   rec.GameSlug,
				HostID:     rec.HostID,
				MaxPlayers: rec.MaxPlayers,
				Config:     rec.Config,
				ChatLimit:  m.chatLimit,
			}, m.logger)
			m.rooms[roomID] = r
		}
		m.mu.Unlock()

		m.logger.Info("room hydrated",
			zap.String("room_id", roomID),
			zap.String("game_slug", rec.GameSlug),
		)
	}

	if !r.AddPlayer(userID, displayName, conn) {
		return nil
	}

	m.mu.Lock()
	m.playerRooms[userID] = roomID
	m.mu.Unlock()
	return r
}

// LeaveCurrentRoom removes the user from the room they are tracked in.
// During an active game the member record and the user → room mapping are
// both retained so a later reconnect resolves to the same room, and no
// player-left notice is broadcast.
func (m *Manager) LeaveCurrentRoom(userID string) {
	m.mu.Lock()
	roomID, ok := m.playerRooms[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	r := m.rooms[roomID]
	m.mu.Unlock()

	if r != nil {
		r.RemovePlayer(userID)

		if r.Status() != StatusPlaying {
			r.Broadcast(protocol.NewPlayerLeft(userID))

			if r.IsEmpty() {
				m.mu.Lock()
				delete(m.rooms, roomID)
				m.mu.Unlock()
				m.logger.Info("room evicted",
					zap.String("room_id", roomID),
				)
			}
		}
	}

	if r == nil || r.Status() != StatusPlaying {
		m.mu.Lock()
		delete(m.playerRooms, userID)
		m.mu.Unlock()
	}
}

// Sweep evicts every resident room that is empty and not playing. Catches
// rooms the empty-on-leave path missed.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, r := range m.rooms {
		if r.IsEmpty() && r.Status() != StatusPlaying {
			delete(m.rooms, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Info("sweep evicted rooms",
			zap.Int("count", evicted),
		)
	}
}

// RoomCount returns the number of resident rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
