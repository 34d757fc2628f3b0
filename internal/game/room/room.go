// Package room implements the per-room state machine (membership,
// readiness, chat, delivery) and the registry of live rooms.
package room

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ludoteca/ludoteca/internal/protocol"
)

// Status is a room's lifecycle phase. It only ever advances
// waiting → playing → finished.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// DefaultChatLimit caps the retained chat log when no explicit limit is
// configured.
const DefaultChatLimit = 100

// Conn is a non-owning handle for delivering serialized frames to one
// connected client. The dispatcher owns the underlying connection; a failed
// or closed peer surfaces as a Send error, which delivery paths ignore.
type Conn interface {
	Send(data []byte) error
}

// Member is one user's membership record in a room.
type Member struct {
	UserID      string
	DisplayName string

	// conn is nil while the member is disconnected during an active game.
	conn  Conn
	ready bool
}

// Params describes a room at creation time.
type Params struct {
	ID         string
	Code       string
	GameSlug   string
	HostID     string
	MaxPlayers int
	Config     map[string]any
	// ChatLimit caps the chat log; zero means DefaultChatLimit.
	ChatLimit int
}

// Room is a bounded group of connected users cooperating on one instance of
// one game. All methods are safe for concurrent use; every operation on a
// given room is serialized by its mutex.
type Room struct {
	id         string
	code       string
	gameSlug   string
	hostID     string
	maxPlayers int

	mu         sync.Mutex
	status     Status
	config     map[string]any
	members    map[string]*Member
	joinOrder  []string
	chat       []protocol.ChatMessage
	chatLimit  int
	nextChatID int64

	logger *zap.Logger
}

// New creates a waiting room from the given parameters.
//
// Precondition: params.ID, params.HostID must be non-empty; params.MaxPlayers
// must be >= 1; logger must be non-nil.
func New(params Params, logger *zap.Logger) *Room {
	limit := params.ChatLimit
	if limit <= 0 {
		limit = DefaultChatLimit
	}
	return &Room{
		id:         params.ID,
		code:       params.Code,
		gameSlug:   params.GameSlug,
		hostID:     params.HostID,
		maxPlayers: params.MaxPlayers,
		config:     params.Config,
		status:     StatusWaiting,
		members:    make(map[string]*Member),
		chatLimit:  limit,
		logger:     logger,
	}
}

// ID returns the room's identifier.
func (r *Room) ID() string { return r.id }

// Code returns the room's short human-entry join code.
func (r *Room) Code() string { return r.code }

// GameSlug returns the slug of the game this room plays.
func (r *Room) GameSlug() string { return r.gameSlug }

// HostID returns the user id of the room's host.
func (r *Room) HostID() string { return r.hostID }

// Status returns the room's current lifecycle phase.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Config returns the room's game configuration, or nil if none was set.
func (r *Room) Config() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// PlayerCount returns the number of member records, connected or not.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// IsEmpty reports whether the room has no member records.
func (r *Room) IsEmpty() bool {
	return r.PlayerCount() == 0
}

// HasPlayer reports whether the user has a member record in this room.
func (r *Room) HasPlayer(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[userID]
	return ok
}

// PlayerIDs returns the member user ids in join order.
func (r *Room) PlayerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.joinOrder))
	copy(ids, r.joinOrder)
	return ids
}

// AddPlayer admits a user, or rebinds the connection of an existing member
// (reconnection).
//
// Postcondition: Returns true on admission or rebind. Returns false if the
// room is finished, or if a genuinely new user arrives while the room is
// not waiting or is at capacity.
func (r *Room) AddPlayer(userID, displayName string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusFinished {
		return false
	}

	// Reconnection rebinds, regardless of status.
	if existing, ok := r.members[userID]; ok {
		existing.conn = conn
		return true
	}

	if r.status != StatusWaiting {
		return false
	}
	if len(r.members) >= r.maxPlayers {
		return false
	}

	r.members[userID] = &Member{
		UserID:      userID,
		DisplayName: displayName,
		conn:        conn,
	}
	r.joinOrder = append(r.joinOrder, userID)
	return true
}

// RemovePlayer removes a user. During an active game the member record is
// retained with its connection cleared, so a later reconnect resumes the
// same seat.
func (r *Room) RemovePlayer(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusPlaying {
		if m, ok := r.members[userID]; ok {
			m.conn = nil
		}
		return
	}

	if _, ok := r.members[userID]; !ok {
		return
	}
	delete(r.members, userID)
	for i, id := range r.joinOrder {
		if id == userID {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}
}

// SetReady sets a member's ready flag. No-op if the user is not a member.
func (r *Room) SetReady(userID string, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[userID]; ok {
		m.ready = ready
	}
}

// ReadyToStart reports whether the host may start the game.
//
// Policy: the host is implicitly ready; the room needs at least 2 members
// and every non-host member ready.
func (r *Room) ReadyToStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) < 2 {
		return false
	}
	for _, m := range r.members {
		if m.UserID == r.hostID {
			continue
		}
		if !m.ready {
			return false
		}
	}
	return true
}

// MarkPlaying advances waiting → playing.
//
// Postcondition: Returns true iff the transition happened; the status never
// regresses.
func (r *Room) MarkPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusWaiting {
		return false
	}
	r.status = StatusPlaying
	return true
}

// MarkFinished advances playing → finished.
//
// Postcondition: Returns true iff the transition happened; finished is
// terminal.
func (r *Room) MarkFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPlaying {
		return false
	}
	r.status = StatusFinished
	return true
}

// AddChatMessage appends a chat message with the next sequential id and
// truncates the log to the configured limit, evicting oldest entries.
//
// Postcondition: Returns the created message; the log never exceeds the
// limit.
func (r *Room) AddChatMessage(userID, displayName, content string) protocol.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextChatID++
	msg := protocol.ChatMessage{
		ID:          r.nextChatID,
		UserID:      userID,
		DisplayName: displayName,
		Content:     content,
		Timestamp:   time.Now().UnixMilli(),
	}
	r.chat = append(r.chat, msg)
	if len(r.chat) > r.chatLimit {
		r.chat = r.chat[len(r.chat)-r.chatLimit:]
	}
	return msg
}

// ChatHistory returns the retained chat log, oldest first.
func (r *Room) ChatHistory() []protocol.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]protocol.ChatMessage, len(r.chat))
	copy(history, r.chat)
	return history
}

// Snapshot returns the wire-safe projection of the room, players in join
// order.
func (r *Room) Snapshot() protocol.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make([]protocol.PlayerInfo, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		m := r.members[id]
		players = append(players, protocol.PlayerInfo{
			ID:          m.UserID,
			DisplayName: m.DisplayName,
			Ready:       m.ready,
		})
	}

	return protocol.RoomSnapshot{
		ID:         r.id,
		Code:       r.code,
		GameSlug:   r.gameSlug,
		HostID:     r.hostID,
		Status:     string(r.status),
		MaxPlayers: r.maxPlayers,
		Players:    players,
		Config:     r.config,
	}
}

// Broadcast serializes the message once and delivers it to every member
// with a live connection. Delivery failures are skipped silently; the
// disconnect path is how a dead peer is eventually noticed.
func (r *Room) Broadcast(msg protocol.ServerMessage) {
	r.BroadcastExcept(msg, "")
}

// BroadcastExcept is Broadcast, skipping the member with the given user id.
func (r *Room) BroadcastExcept(msg protocol.ServerMessage, excludeUserID string) {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		r.logger.Error("encoding broadcast",
			zap.String("room_id", r.id),
			zap.Error(err),
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.UserID == excludeUserID || m.conn == nil {
			continue
		}
		_ = m.conn.Send(data)
	}
}

// SendTo delivers a message to one member, if connected. Silently drops
// otherwise.
func (r *Room) SendTo(userID string, msg protocol.ServerMessage) {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		r.logger.Error("encoding message",
			zap.String("room_id", r.id),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[userID]
	if !ok || m.conn == nil {
		return
	}
	_ = m.conn.Send(data)
}
