// Package dispatch accepts WebSocket connections, authenticates them, and
// routes decoded client frames to the room and session managers.
package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ludoteca/ludoteca/internal/auth"
	"github.com/ludoteca/ludoteca/internal/config"
	"github.com/ludoteca/ludoteca/internal/game/room"
	"github.com/ludoteca/ludoteca/internal/game/session"
	"github.com/ludoteca/ludoteca/internal/protocol"
)

// joinTimeout bounds the durable-store lookup a join may trigger.
const joinTimeout = 5 * time.Second

// Dispatcher is the WebSocket front door. It implements server.Service:
// Start blocks serving connections until Stop shuts the listener down and
// closes every live socket.
type Dispatcher struct {
	rooms    *room.Manager
	sessions *session.Manager
	verifier auth.Verifier
	logger   *zap.Logger

	upgrader        websocket.Upgrader
	httpServer      *http.Server
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	chatMaxLength   int

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

// New builds a Dispatcher listening on the configured address.
//
// Precondition: verifier, rooms, sessions, and logger must be non-nil.
func New(cfg config.ServerConfig, roomsCfg config.RoomsConfig, verifier auth.Verifier, rooms *room.Manager, sessions *session.Manager, logger *zap.Logger) *Dispatcher {
	chatMax := roomsCfg.ChatMaxLength
	if chatMax <= 0 {
		chatMax = protocol.MaxChatLength
	}

	d := &Dispatcher{
		rooms:           rooms,
		sessions:        sessions,
		verifier:        verifier,
		logger:          logger,
		readTimeout:     cfg.ReadTimeout,
		writeTimeout:    cfg.WriteTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		chatMaxLength:   chatMax,
		conns:           make(map[*wsConn]struct{}),
	}
	d.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(cfg.AllowedOrigins),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.handleWS)
	d.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}
	return d
}

// originChecker builds the upgrade origin policy. An empty list keeps the
// gorilla same-origin default; "*" accepts any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return set[origin]
	}
}

// Start serves WebSocket upgrades until Stop is called.
//
// Postcondition: Returns nil after a graceful shutdown, or the listener
// error that ended serving.
func (d *Dispatcher) Start() error {
	d.logger.Info("websocket dispatcher listening",
		zap.String("addr", d.httpServer.Addr),
	)
	if err := d.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes every live socket and shuts the HTTP server down.
// http.Server.Shutdown does not reach hijacked connections, so the sockets
// are closed first to unblock their read loops.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	for c := range d.conns {
		_ = c.close()
	}
	d.mu.Unlock()

	ctx := context.Background()
	if d.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.shutdownTimeout)
		defer cancel()
	}
	if err := d.httpServer.Shutdown(ctx); err != nil {
		d.logger.Warn("dispatcher shutdown", zap.Error(err))
	}
}

// ConnCount returns the number of live connections.
func (d *Dispatcher) ConnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// handleWS authenticates the token query parameter, upgrades the
// connection, and runs its read loop. An unverifiable token is rejected
// with 401 before the upgrade.
func (d *Dispatcher) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := d.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		d.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(ws, d.writeTimeout)
	d.track(conn)
	d.logger.Info("connection opened",
		zap.String("user_id", identity.UserID),
		zap.String("remote", r.RemoteAddr),
	)
	d.serve(conn, identity)
}

func (d *Dispatcher) track(c *wsConn) {
	d.mu.Lock()
	d.conns[c] = struct{}{}
	d.mu.Unlock()
}

func (d *Dispatcher) untrack(c *wsConn) {
	d.mu.Lock()
	delete(d.conns, c)
	d.mu.Unlock()
}

// serve reads frames until the socket dies, then performs the implicit
// leave for the connection's user.
func (d *Dispatcher) serve(conn *wsConn, identity auth.Identity) {
	defer func() {
		d.untrack(conn)
		_ = conn.close()
		d.rooms.LeaveCurrentRoom(identity.UserID)
		d.logger.Info("connection closed", zap.String("user_id", identity.UserID))
	}()

	for {
		if d.readTimeout > 0 {
			if err := conn.ws.SetReadDeadline(time.Now().Add(d.readTimeout)); err != nil {
				return
			}
		}
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		d.route(conn, identity, data)
	}
}

// route decodes one frame and executes it against the managers.
func (d *Dispatcher) route(conn *wsConn, identity auth.Identity, data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		d.sendDirect(conn, protocol.NewError(protocol.CodeInvalidMessage, "Mensaje no válido"))
		return
	}

	switch m := msg.(type) {
	case protocol.Ping:
		d.sendDirect(conn, protocol.NewPong())
	case protocol.JoinRoom:
		d.handleJoin(conn, identity, m.RoomID)
	case protocol.LeaveRoom:
		d.rooms.LeaveCurrentRoom(identity.UserID)
	case protocol.SetReady:
		d.handleReady(identity, m.Ready)
	case protocol.StartGame:
		d.handleStart(conn, identity)
	case protocol.KickPlayer:
		d.handleKick(identity, m.UserID)
	case protocol.SendChat:
		d.handleChat(identity, m.Content)
	case protocol.GameAction:
		d.handleAction(identity, m.Action)
	}
}

// handleJoin admits the user to the room, replays room state and chat
// history to them, and either catches them up on a running game or
// announces them to the others.
func (d *Dispatcher) handleJoin(conn *wsConn, identity auth.Identity, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	r := d.rooms.JoinRoom(ctx, roomID, identity.UserID, identity.DisplayName, conn)
	if r == nil {
		d.sendDirect(conn, protocol.NewError(protocol.CodeJoinFailed, "No se pudo unir a la sala"))
		return
	}

	r.SendTo(identity.UserID, protocol.NewRoomState(r.Snapshot()))
	r.SendTo(identity.UserID, protocol.NewChatHistory(r.ChatHistory()))

	if r.Status() == room.StatusPlaying {
		if sess := d.sessions.GetSession(r.ID()); sess != nil {
			r.SendTo(identity.UserID, protocol.NewGameStarted(sess.State()))
		}
		return
	}
	r.BroadcastExcept(protocol.NewPlayerJoined(protocol.PlayerInfo{
		ID:          identity.UserID,
		DisplayName: identity.DisplayName,
	}), identity.UserID)
}

func (d *Dispatcher) handleReady(identity auth.Identity, ready bool) {
	r := d.rooms.GetPlayerRoom(identity.UserID)
	if r == nil {
		return
	}
	r.SetReady(identity.UserID, ready)
	r.Broadcast(protocol.NewPlayerReady(identity.UserID, ready))
}

// handleStart enforces the host check and maps start failures onto wire
// error codes.
func (d *Dispatcher) handleStart(conn *wsConn, identity auth.Identity) {
	r := d.rooms.GetPlayerRoom(identity.UserID)
	if r == nil || r.HostID() != identity.UserID {
		d.sendDirect(conn, protocol.NewError(protocol.CodeNotHost, "Solo el anfitrión puede iniciar la partida"))
		return
	}

	if _, err := d.sessions.StartGame(r); err != nil {
		d.logger.Warn("start refused",
			zap.String("room_id", r.ID()),
			zap.String("user_id", identity.UserID),
			zap.Error(err),
		)
		d.sendDirect(conn, protocol.NewError(protocol.CodeGameNotFound, "Juego no encontrado"))
	}
}

// handleKick evicts a member on the host's behalf. Non-hosts are ignored
// silently, matching the fact a well-behaved client never shows them the
// control.
func (d *Dispatcher) handleKick(identity auth.Identity, targetID string) {
	r := d.rooms.GetPlayerRoom(identity.UserID)
	if r == nil || r.HostID() != identity.UserID {
		return
	}
	if !r.HasPlayer(targetID) {
		return
	}
	r.SendTo(targetID, protocol.NewError(protocol.CodeKicked, "Has sido expulsado de la sala"))
	d.rooms.LeaveCurrentRoom(targetID)
}

// handleChat validates and appends a chat message, then fans it out.
// Empty and over-long messages are dropped without a reply.
func (d *Dispatcher) handleChat(identity auth.Identity, content string) {
	r := d.rooms.GetPlayerRoom(identity.UserID)
	if r == nil {
		return
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > d.chatMaxLength {
		return
	}
	msg := r.AddChatMessage(identity.UserID, identity.DisplayName, trimmed)
	r.Broadcast(protocol.NewChatBroadcast(msg))
}

// handleAction forwards a game action to the room's live session. Actions
// outside a playing room are dropped.
func (d *Dispatcher) handleAction(identity auth.Identity, action map[string]any) {
	r := d.rooms.GetPlayerRoom(identity.UserID)
	if r == nil || r.Status() != room.StatusPlaying {
		return
	}
	if sess := d.sessions.GetSession(r.ID()); sess != nil {
		sess.HandleAction(identity.UserID, action)
	}
}

// sendDirect writes to the socket without going through a room, for users
// not (yet) in one.
func (d *Dispatcher) sendDirect(conn *wsConn, msg protocol.ServerMessage) {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		d.logger.Error("encoding server message", zap.Error(err))
		return
	}
	if err := conn.Send(data); err != nil {
		d.logger.Debug("direct send failed", zap.Error(err))
	}
}
