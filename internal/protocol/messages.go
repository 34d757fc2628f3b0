// Package protocol defines the tagged-JSON wire messages exchanged with
// clients and the codec that validates inbound frames.
//
// Every frame is a JSON object whose "type" field selects the variant.
// Inbound frames are strictly validated; outbound messages carry their tag
// in the struct so encoding is plain marshalling.
package protocol

// Client → server message type tags.
const (
	TypeRoomJoin   = "room:join"
	TypeRoomLeave  = "room:leave"
	TypeRoomReady  = "room:ready"
	TypeRoomStart  = "room:start"
	TypeRoomKick   = "room:kick"
	TypeChatSend   = "chat:send"
	TypeGameAction = "game:action"
	TypePing       = "ping"
)

// Server → client message type tags.
const (
	TypeRoomState    = "room:state"
	TypePlayerJoined = "room:player-joined"
	TypePlayerLeft   = "room:player-left"
	TypePlayerReady  = "room:player-ready"
	TypeChatMessage  = "chat:message"
	TypeChatHistory  = "chat:history"
	TypeGameStarted  = "game:started"
	TypeGameState    = "game:state"
	TypeGameFinished = "game:finished"
	TypeError        = "error"
	TypePong         = "pong"
)

// Error codes carried by Error messages.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeJoinFailed     = "JOIN_FAILED"
	CodeNotHost        = "NOT_HOST"
	CodeGameNotFound   = "GAME_NOT_FOUND"
	CodeInvalidAction  = "INVALID_ACTION"
	CodeKicked         = "KICKED"
)

// MaxChatLength is the protocol-level cap on a chat:send payload, in
// characters.
const MaxChatLength = 500

// ClientMessage is a decoded, validated inbound frame.
type ClientMessage interface {
	clientMessage()
}

// JoinRoom asks to join (or reconnect to) a room by id.
type JoinRoom struct {
	RoomID string
}

// LeaveRoom leaves the sender's current room.
type LeaveRoom struct{}

// SetReady toggles the sender's ready flag in the lobby.
type SetReady struct {
	Ready bool
}

// StartGame asks to start the game; host only.
type StartGame struct{}

// KickPlayer ejects a member from the room; host only.
type KickPlayer struct {
	UserID string
}

// SendChat posts a chat message to the sender's current room.
type SendChat struct {
	Content string
}

// GameAction forwards an opaque action payload to the sender's game session.
type GameAction struct {
	Action map[string]any
}

// Ping requests a Pong; used for liveness.
type Ping struct{}

func (JoinRoom) clientMessage()   {}
func (LeaveRoom) clientMessage()  {}
func (SetReady) clientMessage()   {}
func (StartGame) clientMessage()  {}
func (KickPlayer) clientMessage() {}
func (SendChat) clientMessage()   {}
func (GameAction) clientMessage() {}
func (Ping) clientMessage()       {}

// PlayerInfo is the wire-safe projection of one room member.
type PlayerInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
	Ready       bool   `json:"isReady"`
}

// RoomSnapshot is the wire-safe projection of a room's current state.
type RoomSnapshot struct {
	ID         string         `json:"id"`
	Code       string         `json:"code"`
	GameSlug   string         `json:"gameSlug"`
	HostID     string         `json:"hostId"`
	Status     string         `json:"status"`
	MaxPlayers int            `json:"maxPlayers"`
	Players    []PlayerInfo   `json:"players"`
	Config     map[string]any `json:"config"`
}

// ChatMessage is one immutable chat log entry.
type ChatMessage struct {
	ID          int64  `json:"id"`
	UserID      string `json:"userId"`
	DisplayName string `json:"username"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
}

// PlayerResult is one ranked entry in the final game results.
type PlayerResult struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// GameResults carries the ordered rankings of a finished game.
type GameResults struct {
	Rankings []PlayerResult `json:"rankings"`
}

// ServerMessage is any outbound frame. Implementations embed their tag so
// encoding is a single marshal.
type ServerMessage interface {
	serverMessage()
}

// RoomState carries a full room snapshot.
type RoomState struct {
	Type string       `json:"type"`
	Room RoomSnapshot `json:"room"`
}

// PlayerJoined announces a new member to the rest of the room.
type PlayerJoined struct {
	Type   string     `json:"type"`
	Player PlayerInfo `json:"player"`
}

// PlayerLeft announces a departed member.
type PlayerLeft struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// PlayerReady announces a member's ready-flag change.
type PlayerReady struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

// ChatBroadcast carries one new chat message.
type ChatBroadcast struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// ChatHistory carries the room's retained chat log, oldest first.
type ChatHistory struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

// GameStarted carries the initial (or, on reconnect, current) game state.
type GameStarted struct {
	Type  string         `json:"type"`
	State map[string]any `json:"state"`
}

// GameState carries the authoritative game state after a transition.
type GameState struct {
	Type  string         `json:"type"`
	State map[string]any `json:"state"`
}

// GameFinished carries the final rankings.
type GameFinished struct {
	Type    string      `json:"type"`
	Results GameResults `json:"results"`
}

// Error is a targeted failure notice; the connection stays open.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pong answers a Ping.
type Pong struct {
	Type string `json:"type"`
}

func (RoomState) serverMessage()     {}
func (PlayerJoined) serverMessage()  {}
func (PlayerLeft) serverMessage()    {}
func (PlayerReady) serverMessage()   {}
func (ChatBroadcast) serverMessage() {}
func (ChatHistory) serverMessage()   {}
func (GameStarted) serverMessage()   {}
func (GameState) serverMessage()     {}
func (GameFinished) serverMessage()  {}
func (Error) serverMessage()         {}
func (Pong) serverMessage()          {}

// NewRoomState builds a tagged RoomState message.
func NewRoomState(snapshot RoomSnapshot) RoomState {
	return RoomState{Type: TypeRoomState, Room: snapshot}
}

// NewPlayerJoined builds a tagged PlayerJoined message.
func NewPlayerJoined(player PlayerInfo) PlayerJoined {
	return PlayerJoined{Type: TypePlayerJoined, Player: player}
}

// NewPlayerLeft builds a tagged PlayerLeft message.
func NewPlayerLeft(playerID string) PlayerLeft {
	return PlayerLeft{Type: TypePlayerLeft, PlayerID: playerID}
}

// NewPlayerReady builds a tagged PlayerReady message.
func NewPlayerReady(playerID string, ready bool) PlayerReady {
	return PlayerReady{Type: TypePlayerReady, PlayerID: playerID, Ready: ready}
}

// NewChatBroadcast builds a tagged ChatBroadcast message.
func NewChatBroadcast(msg ChatMessage) ChatBroadcast {
	return ChatBroadcast{Type: TypeChatMessage, Message: msg}
}

// NewChatHistory builds a tagged ChatHistory message.
func NewChatHistory(messages []ChatMessage) ChatHistory {
	return ChatHistory{Type: TypeChatHistory, Messages: messages}
}

// NewGameStarted builds a tagged GameStarted message.
func NewGameStarted(state map[string]any) GameStarted {
	return GameStarted{Type: TypeGameStarted, State: state}
}

// NewGameState builds a tagged GameState message.
func NewGameState(state map[string]any) GameState {
	return GameState{Type: TypeGameState, State: state}
}

// NewGameFinished builds a tagged GameFinished message.
func NewGameFinished(results GameResults) GameFinished {
	return GameFinished{Type: TypeGameFinished, Results: results}
}

// NewError builds a tagged Error message.
func NewError(code, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}

// NewPong builds a tagged Pong message.
func NewPong() Pong {
	return Pong{Type: TypePong}
}
