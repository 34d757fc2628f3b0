package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidMessage is returned for any inbound frame that is not valid
// JSON, names an unknown type, or fails its variant's field validation.
var ErrInvalidMessage = errors.New("invalid message")

type envelope struct {
	Type string `json:"type"`
}

type joinFields struct {
	RoomID string `json:"roomId"`
}

type readyFields struct {
	Ready *bool `json:"ready"`
}

type kickFields struct {
	UserID string `json:"userId"`
}

type chatFields struct {
	Content *string `json:"content"`
}

type actionFields struct {
	Action map[string]any `json:"action"`
}

// DecodeClientMessage parses and validates an inbound frame.
//
// Postcondition: Returns a typed ClientMessage, or an error wrapping
// ErrInvalidMessage describing the first violation found. Unknown extra
// fields are tolerated; missing or ill-typed required fields are not.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch env.Type {
	case TypeRoomJoin:
		var f joinFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if f.RoomID == "" {
			return nil, fmt.Errorf("%w: room:join requires roomId", ErrInvalidMessage)
		}
		return JoinRoom{RoomID: f.RoomID}, nil

	case TypeRoomLeave:
		return LeaveRoom{}, nil

	case TypeRoomReady:
		var f readyFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if f.Ready == nil {
			return nil, fmt.Errorf("%w: room:ready requires ready", ErrInvalidMessage)
		}
		return SetReady{Ready: *f.Ready}, nil

	case TypeRoomStart:
		return StartGame{}, nil

	case TypeRoomKick:
		var f kickFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if f.UserID == "" {
			return nil, fmt.Errorf("%w: room:kick requires userId", ErrInvalidMessage)
		}
		return KickPlayer{UserID: f.UserID}, nil

	case TypeChatSend:
		var f chatFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if f.Content == nil {
			return nil, fmt.Errorf("%w: chat:send requires content", ErrInvalidMessage)
		}
		if utf8.RuneCountInString(*f.Content) > MaxChatLength {
			return nil, fmt.Errorf("%w: chat content exceeds %d characters", ErrInvalidMessage, MaxChatLength)
		}
		return SendChat{Content: *f.Content}, nil

	case TypeGameAction:
		var f actionFields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if f.Action == nil {
			return nil, fmt.Errorf("%w: game:action requires action", ErrInvalidMessage)
		}
		return GameAction{Action: f.Action}, nil

	case TypePing:
		return Ping{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, env.Type)
	}
}

// EncodeServerMessage serializes an outbound message to its wire bytes.
//
// Precondition: msg must be built through its New* constructor so its tag
// is populated.
// Postcondition: Returns the JSON frame or a non-nil error.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return data, nil
}

// EncodeClientMessage serializes an inbound-style message to wire bytes.
// It is the inverse of DecodeClientMessage and exists for clients and tests.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	var frame any
	switch m := msg.(type) {
	case JoinRoom:
		frame = map[string]any{"type": TypeRoomJoin, "roomId": m.RoomID}
	case LeaveRoom:
		frame = map[string]any{"type": TypeRoomLeave}
	case SetReady:
		frame = map[string]any{"type": TypeRoomReady, "ready": m.Ready}
	case StartGame:
		frame = map[string]any{"type": TypeRoomStart}
	case KickPlayer:
		frame = map[string]any{"type": TypeRoomKick, "userId": m.UserID}
	case SendChat:
		frame = map[string]any{"type": TypeChatSend, "content": m.Content}
	case GameAction:
		frame = map[string]any{"type": TypeGameAction, "action": m.Action}
	case Ping:
		frame = map[string]any{"type": TypePing}
	default:
		return nil, fmt.Errorf("unknown client message %T", msg)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return data, nil
}
