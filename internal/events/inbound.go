// Package events defines the JSON frames exchanged over the real-time channel.
//
// Every frame is an envelope {"type": "...", "data": {...}}. Inbound frames
// are decoded into one concrete type per event kind so the gateway never has
// to look up keys in untyped maps; malformed frames are rejected with
// common.ErrMalformedEvent.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Tyrowin/officechat/internal/common"
)

// Inbound event kinds.
const (
	TypeJoin           = "join"
	TypeLeave          = "leave"
	TypeMessage        = "message"
	TypeJoinEdit       = "join_edit"
	TypeLeaveEdit      = "leave_edit"
	TypeTextChange     = "text_change"
	TypeGetOnlineUsers = "get_online_users"
)

// Envelope is the wire form of every frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is implemented by every client-to-server event.
type Inbound interface {
	Kind() string
	validate() error
}

// JoinRoom asks to join a chat room.
type JoinRoom struct {
	Room string `json:"room"`
}

// LeaveRoom asks to leave a chat room.
type LeaveRoom struct {
	Room string `json:"room"`
}

// SendMessage posts a chat message to a room.
type SendMessage struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// JoinEdit asks to become an editor of a shared file.
type JoinEdit struct {
	FileID int64 `json:"file_id"`
}

// LeaveEdit gives up editing a shared file.
type LeaveEdit struct {
	FileID int64 `json:"file_id"`
}

// TextChange carries the full replacement content of a file being edited.
type TextChange struct {
	FileID  int64  `json:"file_id"`
	Content string `json:"content"`
}

// GetOnlineUsers requests the current presence list.
type GetOnlineUsers struct{}

func (*JoinRoom) Kind() string       { return TypeJoin }
func (*LeaveRoom) Kind() string      { return TypeLeave }
func (*SendMessage) Kind() string    { return TypeMessage }
func (*JoinEdit) Kind() string       { return TypeJoinEdit }
func (*LeaveEdit) Kind() string      { return TypeLeaveEdit }
func (*TextChange) Kind() string     { return TypeTextChange }
func (*GetOnlineUsers) Kind() string { return TypeGetOnlineUsers }

func (e *JoinRoom) validate() error  { return requireRoom(e.Room) }
func (e *LeaveRoom) validate() error { return requireRoom(e.Room) }

func (e *SendMessage) validate() error {
	if err := requireRoom(e.Room); err != nil {
		return err
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("message is empty")
	}
	return nil
}

func (e *JoinEdit) validate() error   { return requireFile(e.FileID) }
func (e *LeaveEdit) validate() error  { return requireFile(e.FileID) }
func (e *TextChange) validate() error { return requireFile(e.FileID) }
func (*GetOnlineUsers) validate() error {
	return nil
}

func requireRoom(room string) error {
	if strings.TrimSpace(room) == "" {
		return fmt.Errorf("room is required")
	}
	return nil
}

func requireFile(id int64) error {
	if id <= 0 {
		return fmt.Errorf("file_id must be positive")
	}
	return nil
}

// Decode parses a raw frame into its typed event.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedEvent, err)
	}

	var ev Inbound
	switch env.Type {
	case TypeJoin:
		ev = &JoinRoom{}
	case TypeLeave:
		ev = &LeaveRoom{}
	case TypeMessage:
		ev = &SendMessage{}
	case TypeJoinEdit:
		ev = &JoinEdit{}
	case TypeLeaveEdit:
		ev = &LeaveEdit{}
	case TypeTextChange:
		ev = &TextChange{}
	case TypeGetOnlineUsers:
		ev = &GetOnlineUsers{}
	case "":
		return nil, fmt.Errorf("%w: missing type", common.ErrMalformedEvent)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", common.ErrMalformedEvent, env.Type)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrMalformedEvent, env.Type, err)
		}
	}
	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrMalformedEvent, env.Type, err)
	}
	return ev, nil
}

// Encode builds a client-side frame. It is used by tests and tooling that
// speak the protocol.
func Encode(kind string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, Data: raw})
}
