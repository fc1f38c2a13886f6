package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/presence"
)

// Outbound event kinds.
const (
	TypeUpdateOnlineUsers = "update_online_users"
	TypeOnlineUsers       = "online_users"
	TypeNewMessage        = "new_message"
	TypeSystem            = "system"
	TypeError             = "error"
)

// TimestampLayout is the layout used for chat message timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Outbound is the decoded form of a server-to-client frame. Data is left raw
// so clients can decode it into the matching payload type.
type Outbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OnlineUsers is the payload of update_online_users and online_users.
type OnlineUsers struct {
	Users []presence.Profile `json:"users"`
}

// ChatMessage is the payload of new_message.
type ChatMessage struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	SenderID  int64  `json:"sender_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// SystemNotice is the payload of system.
type SystemNotice struct {
	Room    string `json:"room,omitempty"`
	Message string `json:"message"`
}

// TextChanged is the payload relayed to co-editors on text_change.
type TextChanged struct {
	FileID   int64  `json:"file_id"`
	Content  string `json:"content"`
	AuthorID int64  `json:"author_id"`
	Author   string `json:"author"`
}

// ErrorNotice is the payload of error.
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(kind string, data any) []byte {
	raw, err := Encode(kind, data)
	if err != nil {
		// Payloads are plain structs of strings and numbers.
		panic(err)
	}
	return raw
}

// OnlineUsersUpdate is broadcast to every session after presence changes.
func OnlineUsersUpdate(users []presence.Profile) []byte {
	return encode(TypeUpdateOnlineUsers, OnlineUsers{Users: users})
}

// OnlineUsersReply answers get_online_users.
func OnlineUsersReply(users []presence.Profile) []byte {
	return encode(TypeOnlineUsers, OnlineUsers{Users: users})
}

// NewMessage announces a persisted chat message.
func NewMessage(id int64, room string, senderID int64, sender, message string, ts time.Time) []byte {
	return encode(TypeNewMessage, ChatMessage{
		ID:        id,
		Room:      room,
		SenderID:  senderID,
		Sender:    sender,
		Message:   message,
		Timestamp: ts.UTC().Format(TimestampLayout),
	})
}

// System builds a system notice scoped to a room; room may be empty for
// service-wide notices.
func System(room, message string) []byte {
	return encode(TypeSystem, SystemNotice{Room: room, Message: message})
}

// TextChangeFrame builds the frame relayed to co-editors.
func TextChangeFrame(fileID int64, content string, authorID int64, author string) []byte {
	return encode(TypeTextChange, TextChanged{FileID: fileID, Content: content, AuthorID: authorID, Author: author})
}

// Error builds an error notice for err.
func Error(err error) []byte {
	return encode(TypeError, ErrorNotice{Code: ErrorCode(err), Message: err.Error()})
}

// ErrorCode maps an error to its client-visible code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, common.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, common.ErrEditCapacityExceeded):
		return "edit_capacity_exceeded"
	case errors.Is(err, common.ErrNotFound):
		return "not_found"
	case errors.Is(err, common.ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, common.ErrMalformedEvent):
		return "malformed_event"
	case errors.Is(err, common.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, common.ErrNotApproved):
		return "not_approved"
	default:
		return "internal"
	}
}
