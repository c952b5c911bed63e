package internal

import "encoding/json"

// Wire event names. Inbound events are issued by clients, outbound events are
// emitted by the server to one connection or fanned out to a room.
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventRoomJoined     = "room_joined"
	EventUserJoined     = "user_joined"
	EventReceiveMessage = "receive_message"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventUserLeft       = "user_left"
	EventRoomHistory    = "room_history"
	EventError          = "error"
)

// Envelope is the json frame both sides exchange: an event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload is the object form of a join_room request. Clients may also send
// a bare string, which the router normalizes into this shape.
type JoinPayload struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username,omitempty"`
}

// PresencePayload is shared by room_joined, user_joined, user_left and the
// typing notices.
type PresencePayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// ChatMessage is the send_message request and the receive_message broadcast.
// The room travels inside the message; senders address a room explicitly per
// message rather than relying on their current membership.
type ChatMessage struct {
	Room    string `json:"room" validate:"required"`
	Author  string `json:"author" validate:"required"`
	Message string `json:"message" validate:"required"`
	Time    int64  `json:"time,omitempty"`
}

// TypingPayload is the typing / stop_typing request.
type TypingPayload struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username,omitempty"`
}

// HistoryPayload carries the recent messages of a room to a late joiner,
// most recent last.
type HistoryPayload struct {
	Room     string        `json:"room"`
	Messages []ChatMessage `json:"messages"`
}

// ErrorPayload is sent to the offending connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}
