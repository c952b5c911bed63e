package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Router dispatches inbound events from a connection to the hub and history.
// It owns per-event validation; a payload that fails validation produces an
// error event back to the sender and nothing else. Events from one connection
// arrive from a single read loop, so ordering is FIFO per connection.
type Router struct {
	hub      *Hub
	history  *History
	metrics  *Metrics
	validate *validator.Validate
	log      *slog.Logger
}

func NewRouter(hub *Hub, history *History, metrics *Metrics, log *slog.Logger) *Router {
	return &Router{
		hub:      hub,
		history:  history,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// HandleEvent routes one decoded frame. Unknown event names are ignored; the
// earliest clients were free with what they emitted and dropping them is the
// compatible behaviour.
func (rt *Router) HandleEvent(connID string, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		rt.handleJoin(connID, env.Data)
	case EventSendMessage:
		rt.handleSend(connID, env.Data)
	case EventTyping:
		rt.handleTyping(connID, env.Data, true)
	case EventStopTyping:
		rt.handleTyping(connID, env.Data, false)
	default:
		rt.log.Debug("ignoring unknown event", "event", env.Event)
	}
}

// HandleDisconnect runs the full cleanup for a closed transport.
func (rt *Router) HandleDisconnect(connID string) {
	rt.hub.Disconnect(connID)
}

// handleJoin accepts either a bare room-name string or a JoinPayload object.
func (rt *Router) handleJoin(connID string, raw json.RawMessage) {
	payload, err := decodeJoinPayload(raw)
	if err != nil {
		rt.sendError(connID, "invalid join_room payload")
		return
	}
	payload.Room = strings.TrimSpace(payload.Room)
	payload.Username = strings.TrimSpace(payload.Username)
	if err := rt.validate.Struct(payload); err != nil {
		rt.sendError(connID, validationMessage(EventJoinRoom, err))
		return
	}
	username := rt.resolveUsername(connID, payload.Username)

	rt.hub.Join(connID, payload.Room, username)

	// Late joiners get the room's recent messages, most recent last. Best
	// effort: a failed or empty read just means no history frame.
	if messages := rt.history.Recent(payload.Room); len(messages) > 0 {
		rt.hub.SendToConnection(connID, EventRoomHistory, HistoryPayload{
			Room:     payload.Room,
			Messages: messages,
		})
	}
}

func (rt *Router) handleSend(connID string, raw json.RawMessage) {
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		rt.sendError(connID, "invalid send_message payload")
		return
	}
	msg.Room = strings.TrimSpace(msg.Room)
	msg.Author = strings.TrimSpace(msg.Author)
	msg.Message = strings.TrimSpace(msg.Message)
	if err := rt.validate.Struct(msg); err != nil {
		rt.sendError(connID, validationMessage(EventSendMessage, err))
		return
	}
	if msg.Time == 0 {
		msg.Time = time.Now().Unix()
	}

	rt.hub.BroadcastToRoom(msg.Room, EventReceiveMessage, msg, "")
	rt.metrics.IncMessage()
	rt.history.Append(msg)
}

func (rt *Router) handleTyping(connID string, raw json.RawMessage, typing bool) {
	var payload TypingPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			rt.sendError(connID, "invalid typing payload")
			return
		}
	}
	payload.Room = strings.TrimSpace(payload.Room)
	payload.Username = strings.TrimSpace(payload.Username)
	if err := rt.validate.Struct(payload); err != nil {
		rt.sendError(connID, validationMessage(EventTyping, err))
		return
	}
	username := rt.resolveUsername(connID, payload.Username)

	rt.hub.SetTyping(connID, payload.Room, username, typing)
}

// resolveUsername picks, in order: the name in the payload, the name already
// on record for the connection (set at admission or a previous join), and
// finally a placeholder derived from the connection id.
func (rt *Router) resolveUsername(connID, fromPayload string) string {
	if fromPayload != "" {
		return fromPayload
	}
	if name := rt.hub.DisplayName(connID); name != "" {
		return name
	}
	return placeholderName(connID)
}

func placeholderName(connID string) string {
	short := connID
	if len(short) > 6 {
		short = short[:6]
	}
	return "user-" + short
}

func (rt *Router) sendError(connID, message string) {
	rt.hub.SendToConnection(connID, EventError, ErrorPayload{Message: message})
}

func decodeJoinPayload(raw json.RawMessage) (JoinPayload, error) {
	var payload JoinPayload
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return payload, nil
	}
	if trimmed[0] == '"' {
		return payload, json.Unmarshal(raw, &payload.Room)
	}
	return payload, json.Unmarshal(raw, &payload)
}

// validationMessage flattens validator output into the single human-readable
// line the wire error event carries.
func validationMessage(event string, err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		return fmt.Sprintf("%s: %s required", event, strings.Join(fields, ", "))
	}
	return fmt.Sprintf("%s: invalid payload", event)
}
