package internal

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Archive is the persistence collaborator behind the history buffer. Its
// failures never block or fail the broadcast path; the worst case is a late
// joiner seeing less history.
type Archive interface {
	// AppendMessage stores one message and returns its assigned id.
	AppendMessage(ctx context.Context, room string, msg ChatMessage) (string, error)
	// RecentMessages returns up to limit messages for room, most recent last.
	RecentMessages(ctx context.Context, room string, limit int) ([]ChatMessage, error)
}

// DefaultHistoryLimit matches the bounded cache the service has always kept:
// the last 100 messages per room.
const DefaultHistoryLimit = 100

const archiveTimeout = 3 * time.Second

// History keeps a bounded in-memory buffer of recent messages per room for
// late joiners, opportunistically mirrored to an Archive when one is
// configured. Appends to the archive are fire-and-forget.
type History struct {
	log     *slog.Logger
	limit   int
	archive Archive // nil disables persistence

	mu    sync.Mutex
	rooms map[string][]ChatMessage
}

func NewHistory(log *slog.Logger, archive Archive, limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		log:     log,
		limit:   limit,
		archive: archive,
		rooms:   make(map[string][]ChatMessage),
	}
}

// Append records a broadcast message in the buffer and, when an archive is
// configured, hands it off in the background.
func (h *History) Append(msg ChatMessage) {
	h.mu.Lock()
	buf := append(h.rooms[msg.Room], msg)
	if len(buf) > h.limit {
		buf = buf[len(buf)-h.limit:]
	}
	h.rooms[msg.Room] = buf
	h.mu.Unlock()

	if h.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if _, err := h.archive.AppendMessage(ctx, msg.Room, msg); err != nil {
			h.log.Warn("history append failed", "room", msg.Room, "err", err)
		}
	}()
}

// Recent returns the room's buffered messages, most recent last. For a room
// not seen since startup it falls back to the archive and warms the buffer
// from whatever comes back. Errors are logged and read as "no history".
func (h *History) Recent(room string) []ChatMessage {
	h.mu.Lock()
	if buf := h.rooms[room]; len(buf) > 0 {
		out := make([]ChatMessage, len(buf))
		copy(out, buf)
		h.mu.Unlock()
		return out
	}
	h.mu.Unlock()

	if h.archive == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	messages, err := h.archive.RecentMessages(ctx, room, h.limit)
	if err != nil {
		h.log.Warn("history read failed", "room", room, "err", err)
		return nil
	}
	if len(messages) > 0 {
		h.mu.Lock()
		if len(h.rooms[room]) == 0 {
			h.rooms[room] = append([]ChatMessage(nil), messages...)
		}
		h.mu.Unlock()
	}
	return messages
}
