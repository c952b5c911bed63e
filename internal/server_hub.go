package internal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives events bound for a single connection. The websocket conn
// implements it; tests substitute an in-memory fake.
type Sink interface {
	Deliver(event string, payload any) error
}

// Hub owns the connection registry, the room table and the per-connection
// sinks. All three mutate under one mutex, so a connection's current room and
// the room's member set never disagree. Fan-out happens outside the lock on a
// snapshot of the member sinks, keeping slow clients off the critical path.
type Hub struct {
	log       *slog.Logger
	metrics   *Metrics
	typingTTL time.Duration

	mu     sync.Mutex
	reg    *registry
	rooms  *roomTable
	sinks  map[string]Sink
	timers map[string]*typingTimer
}

// DefaultTypingTTL bounds how long a typing indicator survives without a
// follow-up keystroke before the hub clears it on the client's behalf.
const DefaultTypingTTL = 6 * time.Second

func NewHub(log *slog.Logger, metrics *Metrics, typingTTL time.Duration) *Hub {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	return &Hub{
		log:       log,
		metrics:   metrics,
		typingTTL: typingTTL,
		reg:       newRegistry(),
		rooms:     newRoomTable(),
		sinks:     make(map[string]Sink),
		timers:    make(map[string]*typingTimer),
	}
}

// Register admits a new connection with no room and returns its assigned id.
// displayName may be empty for anonymous connections; the router fills in a
// placeholder at join time.
func (h *Hub) Register(sink Sink, displayName string) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.reg.register(id, displayName)
	h.sinks[id] = sink
	h.mu.Unlock()
	return id
}

// Join puts the connection into room under the given username. If the
// connection is in a different room it leaves that one first, announcing the
// departure there. The joiner always gets a room_joined ack, even when it was
// already a member; user_joined goes to the rest of the room only on a real
// membership change.
func (h *Hub) Join(connID, room, username string) {
	h.mu.Lock()
	if _, ok := h.sinks[connID]; !ok {
		h.mu.Unlock()
		return
	}
	var (
		leftRoom    string
		leftName    string
		leftTargets []Sink
	)
	if prev := h.reg.room(connID); prev != "" && prev != room {
		leftRoom, leftName = prev, h.reg.displayName(connID)
		leftTargets = h.leaveLocked(connID, prev)
	}
	already := h.rooms.contains(room, connID)
	h.rooms.addMember(room, connID)
	h.reg.setRoom(connID, room)
	h.reg.setDisplayName(connID, username)
	self := h.sinks[connID]
	var joinTargets []Sink
	if !already {
		joinTargets = h.roomSinksLocked(room, connID)
	}
	h.mu.Unlock()

	if leftRoom != "" {
		h.deliverAll(leftTargets, EventUserLeft, PresencePayload{Room: leftRoom, Username: leftName})
	}
	h.deliverOne(self, EventRoomJoined, PresencePayload{Room: room, Username: username})
	h.deliverAll(joinTargets, EventUserJoined, PresencePayload{Room: room, Username: username})
}

// Disconnect removes the connection entirely: leaves its room (announcing
// user_left to whoever remains), clears typing state and unregisters.
// Safe to call more than once.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	room := h.reg.room(connID)
	name := h.reg.displayName(connID)
	var targets []Sink
	if room != "" {
		targets = h.leaveLocked(connID, room)
	}
	h.reg.unregister(connID)
	delete(h.sinks, connID)
	h.mu.Unlock()

	if room != "" {
		h.deliverAll(targets, EventUserLeft, PresencePayload{Room: room, Username: name})
	}
}

// leaveLocked detaches the connection from room and returns the sinks of the
// remaining members. Caller holds h.mu and emits user_left after unlocking.
func (h *Hub) leaveLocked(connID, room string) []Sink {
	h.rooms.removeMember(room, connID)
	h.reg.setRoom(connID, "")
	h.clearTypingLocked(connID)
	return h.roomSinksLocked(room, connID)
}

// SetTyping records the typing flag and notifies the rest of the room. While
// typing is on, an expiry timer clears the flag if the client goes silent
// without ever sending stop_typing.
func (h *Hub) SetTyping(connID, room, username string, typing bool) {
	h.mu.Lock()
	if _, ok := h.sinks[connID]; !ok {
		h.mu.Unlock()
		return
	}
	h.reg.setTyping(connID, typing)
	if typing {
		h.resetTypingTimerLocked(connID)
	} else {
		h.stopTypingTimerLocked(connID)
	}
	targets := h.roomSinksLocked(room, connID)
	h.mu.Unlock()

	event := EventUserTyping
	if !typing {
		event = EventUserStopTyping
	}
	h.deliverAll(targets, event, PresencePayload{Room: room, Username: username})
}

// Room reports the connection's current room, empty when unjoined or unknown.
func (h *Hub) Room(connID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reg.room(connID)
}

// DisplayName reports the connection's display name, empty when unset.
func (h *Hub) DisplayName(connID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reg.displayName(connID)
}

// Exists reports whether a room has ever been created. Backs the lightweight
// /exists endpoint.
func (h *Hub) Exists(room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.exists(room)
}

// RoomInfo is the occupancy view served by GET /rooms.
type RoomInfo struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Count   int      `json:"count"`
}

// Rooms snapshots every room with the display names of its current members.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	infos := make([]RoomInfo, 0, len(h.rooms.rooms))
	for _, name := range h.rooms.names() {
		members := h.rooms.membersOf(name)
		usernames := make([]string, 0, len(members))
		for _, id := range members {
			usernames = append(usernames, h.reg.displayName(id))
		}
		infos = append(infos, RoomInfo{Name: name, Members: usernames, Count: len(usernames)})
	}
	return infos
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reg.size()
}
