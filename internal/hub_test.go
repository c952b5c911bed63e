package internal

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Event   string
	Payload any
}

// fakeSink records deliveries in order; set fail to simulate a dead transport.
type fakeSink struct {
	mu     sync.Mutex
	events []recordedEvent
	fail   bool
}

func (f *fakeSink) Deliver(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("transport closed")
	}
	f.events = append(f.events, recordedEvent{Event: event, Payload: payload})
	return nil
}

func (f *fakeSink) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Event
	}
	return out
}

func (f *fakeSink) last() (recordedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return recordedEvent{}, false
	}
	return f.events[len(f.events)-1], true
}

func (f *fakeSink) snapshot() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

func (f *fakeSink) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(testLogger(), NewMetrics(), DefaultTypingTTL)
}

// membership and current-room must always agree, in both directions.
func requireConsistent(t *testing.T, hub *Hub, connID, room string) {
	t.Helper()
	hub.mu.Lock()
	defer hub.mu.Unlock()
	current := hub.reg.room(connID)
	if room == "" {
		require.Empty(t, current)
		for _, name := range hub.rooms.names() {
			require.False(t, hub.rooms.contains(name, connID))
		}
		return
	}
	require.Equal(t, room, current)
	require.True(t, hub.rooms.contains(room, connID))
	for _, name := range hub.rooms.names() {
		if name != room {
			require.False(t, hub.rooms.contains(name, connID))
		}
	}
}

func TestJoinAcksJoinerAndNotifiesRoom(t *testing.T) {
	hub := newTestHub(t)
	first := &fakeSink{}
	second := &fakeSink{}
	firstID := hub.Register(first, "alice")
	secondID := hub.Register(second, "bob")

	hub.Join(firstID, "general", "alice")
	require.Equal(t, []string{EventRoomJoined}, first.names())

	hub.Join(secondID, "general", "bob")
	require.Equal(t, []string{EventRoomJoined}, second.names())
	require.Equal(t, []string{EventRoomJoined, EventUserJoined}, first.names())

	joined, ok := first.last()
	require.True(t, ok)
	require.Equal(t, PresencePayload{Room: "general", Username: "bob"}, joined.Payload)

	requireConsistent(t, hub, firstID, "general")
	requireConsistent(t, hub, secondID, "general")
}

func TestJoinIsIdempotentButReacks(t *testing.T) {
	hub := newTestHub(t)
	joiner := &fakeSink{}
	other := &fakeSink{}
	joinerID := hub.Register(joiner, "alice")
	otherID := hub.Register(other, "bob")

	hub.Join(joinerID, "general", "alice")
	hub.Join(otherID, "general", "bob")
	hub.Join(joinerID, "general", "alice")

	// second join of the same room: membership unchanged, ack re-emitted,
	// no duplicate user_joined to the rest of the room
	require.Equal(t, 2, joiner.count(EventRoomJoined))
	require.Equal(t, 1, other.count(EventRoomJoined))
	require.Equal(t, 1, joiner.count(EventUserJoined))

	hub.mu.Lock()
	members := hub.rooms.membersOf("general")
	hub.mu.Unlock()
	require.Len(t, members, 2)
}

func TestJoinDifferentRoomLeavesFirst(t *testing.T) {
	hub := newTestHub(t)
	mover := &fakeSink{}
	stayer := &fakeSink{}
	moverID := hub.Register(mover, "alice")
	stayerID := hub.Register(stayer, "bob")

	hub.Join(moverID, "general", "alice")
	hub.Join(stayerID, "general", "bob")
	hub.Join(moverID, "random", "alice")

	left, ok := stayer.last()
	require.True(t, ok)
	require.Equal(t, EventUserLeft, left.Event)
	require.Equal(t, PresencePayload{Room: "general", Username: "alice"}, left.Payload)

	requireConsistent(t, hub, moverID, "random")
	requireConsistent(t, hub, stayerID, "general")
}

func TestDisconnectAnnouncesUserLeftOnce(t *testing.T) {
	hub := newTestHub(t)
	leaver := &fakeSink{}
	a := &fakeSink{}
	b := &fakeSink{}
	leaverID := hub.Register(leaver, "carol")
	aID := hub.Register(a, "alice")
	bID := hub.Register(b, "bob")

	hub.Join(leaverID, "general", "carol")
	hub.Join(aID, "general", "alice")
	hub.Join(bID, "general", "bob")

	hub.Disconnect(leaverID)
	require.Equal(t, 1, a.count(EventUserLeft))
	require.Equal(t, 1, b.count(EventUserLeft))
	requireConsistent(t, hub, leaverID, "")

	// second disconnect is a no-op
	hub.Disconnect(leaverID)
	require.Equal(t, 1, a.count(EventUserLeft))
}

func TestDisconnectLastMemberEmitsNothing(t *testing.T) {
	hub := newTestHub(t)
	only := &fakeSink{}
	onlyID := hub.Register(only, "alice")
	hub.Join(onlyID, "solo", "alice")

	hub.Disconnect(onlyID)
	require.Zero(t, only.count(EventUserLeft))
	// the empty room entry survives
	require.True(t, hub.Exists("solo"))
}

func TestTypingExcludesSenderAndKeepsOrder(t *testing.T) {
	hub := newTestHub(t)
	typer := &fakeSink{}
	watcher := &fakeSink{}
	typerID := hub.Register(typer, "alice")
	watcherID := hub.Register(watcher, "bob")
	hub.Join(typerID, "general", "alice")
	hub.Join(watcherID, "general", "bob")

	hub.SetTyping(typerID, "general", "alice", true)
	hub.SetTyping(typerID, "general", "alice", false)

	require.Zero(t, typer.count(EventUserTyping))
	require.Zero(t, typer.count(EventUserStopTyping))
	require.Equal(t,
		[]string{EventRoomJoined, EventUserJoined, EventUserTyping, EventUserStopTyping},
		watcher.names())
}

func TestTypingExpiresWithoutStopEvent(t *testing.T) {
	hub := NewHub(testLogger(), NewMetrics(), 30*time.Millisecond)
	typer := &fakeSink{}
	watcher := &fakeSink{}
	typerID := hub.Register(typer, "alice")
	watcherID := hub.Register(watcher, "bob")
	hub.Join(typerID, "general", "alice")
	hub.Join(watcherID, "general", "bob")

	hub.SetTyping(typerID, "general", "alice", true)

	require.Eventually(t, func() bool {
		return watcher.count(EventUserStopTyping) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStaleExpiryAfterKeystrokeIsIgnored(t *testing.T) {
	hub := newTestHub(t)
	typer := &fakeSink{}
	watcher := &fakeSink{}
	typerID := hub.Register(typer, "alice")
	watcherID := hub.Register(watcher, "bob")
	hub.Join(typerID, "general", "alice")
	hub.Join(watcherID, "general", "bob")

	// a keystroke arms the timer with a fresh deadline; a callback from an
	// earlier firing that lost the race for the lock must back off
	hub.SetTyping(typerID, "general", "alice", true)
	hub.expireTyping(typerID)

	require.Zero(t, watcher.count(EventUserStopTyping))
	hub.mu.Lock()
	_, armed := hub.timers[typerID]
	stillTyping := hub.reg.typing(typerID)
	hub.mu.Unlock()
	require.True(t, armed)
	require.True(t, stillTyping)
}

func TestLeaveClearsTypingSilently(t *testing.T) {
	hub := newTestHub(t)
	typer := &fakeSink{}
	watcher := &fakeSink{}
	typerID := hub.Register(typer, "alice")
	watcherID := hub.Register(watcher, "bob")
	hub.Join(typerID, "general", "alice")
	hub.Join(watcherID, "general", "bob")

	hub.SetTyping(typerID, "general", "alice", true)
	hub.Disconnect(typerID)

	// user_left tells the room everything it needs; no synthetic stop_typing
	require.Equal(t, 1, watcher.count(EventUserLeft))
	require.Zero(t, watcher.count(EventUserStopTyping))
}

func TestBroadcastSkipsFailingSink(t *testing.T) {
	metrics := NewMetrics()
	hub := NewHub(testLogger(), metrics, DefaultTypingTTL)
	dead := &fakeSink{fail: true}
	alive := &fakeSink{}
	deadID := hub.Register(dead, "dead")
	aliveID := hub.Register(alive, "alive")
	hub.Join(deadID, "general", "dead")
	hub.Join(aliveID, "general", "alive")

	hub.BroadcastToRoom("general", EventReceiveMessage, ChatMessage{
		Room: "general", Author: "alive", Message: "hi",
	}, "")

	require.Equal(t, 1, alive.count(EventReceiveMessage))
}

func TestBroadcastToUnknownRoomIsNoop(t *testing.T) {
	hub := newTestHub(t)
	bystander := &fakeSink{}
	id := hub.Register(bystander, "alice")
	hub.Join(id, "general", "alice")

	hub.BroadcastToRoom("nowhere", EventReceiveMessage, ChatMessage{}, "")
	require.Zero(t, bystander.count(EventReceiveMessage))
	require.False(t, hub.Exists("nowhere"))
}

func TestSendToUnregisteredConnectionIsNoop(t *testing.T) {
	hub := newTestHub(t)
	hub.SendToConnection("ghost", EventError, ErrorPayload{Message: "nope"})
}

func TestRoomsSnapshot(t *testing.T) {
	hub := newTestHub(t)
	a := &fakeSink{}
	b := &fakeSink{}
	aID := hub.Register(a, "alice")
	bID := hub.Register(b, "bob")
	hub.Join(aID, "general", "alice")
	hub.Join(bID, "random", "bob")

	rooms := hub.Rooms()
	require.Len(t, rooms, 2)
	byName := map[string]RoomInfo{}
	for _, r := range rooms {
		byName[r.Name] = r
	}
	require.Equal(t, 1, byName["general"].Count)
	require.Equal(t, []string{"alice"}, byName["general"].Members)
	require.Equal(t, []string{"bob"}, byName["random"].Members)
}
