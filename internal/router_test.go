package internal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Router, *Hub) {
	t.Helper()
	metrics := NewMetrics()
	hub := NewHub(testLogger(), metrics, DefaultTypingTTL)
	history := NewHistory(testLogger(), nil, DefaultHistoryLimit)
	return NewRouter(hub, history, metrics, testLogger()), hub
}

func join(rt *Router, connID, room string) {
	rt.HandleEvent(connID, Envelope{
		Event: EventJoinRoom,
		Data:  json.RawMessage(`"` + room + `"`),
	})
}

func TestChatScenario(t *testing.T) {
	rt, hub := newTestRouter(t)
	a := &fakeSink{}
	b := &fakeSink{}
	aID := hub.Register(a, "A")
	bID := hub.Register(b, "B")

	join(rt, aID, "general")
	ack, ok := a.last()
	require.True(t, ok)
	require.Equal(t, EventRoomJoined, ack.Event)
	require.Equal(t, PresencePayload{Room: "general", Username: "A"}, ack.Payload)

	join(rt, bID, "general")
	require.Equal(t, 1, b.count(EventRoomJoined))
	joined, _ := a.last()
	require.Equal(t, EventUserJoined, joined.Event)
	require.Equal(t, PresencePayload{Room: "general", Username: "B"}, joined.Payload)

	rt.HandleEvent(aID, Envelope{
		Event: EventSendMessage,
		Data:  json.RawMessage(`{"room":"general","author":"A","message":"hi"}`),
	})
	received, _ := b.last()
	require.Equal(t, EventReceiveMessage, received.Event)
	msg, isMsg := received.Payload.(ChatMessage)
	require.True(t, isMsg)
	require.Equal(t, "general", msg.Room)
	require.Equal(t, "A", msg.Author)
	require.Equal(t, "hi", msg.Message)
	require.NotZero(t, msg.Time)
	// sender gets its own message back too
	require.Equal(t, 1, a.count(EventReceiveMessage))

	rt.HandleDisconnect(bID)
	left, _ := a.last()
	require.Equal(t, EventUserLeft, left.Event)
	require.Equal(t, PresencePayload{Room: "general", Username: "B"}, left.Payload)
}

func TestJoinEmptyRoomRejected(t *testing.T) {
	rt, hub := newTestRouter(t)
	sink := &fakeSink{}
	id := hub.Register(sink, "alice")

	for _, raw := range []string{`""`, `"   "`, `{"room":""}`, `{}`} {
		rt.HandleEvent(id, Envelope{Event: EventJoinRoom, Data: json.RawMessage(raw)})
	}

	require.Equal(t, 4, sink.count(EventError))
	require.Zero(t, sink.count(EventRoomJoined))
	require.Empty(t, hub.Rooms())
	require.False(t, hub.Exists(""))
}

func TestJoinObjectPayloadWithUsername(t *testing.T) {
	rt, hub := newTestRouter(t)
	sink := &fakeSink{}
	id := hub.Register(sink, "")

	rt.HandleEvent(id, Envelope{
		Event: EventJoinRoom,
		Data:  json.RawMessage(`{"room":"general","username":"carol"}`),
	})

	ack, _ := sink.last()
	require.Equal(t, PresencePayload{Room: "general", Username: "carol"}, ack.Payload)
	require.Equal(t, "carol", hub.DisplayName(id))
}

func TestJoinAnonymousGetsPlaceholderName(t *testing.T) {
	rt, hub := newTestRouter(t)
	sink := &fakeSink{}
	id := hub.Register(sink, "")

	join(rt, id, "general")

	ack, _ := sink.last()
	payload, isPresence := ack.Payload.(PresencePayload)
	require.True(t, isPresence)
	require.Equal(t, "user-"+id[:6], payload.Username)
}

func TestSendMessageValidation(t *testing.T) {
	rt, hub := newTestRouter(t)
	sender := &fakeSink{}
	receiver := &fakeSink{}
	senderID := hub.Register(sender, "alice")
	receiverID := hub.Register(receiver, "bob")
	join(rt, senderID, "general")
	join(rt, receiverID, "general")

	cases := []string{
		`{"room":"general","author":"alice","message":""}`,
		`{"room":"general","author":"alice","message":"   "}`,
		`{"room":"general","author":"","message":"hi"}`,
		`{"room":"","author":"alice","message":"hi"}`,
		`not json`,
	}
	for _, raw := range cases {
		rt.HandleEvent(senderID, Envelope{Event: EventSendMessage, Data: json.RawMessage(raw)})
	}

	require.Equal(t, len(cases), sender.count(EventError))
	require.Zero(t, receiver.count(EventReceiveMessage))
	require.Zero(t, sender.count(EventReceiveMessage))
}

func TestTypingRequiresRoom(t *testing.T) {
	rt, hub := newTestRouter(t)
	sink := &fakeSink{}
	id := hub.Register(sink, "alice")
	join(rt, id, "general")

	rt.HandleEvent(id, Envelope{Event: EventTyping, Data: json.RawMessage(`{"room":""}`)})
	require.Equal(t, 1, sink.count(EventError))

	rt.HandleEvent(id, Envelope{Event: EventStopTyping, Data: json.RawMessage(`{}`)})
	require.Equal(t, 2, sink.count(EventError))
}

func TestTypingNoticesReachRoomNotSender(t *testing.T) {
	rt, hub := newTestRouter(t)
	typer := &fakeSink{}
	watcher := &fakeSink{}
	typerID := hub.Register(typer, "alice")
	watcherID := hub.Register(watcher, "bob")
	join(rt, typerID, "general")
	join(rt, watcherID, "general")

	rt.HandleEvent(typerID, Envelope{Event: EventTyping, Data: json.RawMessage(`{"room":"general"}`)})
	rt.HandleEvent(typerID, Envelope{Event: EventStopTyping, Data: json.RawMessage(`{"room":"general"}`)})

	require.Equal(t, 1, watcher.count(EventUserTyping))
	require.Equal(t, 1, watcher.count(EventUserStopTyping))
	require.Zero(t, typer.count(EventUserTyping))

	typing, stop := -1, -1
	for i, name := range watcher.names() {
		switch name {
		case EventUserTyping:
			typing = i
		case EventUserStopTyping:
			stop = i
		}
	}
	require.Less(t, typing, stop)
}

func TestLateJoinerReceivesHistory(t *testing.T) {
	rt, hub := newTestRouter(t)
	early := &fakeSink{}
	late := &fakeSink{}
	earlyID := hub.Register(early, "alice")
	lateID := hub.Register(late, "bob")
	join(rt, earlyID, "general")

	rt.HandleEvent(earlyID, Envelope{
		Event: EventSendMessage,
		Data:  json.RawMessage(`{"room":"general","author":"alice","message":"first"}`),
	})
	rt.HandleEvent(earlyID, Envelope{
		Event: EventSendMessage,
		Data:  json.RawMessage(`{"room":"general","author":"alice","message":"second"}`),
	})

	join(rt, lateID, "general")

	require.Equal(t, 1, late.count(EventRoomHistory))
	var history HistoryPayload
	for _, e := range late.snapshot() {
		if e.Event == EventRoomHistory {
			history = e.Payload.(HistoryPayload)
		}
	}
	require.Equal(t, "general", history.Room)
	require.Len(t, history.Messages, 2)
	require.Equal(t, "first", history.Messages[0].Message)
	require.Equal(t, "second", history.Messages[1].Message)
}

func TestUnknownEventIgnored(t *testing.T) {
	rt, hub := newTestRouter(t)
	sink := &fakeSink{}
	id := hub.Register(sink, "alice")

	rt.HandleEvent(id, Envelope{Event: "mystery", Data: json.RawMessage(`{}`)})
	require.Empty(t, sink.names())
}
