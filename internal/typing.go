package internal

import "time"

// Typing expiry. Each typing connection owns a single timer, reset on every
// keystroke event and stopped on stop_typing, leave and disconnect. When the
// timer fires the hub clears the flag itself and tells the room, so a client
// that vanished mid-keystroke does not stay "typing" forever.
//
// The armed deadline travels with the timer. A fired callback can block on
// h.mu while a keystroke re-arms the timer; the callback then finds the
// deadline in the future and backs off, leaving the re-armed timer to call
// again at the right time.

type typingTimer struct {
	timer    *time.Timer
	deadline time.Time
}

func (h *Hub) resetTypingTimerLocked(connID string) {
	deadline := time.Now().Add(h.typingTTL)
	if tt, ok := h.timers[connID]; ok {
		tt.timer.Reset(h.typingTTL)
		tt.deadline = deadline
		return
	}
	tt := &typingTimer{deadline: deadline}
	tt.timer = time.AfterFunc(h.typingTTL, func() {
		h.expireTyping(connID)
	})
	h.timers[connID] = tt
}

func (h *Hub) stopTypingTimerLocked(connID string) {
	if tt, ok := h.timers[connID]; ok {
		tt.timer.Stop()
		delete(h.timers, connID)
	}
}

// clearTypingLocked silences the flag without broadcasting; used on leave and
// disconnect where a separate user_left already tells the room.
func (h *Hub) clearTypingLocked(connID string) {
	h.reg.setTyping(connID, false)
	h.stopTypingTimerLocked(connID)
}

func (h *Hub) expireTyping(connID string) {
	h.mu.Lock()
	tt, ok := h.timers[connID]
	if !ok || time.Now().Before(tt.deadline) {
		// stopped, or a reset raced the firing; nothing to expire yet
		h.mu.Unlock()
		return
	}
	if !h.reg.typing(connID) {
		delete(h.timers, connID)
		h.mu.Unlock()
		return
	}
	room := h.reg.room(connID)
	name := h.reg.displayName(connID)
	h.reg.setTyping(connID, false)
	delete(h.timers, connID)
	var targets []Sink
	if room != "" {
		targets = h.roomSinksLocked(room, connID)
	}
	h.mu.Unlock()

	h.deliverAll(targets, EventUserStopTyping, PresencePayload{Room: room, Username: name})
}
