package internal

// Broadcast fan-out. The member snapshot is taken under the hub lock; the
// deliveries themselves run outside it so a blocked client cannot hold up
// joins and leaves elsewhere. A failed delivery is logged and skipped, never
// surfaced to the sender, and never aborts the rest of the fan-out.

// BroadcastToRoom delivers payload under event to every current member of
// room, skipping exclude when non-empty. Broadcasting to an unknown or empty
// room is a silent no-op.
func (h *Hub) BroadcastToRoom(room, event string, payload any, exclude string) {
	h.mu.Lock()
	targets := h.roomSinksLocked(room, exclude)
	h.mu.Unlock()
	h.deliverAll(targets, event, payload)
}

// SendToConnection delivers directly to one connection, used for acks and
// error events. It no-ops when the connection is no longer registered.
func (h *Hub) SendToConnection(connID, event string, payload any) {
	h.mu.Lock()
	sink := h.sinks[connID]
	h.mu.Unlock()
	if sink == nil {
		return
	}
	h.deliverOne(sink, event, payload)
}

// roomSinksLocked snapshots the sinks of room's members minus exclude.
// Caller holds h.mu.
func (h *Hub) roomSinksLocked(room, exclude string) []Sink {
	members := h.rooms.membersOf(room)
	targets := make([]Sink, 0, len(members))
	for _, id := range members {
		if id == exclude {
			continue
		}
		if sink, ok := h.sinks[id]; ok {
			targets = append(targets, sink)
		}
	}
	return targets
}

func (h *Hub) deliverAll(targets []Sink, event string, payload any) {
	for _, sink := range targets {
		h.deliverOne(sink, event, payload)
	}
}

func (h *Hub) deliverOne(sink Sink, event string, payload any) {
	if sink == nil {
		return
	}
	if err := sink.Deliver(event, payload); err != nil {
		h.metrics.IncDroppedDelivery()
		h.log.Debug("delivery failed", "event", event, "err", err)
	}
}
