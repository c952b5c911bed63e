package internal

// connState is the per-connection record: identity, current room and typing
// flag. A connection belongs to at most one room at a time.
type connState struct {
	id          string
	displayName string
	room        string // empty until a successful join
	typing      bool
}

// registry owns every live connection record. It carries no lock of its own;
// the hub serializes all access so that registry and room table mutate inside
// the same critical section.
type registry struct {
	conns map[string]*connState
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*connState)}
}

func (r *registry) register(id, displayName string) {
	r.conns[id] = &connState{id: id, displayName: displayName}
}

// unregister removes the record and reports the room the connection was in,
// so the caller can run a leave. Calling it twice is a no-op the second time.
func (r *registry) unregister(id string) (prevRoom string, existed bool) {
	state, ok := r.conns[id]
	if !ok {
		return "", false
	}
	delete(r.conns, id)
	return state.room, true
}

func (r *registry) room(id string) string {
	if state, ok := r.conns[id]; ok {
		return state.room
	}
	return ""
}

func (r *registry) setRoom(id, room string) {
	if state, ok := r.conns[id]; ok {
		state.room = room
	}
}

func (r *registry) displayName(id string) string {
	if state, ok := r.conns[id]; ok {
		return state.displayName
	}
	return ""
}

func (r *registry) setDisplayName(id, name string) {
	if state, ok := r.conns[id]; ok {
		state.displayName = name
	}
}

func (r *registry) typing(id string) bool {
	if state, ok := r.conns[id]; ok {
		return state.typing
	}
	return false
}

func (r *registry) setTyping(id string, typing bool) {
	if state, ok := r.conns[id]; ok {
		state.typing = typing
	}
}

func (r *registry) size() int {
	return len(r.conns)
}
