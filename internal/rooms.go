package internal

// roomTable maps room name to its member set. Rooms are created lazily on the
// first join and never garbage-collected: a room whose last member left stays
// in the table as an empty entry. That mirrors the behaviour the service has
// always had; if reclamation is ever wanted it belongs in removeMember alone.
//
// Like the registry, the table is unlocked. The hub mutates both under one
// mutex so membership and connection state never drift apart.
type roomTable struct {
	rooms map[string]map[string]struct{}
}

func newRoomTable() *roomTable {
	return &roomTable{rooms: make(map[string]map[string]struct{})}
}

// ensureRoom creates the member set for an unseen name. It never fails.
func (t *roomTable) ensureRoom(name string) map[string]struct{} {
	if members, ok := t.rooms[name]; ok {
		return members
	}
	members := make(map[string]struct{})
	t.rooms[name] = members
	return members
}

// addMember is idempotent; adding a present member changes nothing.
func (t *roomTable) addMember(name, connID string) {
	t.ensureRoom(name)[connID] = struct{}{}
}

// removeMember deletes the member if present. The room entry is retained even
// when the set becomes empty (no room GC, see type comment).
func (t *roomTable) removeMember(name, connID string) {
	if members, ok := t.rooms[name]; ok {
		delete(members, connID)
	}
}

// membersOf returns the current member ids. Unknown rooms yield an empty
// slice rather than an error.
func (t *roomTable) membersOf(name string) []string {
	members, ok := t.rooms[name]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (t *roomTable) contains(name, connID string) bool {
	members, ok := t.rooms[name]
	if !ok {
		return false
	}
	_, in := members[connID]
	return in
}

func (t *roomTable) exists(name string) bool {
	_, ok := t.rooms[name]
	return ok
}

func (t *roomTable) names() []string {
	names := make([]string, 0, len(t.rooms))
	for name := range t.rooms {
		names = append(names, name)
	}
	return names
}
