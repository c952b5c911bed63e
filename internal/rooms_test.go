package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomTableLazyCreate(t *testing.T) {
	table := newRoomTable()
	require.False(t, table.exists("general"))
	table.addMember("general", "c1")
	require.True(t, table.exists("general"))
	require.Equal(t, []string{"c1"}, table.membersOf("general"))
}

func TestRoomTableAddIsIdempotent(t *testing.T) {
	table := newRoomTable()
	table.addMember("general", "c1")
	table.addMember("general", "c1")
	require.Len(t, table.membersOf("general"), 1)
}

func TestRoomTableRetainsEmptyRooms(t *testing.T) {
	table := newRoomTable()
	table.addMember("general", "c1")
	table.removeMember("general", "c1")
	require.True(t, table.exists("general"))
	require.Empty(t, table.membersOf("general"))
}

func TestRoomTableUnknownRoom(t *testing.T) {
	table := newRoomTable()
	require.Empty(t, table.membersOf("nowhere"))
	table.removeMember("nowhere", "c1")
	require.False(t, table.exists("nowhere"))
}

func TestRegistryLifecycle(t *testing.T) {
	reg := newRegistry()
	reg.register("c1", "alice")
	require.Equal(t, "alice", reg.displayName("c1"))
	require.Empty(t, reg.room("c1"))

	reg.setRoom("c1", "general")
	reg.setTyping("c1", true)
	require.Equal(t, "general", reg.room("c1"))
	require.True(t, reg.typing("c1"))

	room, existed := reg.unregister("c1")
	require.True(t, existed)
	require.Equal(t, "general", room)

	_, existed = reg.unregister("c1")
	require.False(t, existed)
	require.Empty(t, reg.room("c1"))
	require.False(t, reg.typing("c1"))
}
