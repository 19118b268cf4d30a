package presence

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_JoinAndMembers(t *testing.T) {
	r := NewRegistry()
	r.Join("form:f1", "c1", "u1", "alice")
	r.Join("form:f1", "c2", "u2", "bob")
	r.Join("form:f2", "c1", "u1", "alice")

	members := r.Members("form:f1")
	require.Len(t, members, 2)
	ids := []string{members[0].ConnectionID, members[1].ConnectionID}
	sort.Strings(ids)
	require.Equal(t, []string{"c1", "c2"}, ids)

	rooms := r.Rooms("c1")
	sort.Strings(rooms)
	require.Equal(t, []string{"form:f1", "form:f2"}, rooms)
}

func TestRegistry_LeaveReturnsEveryJoinedRoom(t *testing.T) {
	r := NewRegistry()
	r.Join("form:f1", "c1", "u1", "alice")
	r.Join("form:f2", "c1", "u1", "alice")
	r.Join("form:f1", "c2", "u2", "bob")

	rooms := r.Leave("c1")
	sort.Strings(rooms)
	require.Equal(t, []string{"form:f1", "form:f2"}, rooms)

	// c1 is gone everywhere, c2 untouched
	require.Empty(t, r.Rooms("c1"))
	require.Len(t, r.Members("form:f1"), 1)
	require.Empty(t, r.Members("form:f2"))

	// a second leave is a no-op
	require.Empty(t, r.Leave("c1"))
}

func TestRegistry_RejoinSameRoomKeepsSingleEntry(t *testing.T) {
	r := NewRegistry()
	r.Join("form:f1", "c1", "u1", "alice")
	r.Join("form:f1", "c1", "u1", "alice")
	require.Len(t, r.Members("form:f1"), 1)
}

func TestRegistry_MembersOfUnknownRoomIsEmpty(t *testing.T) {
	r := NewRegistry()
	require.Empty(t, r.Members("form:ghost"))
}
