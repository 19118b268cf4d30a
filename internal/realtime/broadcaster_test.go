package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticMembers map[string][]string

func (m staticMembers) Members(room string) []string { return m[room] }

// fakeConn records enqueued envelopes; full=true simulates a slow
// connection whose queue never accepts.
type fakeConn struct {
	mu   sync.Mutex
	got  []Message
	full bool
}

func (c *fakeConn) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	c.got = append(c.got, msg)
	return true
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.got...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBroadcaster_ExcludesSender(t *testing.T) {
	members := staticMembers{"form:f1": {"c1", "c2", "c3"}}
	b := NewBroadcaster(members)
	defer b.Close()

	conns := map[string]*fakeConn{"c1": {}, "c2": {}, "c3": {}}
	for id, c := range conns {
		b.Attach(id, c)
	}

	b.Broadcast("form:f1", MsgUserJoined, UserJoinedPayload{ConnectionID: "c1", Timestamp: 1}, "c1")

	waitFor(t, func() bool {
		return len(conns["c2"].messages()) == 1 && len(conns["c3"].messages()) == 1
	})
	require.Empty(t, conns["c1"].messages(), "the sender must never receive its own broadcast")
	require.Equal(t, MsgUserJoined, conns["c2"].messages()[0].Type)
}

func TestBroadcaster_RoomOrderPreserved(t *testing.T) {
	members := staticMembers{"form:f1": {"c1"}}
	b := NewBroadcaster(members)
	defer b.Close()

	c := &fakeConn{}
	b.Attach("c1", c)

	const n = 50
	for i := 0; i < n; i++ {
		b.Broadcast("form:f1", MsgFieldUpdated, FieldUpdatedPayload{FieldID: "name", Timestamp: int64(i)}, "")
	}

	waitFor(t, func() bool { return len(c.messages()) == n })
	for i, msg := range c.messages() {
		var p FieldUpdatedPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		require.Equal(t, int64(i), p.Timestamp, "events must arrive in issue order")
	}
}

func TestBroadcaster_SlowConnectionMissesEvent(t *testing.T) {
	members := staticMembers{"form:f1": {"slow", "ok"}}
	b := NewBroadcaster(members)
	defer b.Close()

	slow := &fakeConn{full: true}
	ok := &fakeConn{}
	b.Attach("slow", slow)
	b.Attach("ok", ok)

	b.Broadcast("form:f1", MsgUserTyping, UserTypingPayload{FieldID: "name", IsTyping: true}, "")

	waitFor(t, func() bool { return len(ok.messages()) == 1 })
	// no retry, no redelivery for the slow connection
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, slow.messages())
}

func TestBroadcaster_DetachedConnectionIsSkipped(t *testing.T) {
	members := staticMembers{"form:f1": {"c1", "gone"}}
	b := NewBroadcaster(members)
	defer b.Close()

	c := &fakeConn{}
	b.Attach("c1", c)
	// "gone" is still listed as a member but its conn detached:
	// broadcasting into it must be a harmless no-op

	b.Broadcast("form:f1", MsgUserLeft, UserLeftPayload{ConnectionID: "x"}, "")
	waitFor(t, func() bool { return len(c.messages()) == 1 })
}

func TestBroadcaster_NoCrossRoomDelivery(t *testing.T) {
	members := staticMembers{"form:f1": {"c1"}, "form:f2": {"c2"}}
	b := NewBroadcaster(members)
	defer b.Close()

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	b.Attach("c1", c1)
	b.Attach("c2", c2)

	b.Broadcast("form:f1", MsgUserJoined, UserJoinedPayload{ConnectionID: "z"}, "")
	waitFor(t, func() bool { return len(c1.messages()) == 1 })
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, c2.messages())
}
