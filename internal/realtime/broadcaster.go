package realtime

import (
	"encoding/json"
	"sync"

	"github.com/collabform/collabform/pkg/logger"
	"github.com/collabform/collabform/pkg/metrics"
)

// Conn is the outbound half of a connection as the broadcaster sees
// it. Enqueue must not block; it reports false when the event was
// dropped because the connection's queue is full.
type Conn interface {
	Enqueue(data []byte) bool
}

// Memberships is the room-membership lookup the broadcaster fans
// out over: the connection ids currently registered in a room. The
// gateway adapts the presence registry to it.
type Memberships interface {
	Members(room string) []string
}

type broadcastReq struct {
	room    string
	msg     *Message
	exclude string
}

// Broadcaster fans events out to every connection in a room except
// the sender. A single run loop drains the queue, so for any one room
// events are delivered in the order they were issued. Delivery is
// at-most-once per connection per call: a full or missing connection
// simply misses the event, and recovery is a fresh snapshot fetch,
// not replay.
type Broadcaster struct {
	members Memberships

	mu    sync.RWMutex
	conns map[string]Conn

	queue chan broadcastReq
	done  chan struct{}
}

func NewBroadcaster(members Memberships) *Broadcaster {
	b := &Broadcaster{
		members: members,
		conns:   make(map[string]Conn),
		queue:   make(chan broadcastReq, 256),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Attach registers the outbound half of a connection.
func (b *Broadcaster) Attach(connID string, c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[connID] = c
}

// Detach forgets a connection. In-flight broadcasts that still name
// it become no-ops.
func (b *Broadcaster) Detach(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, connID)
}

// Broadcast queues an event for fan-out to room, excluding
// excludeConn (normally the sender). Fire and forget: failures are
// logged, never reported back.
func (b *Broadcaster) Broadcast(room string, msgType MessageType, payload interface{}, excludeConn string) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("broadcast %s to %s: marshal payload: %v", msgType, room, err)
		return
	}
	select {
	case b.queue <- broadcastReq{room: room, msg: &Message{Type: msgType, Payload: data}, exclude: excludeConn}:
	case <-b.done:
	}
}

// Close stops the fan-out loop. Queued events are discarded.
func (b *Broadcaster) Close() {
	close(b.done)
}

func (b *Broadcaster) run() {
	for {
		select {
		case <-b.done:
			return
		case req := <-b.queue:
			b.fanOut(req)
		}
	}
}

func (b *Broadcaster) fanOut(req broadcastReq) {
	data, err := json.Marshal(req.msg)
	if err != nil {
		logger.Errorf("broadcast %s to %s: marshal envelope: %v", req.msg.Type, req.room, err)
		return
	}
	kind := string(req.msg.Type)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.members.Members(req.room) {
		if id == req.exclude {
			continue
		}
		c, ok := b.conns[id]
		if !ok {
			// member left between membership lookup and fan-out
			continue
		}
		if c.Enqueue(data) {
			metrics.BroadcastsDelivered.WithLabelValues(kind).Inc()
		} else {
			metrics.BroadcastsDropped.WithLabelValues(kind).Inc()
			logger.Warnf("dropped %s for slow connection %s in %s", kind, id, req.room)
		}
	}
}
