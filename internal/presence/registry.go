package presence

import (
	"sync"
	"time"

	"github.com/collabform/collabform/pkg/metrics"
)

// Entry records one connection's membership in one room. Entries are
// ephemeral and process-local; nothing here survives a restart.
type Entry struct {
	ConnectionID string
	UserID       string
	Username     string
	Room         string
	JoinedAt     time.Time
}

// Registry tracks which connections belong to which rooms. A
// connection may join several rooms over its lifetime; Leave removes
// all of them at once.
//
// Joining deliberately returns nothing: a new joiner learns only
// about future events, never the current roster.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]map[string]Entry // connID -> room -> entry
	byRoom map[string]map[string]Entry // room -> connID -> entry
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]map[string]Entry),
		byRoom: make(map[string]map[string]Entry),
	}
}

func (r *Registry) Join(room, connID, userID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := Entry{
		ConnectionID: connID,
		UserID:       userID,
		Username:     username,
		Room:         room,
		JoinedAt:     time.Now().UTC(),
	}
	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[string]Entry)
		metrics.PresenceConnections.Inc()
	}
	r.byConn[connID][room] = e
	if r.byRoom[room] == nil {
		r.byRoom[room] = make(map[string]Entry)
	}
	r.byRoom[room][connID] = e
}

// Leave removes every membership the connection holds and returns the
// rooms it had joined, so the gateway can fan out departures.
func (r *Registry) Leave(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := r.byConn[connID]
	if rooms == nil {
		return nil
	}
	out := make([]string, 0, len(rooms))
	for room := range rooms {
		out = append(out, room)
		delete(r.byRoom[room], connID)
		if len(r.byRoom[room]) == 0 {
			delete(r.byRoom, room)
		}
	}
	delete(r.byConn, connID)
	metrics.PresenceConnections.Dec()
	return out
}

// Members returns the entries currently registered in room.
func (r *Registry) Members(room string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in := r.byRoom[room]
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		out = append(out, e)
	}
	return out
}

// Rooms returns the rooms connID currently belongs to.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byConn[connID]))
	for room := range r.byConn[connID] {
		out = append(out, room)
	}
	return out
}
