package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/collabform/collabform/internal/presence"
	"github.com/collabform/collabform/internal/realtime"
	"github.com/collabform/collabform/internal/response"
	"github.com/collabform/collabform/pkg/logger"
	"github.com/collabform/collabform/pkg/metrics"
)

// State is the lifecycle position of one realtime session.
type State int

const (
	// StateConnected: connection allocated, no room joined yet.
	StateConnected State = iota
	// StateRoomJoined: member of a form room, receiving broadcasts.
	StateRoomJoined
	// StateDisconnected: terminal.
	StateDisconnected
)

// FieldWriter is the durable, authoritative write path the gateway
// persists through before it notifies anyone.
type FieldWriter interface {
	UpdateField(ctx context.Context, responseID, fieldID string, v response.Value, userID string) (*response.FieldValue, error)
}

// Gateway owns the presence registry and the broadcaster and runs the
// per-connection session state machine over them.
type Gateway struct {
	store    FieldWriter
	registry *presence.Registry
	bcast    *realtime.Broadcaster
}

func New(store FieldWriter, registry *presence.Registry) *Gateway {
	g := &Gateway{store: store, registry: registry}
	g.bcast = realtime.NewBroadcaster(roomMembers{registry})
	return g
}

// Broadcaster exposes the room fan-out, mainly for transport wiring.
func (g *Gateway) Broadcaster() *realtime.Broadcaster {
	return g.bcast
}

// Close stops the fan-out loop.
func (g *Gateway) Close() {
	g.bcast.Close()
}

// RoomForForm keys a broadcast room by form identity.
func RoomForForm(formID string) string {
	return "form:" + formID
}

type roomMembers struct {
	reg *presence.Registry
}

func (m roomMembers) Members(room string) []string {
	entries := m.reg.Members(room)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ConnectionID)
	}
	return out
}

// Session is one connection's state machine. Methods are invoked by
// the transport's read loop, one event at a time, so state access is
// serialized per connection; the mutex only guards Disconnect racing
// a slow handler.
type Session struct {
	ID       string
	UserID   string
	Username string

	gw *Gateway

	mu    sync.Mutex
	state State
	room  string
}

// Connect allocates a connection id and enters StateConnected.
func (g *Gateway) Connect(userID, username string) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		gw:       g,
		state:    StateConnected,
	}
	logger.Debugf("session %s connected (user=%s)", s.ID, userID)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the joined room, or "" before JoinForm.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// JoinForm registers the session in the form's room and announces it
// to the peers already there. The joiner itself learns nothing about
// the current roster; it only sees future events.
func (s *Session) JoinForm(formID string) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	room := RoomForForm(formID)
	s.state = StateRoomJoined
	s.room = room
	s.mu.Unlock()

	s.gw.registry.Join(room, s.ID, s.UserID, s.Username)
	logger.Infof("session %s joined %s", s.ID, room)
	s.gw.bcast.Broadcast(room, realtime.MsgUserJoined, realtime.UserJoinedPayload{
		ConnectionID: s.ID,
		Timestamp:    nowMillis(),
	}, s.ID)
}

// UpdateField persists the edit through the durable path first, then
// notifies the room. A failed persistence is logged and dropped: the
// realtime channel never reports errors back to the sender, and an
// update that did not durably persist is never broadcast.
func (s *Session) UpdateField(ctx context.Context, req realtime.UpdateFieldRequest) {
	s.mu.Lock()
	room := s.room
	joined := s.state == StateRoomJoined
	s.mu.Unlock()
	if !joined {
		logger.Warnf("session %s sent update-field before joining a room; dropped", s.ID)
		return
	}
	if req.UserID == "" {
		req.UserID = s.UserID
	}
	if req.Username == "" {
		req.Username = s.Username
	}

	fv, err := s.gw.store.UpdateField(ctx, req.ResponseID, req.FieldID, req.Value, req.UserID)
	if err != nil {
		metrics.FieldUpdates.WithLabelValues(updateOutcome(err)).Inc()
		logger.Errorf("session %s update-field %s/%s: %v", s.ID, req.ResponseID, req.FieldID, err)
		return
	}
	metrics.FieldUpdates.WithLabelValues("persisted").Inc()

	s.gw.bcast.Broadcast(room, realtime.MsgFieldUpdated, realtime.FieldUpdatedPayload{
		ResponseID: req.ResponseID,
		FieldID:    fv.FieldID,
		Value:      fv.Value,
		UserID:     req.UserID,
		Username:   req.Username,
		Timestamp:  nowMillis(),
	}, s.ID)
}

// Typing relays an ephemeral typing indicator. Nothing is persisted
// and there is no timeout: a stale flag stands until another event
// supersedes it.
func (s *Session) Typing(req realtime.TypingRequest) {
	if s.State() == StateDisconnected {
		return
	}
	if req.UserID == "" {
		req.UserID = s.UserID
	}
	if req.Username == "" {
		req.Username = s.Username
	}
	s.gw.bcast.Broadcast(RoomForForm(req.FormID), realtime.MsgUserTyping, realtime.UserTypingPayload{
		FieldID:   req.FieldID,
		UserID:    req.UserID,
		Username:  req.Username,
		IsTyping:  req.IsTyping,
		Timestamp: nowMillis(),
	}, s.ID)
}

// CursorMove relays cursor position. The event is wired end to end
// but no client consumes it; reserved.
func (s *Session) CursorMove(req realtime.CursorMoveRequest) {
	if s.State() == StateDisconnected {
		return
	}
	if req.UserID == "" {
		req.UserID = s.UserID
	}
	if req.Username == "" {
		req.Username = s.Username
	}
	s.gw.bcast.Broadcast(RoomForForm(req.FormID), realtime.MsgCursorMoved, realtime.CursorMovedPayload{
		FieldID:   req.FieldID,
		Position:  req.Position,
		UserID:    req.UserID,
		Username:  req.Username,
		Timestamp: nowMillis(),
	}, s.ID)
}

// Disconnect leaves every joined room and announces the departure on
// each, exactly once. Terminal; later events on this session are
// ignored. An in-flight UpdateField is not cancelled and may still
// complete its persistence afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	rooms := s.gw.registry.Leave(s.ID)
	for _, room := range rooms {
		s.gw.bcast.Broadcast(room, realtime.MsgUserLeft, realtime.UserLeftPayload{
			ConnectionID: s.ID,
			Timestamp:    nowMillis(),
		}, s.ID)
	}
	logger.Infof("session %s disconnected (rooms=%d)", s.ID, len(rooms))
}

func updateOutcome(err error) string {
	switch err {
	case response.ErrNotFound, response.ErrFieldNotFound:
		return "not_found"
	case response.ErrCompleted, response.ErrForbidden:
		return "rejected"
	}
	return "error"
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
