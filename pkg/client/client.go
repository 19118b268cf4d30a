// Package client is the sync agent a filling UI drives: it keeps a
// local copy of the shared response reconciled from the initial
// snapshot, the user's own optimistic edits, and peer broadcasts.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collabform/collabform/internal/realtime"
	"github.com/collabform/collabform/internal/response"
	"github.com/collabform/collabform/pkg/logger"
)

const writeWait = 10 * time.Second

// DurableWriter is the authoritative write call for a field edit. It
// is the only path that reports persistence failures; the realtime
// emit is fire and forget.
type DurableWriter interface {
	UpdateField(ctx context.Context, responseID, fieldID string, v response.Value, userID string) error
}

// Options configures a Session.
type Options struct {
	UserID   string
	Username string
	// Writer performs the durable write on UpdateField. Optional;
	// without it edits are local + realtime only.
	Writer DurableWriter
}

// FieldHistory is the "last edited by" line shown next to a field.
type FieldHistory struct {
	Username  string
	Timestamp int64
}

// Session is one realtime connection owned by the screen that needs
// it. Create with Dial, release with Close; there is no package-level
// singleton.
type Session struct {
	ws     *websocket.Conn
	opts   Options
	formID string

	writeMu sync.Mutex

	mu        sync.RWMutex
	snapshot  *response.FormResponse
	histories map[string]FieldHistory
	typing    map[string]string // fieldId -> username currently typing

	subMu   sync.Mutex
	subs    map[realtime.MessageType]map[int]func(json.RawMessage)
	nextSub int

	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a session against the gateway's /ws endpoint. The url
// must carry whatever identity the server expects (token or
// userId/username query parameters).
func Dial(ctx context.Context, url string, opts Options) (*Session, error) {
	if opts.UserID == "" {
		return nil, errors.New("client: UserID is required")
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ws:        ws,
		opts:      opts,
		histories: make(map[string]FieldHistory),
		typing:    make(map[string]string),
		subs:      make(map[realtime.MessageType]map[int]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Close tears the session down and releases every subscription.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.subMu.Lock()
		s.subs = make(map[realtime.MessageType]map[int]func(json.RawMessage))
		s.subMu.Unlock()
		err = s.ws.Close()
	})
	return err
}

// LoadSnapshot seeds the local cache from an authoritative response
// snapshot. Also the recovery path after a suspected missed event:
// re-fetch and reload, there is no replay.
func (s *Session) LoadSnapshot(r *response.FormResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = cloneResponse(r)
	s.histories = make(map[string]FieldHistory)
	for _, fv := range r.FieldValues {
		if fv.LastUpdatedBy == "" {
			continue
		}
		name := fv.LastUpdatedByName
		if name == "" {
			name = fv.LastUpdatedBy
		}
		s.histories[fv.FieldID] = FieldHistory{Username: name, Timestamp: fv.LastUpdatedAt.UnixMilli()}
	}
}

// JoinForm subscribes this session to the form's room. Only future
// events arrive; the current roster is not disclosed.
func (s *Session) JoinForm(formID string) error {
	s.mu.Lock()
	s.formID = formID
	s.mu.Unlock()
	return s.send(realtime.MsgJoinForm, realtime.JoinFormRequest{FormID: formID})
}

// UpdateField applies the edit locally at once, persists it through
// the durable writer, and notifies peers over the realtime channel.
// The returned error is the durable write's only; a failed or dropped
// broadcast is invisible here by design.
func (s *Session) UpdateField(ctx context.Context, fieldID string, v response.Value) error {
	s.mu.Lock()
	if s.snapshot == nil {
		s.mu.Unlock()
		return errors.New("client: no snapshot loaded")
	}
	responseID := s.snapshot.ID
	now := time.Now().UnixMilli()
	s.applyLocked(fieldID, v, s.opts.UserID, s.opts.Username, now)
	s.mu.Unlock()

	var writeErr error
	if s.opts.Writer != nil {
		writeErr = s.opts.Writer.UpdateField(ctx, responseID, fieldID, v, s.opts.UserID)
	}

	if err := s.send(realtime.MsgUpdateField, realtime.UpdateFieldRequest{
		ResponseID: responseID,
		FieldID:    fieldID,
		Value:      v,
		UserID:     s.opts.UserID,
		Username:   s.opts.Username,
	}); err != nil {
		logger.Warnf("client: realtime emit for %s failed: %v", fieldID, err)
	}
	return writeErr
}

// StartTyping marks the field focused; peers see a typing indicator.
func (s *Session) StartTyping(fieldID string) error {
	return s.sendTyping(fieldID, true)
}

// StopTyping marks the field blurred. There is no timeout fallback:
// if the connection drops before this is sent, peers keep showing a
// stale indicator until another event supersedes it.
func (s *Session) StopTyping(fieldID string) error {
	return s.sendTyping(fieldID, false)
}

func (s *Session) sendTyping(fieldID string, isTyping bool) error {
	s.mu.RLock()
	formID := s.formID
	s.mu.RUnlock()
	return s.send(realtime.MsgTyping, realtime.TypingRequest{
		FormID:   formID,
		FieldID:  fieldID,
		UserID:   s.opts.UserID,
		Username: s.opts.Username,
		IsTyping: isTyping,
	})
}

// MoveCursor emits a cursor position. Reserved: the server relays it
// but no client (this one included) renders cursor-moved.
func (s *Session) MoveCursor(fieldID string, position int) error {
	s.mu.RLock()
	formID := s.formID
	s.mu.RUnlock()
	return s.send(realtime.MsgCursorMove, realtime.CursorMoveRequest{
		FormID:   formID,
		FieldID:  fieldID,
		Position: position,
		UserID:   s.opts.UserID,
		Username: s.opts.Username,
	})
}

// Response returns a copy of the cached response.
func (s *Session) Response() *response.FormResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneResponse(s.snapshot)
}

// FieldValue returns the cached value for fieldID.
func (s *Session) FieldValue(fieldID string) (response.FieldValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return response.FieldValue{}, false
	}
	if fv := s.snapshot.Field(fieldID); fv != nil {
		return *fv, true
	}
	return response.FieldValue{}, false
}

// History returns the "last edited by" info for fieldID.
func (s *Session) History(fieldID string) (FieldHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[fieldID]
	return h, ok
}

// TypingUser returns the peer currently typing in fieldID, if any.
func (s *Session) TypingUser(fieldID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.typing[fieldID]
	return name, ok
}

// Subscription is the handle returned by every On* call. Cancel
// detaches the callback; safe to call more than once.
type Subscription struct {
	cancel func()
	once   sync.Once
}

func (sub *Subscription) Cancel() {
	sub.once.Do(sub.cancel)
}

// OnFieldUpdated subscribes to peer field edits. The cache has
// already been reconciled when the callback runs.
func (s *Session) OnFieldUpdated(fn func(realtime.FieldUpdatedPayload)) *Subscription {
	return s.subscribe(realtime.MsgFieldUpdated, func(raw json.RawMessage) {
		var p realtime.FieldUpdatedPayload
		if json.Unmarshal(raw, &p) == nil {
			fn(p)
		}
	})
}

func (s *Session) OnUserJoined(fn func(realtime.UserJoinedPayload)) *Subscription {
	return s.subscribe(realtime.MsgUserJoined, func(raw json.RawMessage) {
		var p realtime.UserJoinedPayload
		if json.Unmarshal(raw, &p) == nil {
			fn(p)
		}
	})
}

func (s *Session) OnUserLeft(fn func(realtime.UserLeftPayload)) *Subscription {
	return s.subscribe(realtime.MsgUserLeft, func(raw json.RawMessage) {
		var p realtime.UserLeftPayload
		if json.Unmarshal(raw, &p) == nil {
			fn(p)
		}
	})
}

func (s *Session) OnUserTyping(fn func(realtime.UserTypingPayload)) *Subscription {
	return s.subscribe(realtime.MsgUserTyping, func(raw json.RawMessage) {
		var p realtime.UserTypingPayload
		if json.Unmarshal(raw, &p) == nil {
			fn(p)
		}
	})
}

// OnCursorMoved subscribes to the reserved cursor stream.
func (s *Session) OnCursorMoved(fn func(realtime.CursorMovedPayload)) *Subscription {
	return s.subscribe(realtime.MsgCursorMoved, func(raw json.RawMessage) {
		var p realtime.CursorMovedPayload
		if json.Unmarshal(raw, &p) == nil {
			fn(p)
		}
	})
}

func (s *Session) subscribe(t realtime.MessageType, fn func(json.RawMessage)) *Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs[t] == nil {
		s.subs[t] = make(map[int]func(json.RawMessage))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[t][id] = fn
	return &Subscription{cancel: func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs[t], id)
	}}
}

func (s *Session) send(t realtime.MessageType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env, err := json.Marshal(realtime.Message{Type: t, Payload: data})
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, env)
}

func (s *Session) readLoop() {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				logger.Warnf("client: read: %v", err)
			}
			return
		}
		var msg realtime.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("client: undecodable frame: %v", err)
			continue
		}
		s.reconcile(&msg)
		s.dispatch(&msg)
	}
}

// reconcile folds an inbound event into the cache. The rule is
// arrival order at this client: whatever applied last wins, even if a
// delayed older edit overwrites a newer one. Timestamps are carried
// for display only.
func (s *Session) reconcile(msg *realtime.Message) {
	switch msg.Type {
	case realtime.MsgFieldUpdated:
		var p realtime.FieldUpdatedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		if s.snapshot != nil && s.snapshot.ID == p.ResponseID {
			s.applyLocked(p.FieldID, p.Value, p.UserID, p.Username, p.Timestamp)
		}
		s.mu.Unlock()
	case realtime.MsgUserTyping:
		var p realtime.UserTypingPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if p.UserID == s.opts.UserID {
			return
		}
		s.mu.Lock()
		if p.IsTyping {
			s.typing[p.FieldID] = p.Username
		} else {
			delete(s.typing, p.FieldID)
		}
		s.mu.Unlock()
	}
}

func (s *Session) applyLocked(fieldID string, v response.Value, userID, username string, ts int64) {
	fv := s.snapshot.Field(fieldID)
	if fv == nil {
		return
	}
	fv.Value = v
	fv.LastUpdatedBy = userID
	fv.LastUpdatedAt = time.UnixMilli(ts)
	if username == "" {
		username = userID
	}
	s.histories[fieldID] = FieldHistory{Username: username, Timestamp: ts}
}

func (s *Session) dispatch(msg *realtime.Message) {
	s.subMu.Lock()
	fns := make([]func(json.RawMessage), 0, len(s.subs[msg.Type]))
	for _, fn := range s.subs[msg.Type] {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(msg.Payload)
	}
}

func cloneResponse(r *response.FormResponse) *response.FormResponse {
	if r == nil {
		return nil
	}
	cp := *r
	cp.FieldValues = append([]response.FieldValue(nil), r.FieldValues...)
	cp.Collaborators = append([]response.Collaborator(nil), r.Collaborators...)
	return &cp
}
