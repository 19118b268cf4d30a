package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/collabform/collabform/internal/realtime"
	"github.com/collabform/collabform/pkg/logger"
	"github.com/collabform/collabform/pkg/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev policy; tighten per deployment
	},
}

// WSHandler upgrades HTTP requests into gateway sessions.
type WSHandler struct {
	gw             *Gateway
	verifier       middleware.Verifier
	sendBuffer     int
	maxMessageSize int64
}

// NewWSHandler builds the realtime endpoint handler. verifier may be
// nil; identity then comes from userId/username query parameters
// (development mode only).
func NewWSHandler(gw *Gateway, verifier middleware.Verifier, sendBuffer int, maxMessageSize int64) *WSHandler {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if maxMessageSize <= 0 {
		maxMessageSize = 8192
	}
	return &WSHandler{gw: gw, verifier: verifier, sendBuffer: sendBuffer, maxMessageSize: maxMessageSize}
}

// Register mounts the endpoint on the router.
func (h *WSHandler) Register(r *gin.Engine) {
	r.GET("/ws", h.Serve)
}

// Serve handles GET /ws?token=... (or ?userId=&username= without a verifier).
func (h *WSHandler) Serve(c *gin.Context) {
	userID, username, ok := h.identify(c)
	if !ok {
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("websocket upgrade: %v", err)
		return
	}

	sess := h.gw.Connect(userID, username)
	conn := &wsSession{
		ws:   wsConn,
		sess: sess,
		gw:   h.gw,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	h.gw.Broadcaster().Attach(sess.ID, conn)

	go conn.writePump()
	conn.readPump(h.maxMessageSize)
}

func (h *WSHandler) identify(c *gin.Context) (userID, username string, ok bool) {
	if h.verifier != nil {
		raw := c.Query("token")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return "", "", false
		}
		tok, err := h.verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return "", "", false
		}
		var claims map[string]interface{}
		if err := tok.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return "", "", false
		}
		sub, _ := claims["sub"].(string)
		name, _ := claims["name"].(string)
		if sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return "", "", false
		}
		return sub, name, true
	}
	userID = c.Query("userId")
	username = c.Query("username")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing userId"})
		return "", "", false
	}
	return userID, username, true
}

// wsSession binds one websocket connection to one gateway session.
type wsSession struct {
	ws   *websocket.Conn
	sess *Session
	gw   *Gateway
	send chan []byte
	done chan struct{}
}

// Enqueue implements realtime.Conn. Non-blocking: a full queue drops
// the event for this connection only.
func (c *wsSession) Enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *wsSession) readPump(maxMessageSize int64) {
	defer c.teardown()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("session %s read: %v", c.sess.ID, err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound envelope to the session state machine.
// Persistence runs on a background context: closing the socket must
// not cancel an in-flight durable write.
func (c *wsSession) dispatch(data []byte) {
	var msg realtime.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warnf("session %s sent an undecodable frame: %v", c.sess.ID, err)
		return
	}
	switch msg.Type {
	case realtime.MsgJoinForm:
		var req realtime.JoinFormRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.FormID == "" {
			logger.Warnf("session %s: bad join-form payload", c.sess.ID)
			return
		}
		c.sess.JoinForm(req.FormID)
	case realtime.MsgUpdateField:
		var req realtime.UpdateFieldRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			logger.Warnf("session %s: bad update-field payload", c.sess.ID)
			return
		}
		c.sess.UpdateField(context.Background(), req)
	case realtime.MsgTyping:
		var req realtime.TypingRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			logger.Warnf("session %s: bad typing payload", c.sess.ID)
			return
		}
		c.sess.Typing(req)
	case realtime.MsgCursorMove:
		var req realtime.CursorMoveRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			logger.Warnf("session %s: bad cursor-move payload", c.sess.ID)
			return
		}
		c.sess.CursorMove(req)
	default:
		logger.Debugf("session %s: unknown message type %q", c.sess.ID, msg.Type)
	}
}

func (c *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsSession) teardown() {
	c.gw.Broadcaster().Detach(c.sess.ID)
	c.sess.Disconnect()
	close(c.done)
	c.ws.Close()
}
