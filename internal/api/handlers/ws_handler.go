package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/services"
)

// WSHandler serves the live timer mirror. The host tab and the detached
// popup window both attach here; every frame they receive renders the one
// session engine, so the views can never diverge. Commands sent from either
// window mutate that same engine.
type WSHandler struct {
	sessions services.SessionService
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions services.SessionService, rdb *redis.Client) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		redis:    rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsClientMsg struct {
	Type       string `json:"type"`                 // pause|resume|change_stage|end|visibility
	Stage      string `json:"stage,omitempty"`      // for change_stage
	Visibility string `json:"visibility,omitempty"` // for visibility: visible|hidden
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (h *WSHandler) SessionWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote the response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Initial sync: push the current view so a freshly attached window
	// renders immediately instead of waiting for the next event.
	if view, verr := h.sessions.Get(ctx, userID); verr == nil {
		if b, merr := json.Marshal(events.Event{
			Type:    events.TypeSessionState,
			UserID:  userID,
			At:      time.Now().UTC(),
			Payload: view,
		}); merr == nil {
			_ = wc.writeText(b)
		}
	}

	pubsub := h.redis.Subscribe(ctx, events.UserChannel(userID))
	defer pubsub.Close()

	// reader: WS commands -> session engine
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"invalid json"}`))
				continue
			}

			h.handleCommand(ctx, wc, userID, msg)
		}
	}()

	// Hijacked-connection contexts are not reliably cancelled, so closing
	// the pubsub is what unblocks a writer waiting in ReceiveMessage after
	// the reader goes away.
	go closeOnDone(readDone, ctx.Done(), pubsub)

	// writer: Redis pub/sub -> WS
	for {
		m, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		if werr := wc.writeText([]byte(m.Payload)); werr != nil {
			return
		}
	}
}

func closeOnDone(a, b <-chan struct{}, c io.Closer) {
	select {
	case <-a:
	case <-b:
	}
	_ = c.Close()
}

func (h *WSHandler) handleCommand(ctx context.Context, wc *wsConn, userID string, msg wsClientMsg) {
	var err error
	switch msg.Type {
	case "pause":
		_, err = h.sessions.Pause(ctx, userID)
	case "resume":
		_, err = h.sessions.Resume(ctx, userID)
	case "change_stage":
		_, err = h.sessions.ChangeStage(ctx, userID, models.Stage(msg.Stage))
	case "end":
		_, err = h.sessions.End(ctx, userID)
	case "visibility":
		if msg.Visibility != "visible" && msg.Visibility != "hidden" {
			_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"visibility must be visible or hidden"}`))
			return
		}
		_, err = h.sessions.Heartbeat(ctx, userID, msg.Visibility == "hidden")
	default:
		_ = wc.writeText([]byte(`{"type":"error","code":"INVALID_ARGUMENT","message":"unknown message type"}`))
		return
	}

	if err != nil {
		b, _ := json.Marshal(gin.H{"type": "error", "message": err.Error()})
		_ = wc.writeText(b)
	}
}
