package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapbridge/internal/host"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/session"
)

const (
	wsPingInterval = 20 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// WS message types.
const (
	WSSnapshot = "snapshot"
	WSEvent    = "event"
	WSError    = "error"
)

// WSMessage is one frame sent to a websocket client.
type WSMessage struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Event    *host.Event       `json:"event,omitempty"`
	Error    *WSFailure        `json:"error,omitempty"`
}

// WSFailure mirrors the status a REST call would have answered with.
type WSFailure struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// WSBridge drives a session over a websocket. Clients send Commands as
// JSON text frames; every command is answered with a snapshot or an error,
// and the session's callbacks are pushed as events.
type WSBridge struct {
	api      *APIHandler
	bus      *host.Bus
	log      zerolog.Logger
	upgrader websocket.Upgrader

	PingInterval time.Duration
	ReadTimeout  time.Duration
}

func NewWSBridge(svc *Services, log zerolog.Logger) *WSBridge {
	return &WSBridge{
		api:          NewAPIHandler(svc),
		bus:          svc.Bus,
		log:          log.With().Str("component", "ws").Logger(),
		upgrader:     websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		PingInterval: wsPingInterval,
		ReadTimeout:  wsReadTimeout,
	}
}

// ServeHTTP serves GET /ws/sessions/{session}.
func (b *WSBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	if _, err := b.api.svc.Sessions.Get(id); err != nil {
		http.Error(w, maperr.Message(err), http.StatusNotFound)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Str("session", id).Msg("websocket upgrade")
		return
	}
	c := &wsConn{
		bridge: b,
		conn:   conn,
		id:     id,
		log:    b.log.With().Str("session", id).Logger(),
	}
	c.serve(r.Context())
}

type wsConn struct {
	bridge  *WSBridge
	conn    *websocket.Conn
	id      string
	log     zerolog.Logger
	writeMu sync.Mutex
}

func (c *wsConn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer c.conn.Close()

	timeout := c.bridge.ReadTimeout
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		return nil
	})

	c.log.Debug().Msg("websocket connected")
	if snap, err := c.bridge.api.snapshotOf(ctx, c.id); err != nil {
		c.fail(err)
		return
	} else if err := c.send(WSMessage{Type: WSSnapshot, Snapshot: &snap}); err != nil {
		return
	}

	go c.pingLoop(ctx)
	if c.bridge.bus != nil {
		ch := c.bridge.bus.Subscribe()
		defer c.bridge.bus.Unsubscribe(ch)
		go c.forward(ctx, ch)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(timeout))

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.fail(maperr.Interaction("decode command: %v", err))
			continue
		}
		snap, err := c.bridge.api.apply(ctx, c.id, cmd)
		if err != nil {
			c.fail(err)
			if errors.Is(err, session.ErrClosed) {
				return
			}
			continue
		}
		if err := c.send(WSMessage{Type: WSSnapshot, Snapshot: &snap}); err != nil {
			return
		}
	}
}

func (c *wsConn) forward(ctx context.Context, ch chan host.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Session != c.id {
				continue
			}
			if err := c.send(WSMessage{Type: WSEvent, Event: &ev}); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.bridge.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline)
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug().Err(err).Msg("websocket ping")
				c.conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) send(m WSMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := c.conn.WriteJSON(m)
	if err != nil {
		c.log.Debug().Err(err).Str("type", m.Type).Msg("websocket write")
	}
	return err
}

func (c *wsConn) fail(err error) {
	f := &WSFailure{Status: http.StatusInternalServerError, Message: err.Error()}
	var se huma.StatusError
	if errors.As(statusError(err), &se) {
		f.Status = se.GetStatus()
		f.Message = maperr.Message(err)
	}
	c.send(WSMessage{Type: WSError, Error: f})
}
