// Package connection is the client side of the event bus: it dials a
// gateway, registers as a listener and exposes inbound events as a channel.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

// Path served by the gateway.
const Path = "/api/websocket"

const (
	maxDialTries   = 5
	writeWait      = 10 * time.Second
	eventsBacklog  = 64
	dialTimeout    = 5 * time.Second
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

var (
	ErrRejected         = errors.New("gateway rejected the api key")
	ErrClosed           = errors.New("connection closed")
	ErrAlreadyConnected = errors.New("already connected")
)

type frame struct {
	Event string    `json:"event"`
	Data  frameData `json:"data"`
}

type frameData struct {
	APIKey string `json:"api-key"`
	Name   string `json:"name,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type inbound struct {
	Event string       `json:"event"`
	Data  models.Event `json:"data"`
}

// Connection owns at most one socket at a time.
type Connection struct {
	log    *logger.Logger
	dialer *websocket.Dialer
	events chan models.Event

	// newBackOff is swapped by tests for a fast schedule
	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	conn   *websocket.Conn
	url    string
	apiKey string
	keep   bool
	closed bool
}

func New(log *logger.Logger) *Connection {
	return &Connection{
		log:    log,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		events: make(chan models.Event, eventsBacklog),
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = initialBackoff
			bo.MaxInterval = maxBackoff
			return bo
		},
	}
}

// Connect dials ws://host:port/api/websocket, registers as a listener and
// calls onConnected. With keepAliveOnCompletion false the socket is closed
// as soon as onConnected returns; otherwise it stays open and an unexpected
// drop triggers a bounded re-dial.
func (c *Connection) Connect(ctx context.Context, host string, port int, apiKey string, keepAliveOnCompletion bool, onConnected func()) error {
	u := "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + Path

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.url, c.apiKey, c.keep, c.closed = u, apiKey, keepAliveOnCompletion, false
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		return err
	}
	c.log.Infow("bus_connected", "url", u)

	if onConnected != nil {
		onConnected()
	}
	if !keepAliveOnCompletion {
		c.Close()
	}
	return nil
}

// dial opens and registers a socket, retrying with exponential backoff.
func (c *Connection) dial(ctx context.Context) error {
	c.mu.Lock()
	u, key := c.url, c.apiKey
	c.mu.Unlock()

	operation := func() (*websocket.Conn, error) {
		conn, _, err := c.dialer.DialContext(ctx, u, nil)
		if err != nil {
			c.log.Debugw("bus_dial_failed", "url", u, "err", err)
			return nil, err
		}
		if err := register(conn, key); err != nil {
			_ = conn.Close()
			if errors.Is(err, ErrRejected) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return conn, nil
	}

	conn, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(maxDialTries))
	if err != nil {
		return fmt.Errorf("connect %s: %w", u, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx, conn)
	return nil
}

// register sends register-listener and waits for the registered-listener reply.
func register(conn *websocket.Conn, key string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame{Event: "register-listener", Data: frameData{APIKey: key}}); err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Now().Add(writeWait))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return ErrRejected
			}
			return err
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err == nil && msg.Event == "registered-listener" {
			return nil
		}
	}
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.dropped(ctx, conn, err)
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warnw("bus_bad_frame", "err", err)
			continue
		}
		if msg.Event != "events" {
			continue
		}
		select {
		case c.events <- msg.Data:
		default:
			c.log.Debugw("bus_event_dropped", "event", msg.Data.Name)
		}
	}
}

func (c *Connection) dropped(ctx context.Context, conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// replaced or closed by the owner
		c.mu.Unlock()
		return
	}
	c.conn = nil
	redial := c.keep && !c.closed
	c.mu.Unlock()
	_ = conn.Close()

	if !redial || ctx.Err() != nil {
		return
	}
	if websocket.IsCloseError(cause, websocket.ClosePolicyViolation) {
		c.log.Warnw("bus_rejected", "err", cause)
		return
	}

	c.log.Warnw("bus_connection_lost", "err", cause)
	if err := c.dial(ctx); err != nil {
		c.log.Errorw("bus_reconnect_failed", "err", err)
		return
	}
	c.log.Infow("bus_reconnected")
}

// SendEvent writes ev when the socket is open and is a no-op otherwise.
func (c *Connection) SendEvent(ev models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(frame{
		Event: "events",
		Data:  frameData{APIKey: c.apiKey, Name: ev.Name, Data: ev.Data},
	})
	if err != nil {
		c.log.Warnw("bus_send_failed", "event", ev.Name, "err", err)
	}
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Events delivers inbound broadcast events. The channel is never closed.
func (c *Connection) Events() <-chan models.Event {
	return c.events
}

// Close sends a normal close frame if a socket is open. Safe to call repeatedly.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
	c.conn = nil
}
