package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"system_bridge/internal/logger"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxMsgSize  = 1 << 16 // 64 KB
	sendBacklog = 64
)

// wsConn is one accepted socket. Writes happen only on its own writer
// goroutine, so a slow peer fills its own queue and nobody else's.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *logger.Logger
}

func newWSConn(conn *websocket.Conn, log *logger.Logger) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBacklog),
		done: make(chan struct{}),
		log:  log,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Debugw("ws_send_dropped", "conn", c.id)
		return false
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *wsConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Infow("ws_write_failed", "conn", c.id, "err", err)
				c.close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Infow("ws_ping_failed", "conn", c.id, "err", err)
				c.close()
				return
			}
		}
	}
}

// reject sends a policy-violation close frame and tears the socket down.
func (c *wsConn) reject(reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.close()
}

// Close sends a going-away close frame, used on shutdown.
func (c *wsConn) Close() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.close()
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
