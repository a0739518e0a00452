package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatgate/logger"
)

const writeWait = 10 * time.Second

// wsLink is the slice of *websocket.Conn the gateway needs. Tests swap
// in a fake; production always uses gorilla connections.
type wsLink interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is the per-connection session: identity resolved at handshake,
// the socket, a buffered outbound queue drained by a single writer
// goroutine, the set of joined rooms and the liveness flag.
//
// rooms and alive are guarded by the owning ConnManager's lock; nothing
// outside conn_manager.go touches them.
type Client struct {
	ConnID string
	UserID string
	WS     wsLink
	Send   chan []byte

	rooms map[string]struct{}
	alive bool

	done     chan struct{}
	downOnce sync.Once
}

func NewClient(connID, userID string, ws wsLink, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ConnID: connID,
		UserID: userID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[string]struct{}),
		alive:  true,
		done:   make(chan struct{}),
	}
}

// Enqueue offers a frame to the writer queue without blocking. It
// reports false when the connection is shutting down or the queue is
// full; a session that is already gone silently drops the frame instead
// of erroring, so late fan-out pushes are no-ops.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// shutdown makes all future Enqueue calls no-ops and closes the socket,
// offering the peer a normal-closure frame first. Safe to call any
// number of times from any goroutine; WriteControl is safe alongside
// the writer goroutine's WriteMessage.
func (c *Client) shutdown() {
	c.downOnce.Do(func() {
		close(c.done)
		_ = c.WS.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.WS.Close()
	})
}

// writePump is the single writer for the connection. It exits when the
// session shuts down or a write fails, closing the socket either way so
// the read loop unblocks.
func (c *Client) writePump() {
	defer c.shutdown()
	for {
		select {
		case <-c.done:
			// shutdown already sent the close frame
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[ws] write err conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
				return
			}
		}
	}
}
