package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

type Role string

const (
	RolePeer     Role = "peer"
	RoleProducer Role = "producer"
	RoleObserver Role = "observer"
)

// Application close codes.
const (
	CloseRoomFull         = 4003
	CloseProducerReplaced = 4001
)

var errConnClosed = errors.New("connection closed")

// socket is the subset of *websocket.Conn that clientConn writes through.
type socket interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type clientConn struct {
	id     string
	role   Role
	roomID string

	rawConn socket
	mu      sync.Mutex // serializes data frames

	closed      atomic.Bool
	done        chan struct{}
	closeOnce   sync.Once
	cleanupOnce sync.Once
}

func newClientConn(raw socket, role Role, roomID string) *clientConn {
	return &clientConn{
		id:      uuid.NewString(),
		role:    role,
		roomID:  roomID,
		rawConn: raw,
		done:    make(chan struct{}),
	}
}

func (c *clientConn) write(mt int, data []byte) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data) // Text/Binary only
}

func (c *clientConn) writeJSON(v any) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

// closeWith sends a close frame and drops the socket. Only the first call
// has an effect; the read loop then fails and runs the cleanup path.
func (c *clientConn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.rawConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.rawConn.Close()
	})
}

func (c *clientConn) ping() error {
	if c.closed.Load() {
		return errConnClosed
	}
	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *clientConn) isClosed() bool { return c.closed.Load() }

// release runs fn at most once per connection, whichever of the read loop or
// an external close gets there first.
func (c *clientConn) release(fn func()) {
	c.cleanupOnce.Do(fn)
}
