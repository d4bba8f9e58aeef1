package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/semaphore"
)

var errUnknownType = errors.New("unknown message type")

// ConnContext is what a handler knows about the connection a frame came in on.
type ConnContext struct {
	RoomID string

	conn     *clientConn
	inflight *semaphore.Weighted
}

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, frame []byte) (any, error)

// Router keeps a map[type]handler for producer frames.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds a frame type to a strongly typed handler. The whole frame
// is decoded into Req. A nil reply sends nothing back.
func Register[Req any](
	r *Router,
	msgType string,
	h func(ctx context.Context, c *ConnContext, req Req) (any, error),
) {
	if msgType == "" {
		panic("ws router: empty message type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[msgType] = func(ctx context.Context, c *ConnContext, frame []byte) (any, error) {
		var req Req
		if err := sonic.Unmarshal(frame, &req); err != nil {
			return nil, err
		}
		return h(ctx, c, req)
	}
}

// dispatch is called by the producer reader loop.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope, frame []byte) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errUnknownType
	}
	return h(ctx, c, frame)
}
