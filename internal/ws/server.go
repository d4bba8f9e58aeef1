package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"interviewsense/internal/analysis"
	"interviewsense/internal/metrics"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be < pongWait

	signalReadLimit   = 64 << 10
	sampleReadLimit   = 8 << 20
	observerReadLimit = 4 << 10

	authTimeout = 5 * time.Second
)

var ErrNotProducer = errors.New("connection is not the room's producer")

// Authorizer decides whether a connection may join a room in a role.
type Authorizer interface {
	Authorize(ctx context.Context, roomID, token, role string) error
}

// AllowAll admits every connection.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, string, string) error { return nil }

// Submitter is the analysis pipeline as seen from the socket layer.
type Submitter interface {
	Submit(ctx context.Context, roomID string, s analysis.Sample) (analysis.Snapshot, error)
	Forget(roomID string)
	Configured() bool
}

type Options struct {
	Registry    *Registry
	Hub         *Hub
	Relay       *Relay
	Pipeline    Submitter
	Auth        Authorizer // nil: AllowAll
	MaxInflight int64      // concurrent analyses per producer
	Model       string     // reported by Status
}

type WsServer struct {
	registry    *Registry
	hub         *Hub
	relay       *Relay
	pipeline    Submitter
	auth        Authorizer
	maxInflight int64
	model       string

	upgrader websocket.Upgrader
	router   *Router
	validate *validator.Validate
}

func NewWsServer(opts Options) *WsServer {
	srv := &WsServer{
		registry:    opts.Registry,
		hub:         opts.Hub,
		relay:       opts.Relay,
		pipeline:    opts.Pipeline,
		auth:        opts.Auth,
		maxInflight: opts.MaxInflight,
		model:       opts.Model,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
		},
		router:   NewRouter(),
		validate: validator.New(),
	}
	if srv.auth == nil {
		srv.auth = AllowAll{}
	}
	if srv.maxInflight <= 0 {
		srv.maxInflight = 1
	}
	if srv.pipeline != nil {
		srv.hub.OnRoomIdle(srv.pipeline.Forget)
	}
	if srv.relay != nil {
		srv.relay.OnRoomEmpty(srv.hub.RoomEmptied)
	}
	srv.registerHandlers()
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-points
// ---------------------------------------------------------------------------

// HandleSignal serves GET /ws/signal/:room for the two interview peers.
func (s *WsServer) HandleSignal(ginCtx *gin.Context) {
	c, raw, ok := s.accept(ginCtx, RolePeer, signalReadLimit)
	if !ok {
		return
	}

	if err := s.relay.Join(c); err != nil {
		if errors.Is(err, ErrRoomFull) {
			metrics.JoinRejections.WithLabelValues("room_full").Inc()
			zap.L().Info("ws.room_full", zap.String("room", c.roomID))
			_ = c.writeJSON(ErrorBody{Type: "error", Code: "ROOM_FULL", Message: roomFullMessage})
			c.closeWith(CloseRoomFull, "Room full")
			return
		}
		zap.L().Error("ws.join", zap.String("room", c.roomID), zap.Error(err))
		c.closeWith(websocket.CloseInternalServerErr, "")
		return
	}
	zap.L().Debug("ws.peer_joined", zap.String("room", c.roomID), zap.String("conn", c.id))

	go s.signalReader(c, raw)
	go s.pinger(c)
}

// HandleProducer serves GET /ws/emotion/:room for the sample producer.
func (s *WsServer) HandleProducer(ginCtx *gin.Context) {
	c, raw, ok := s.accept(ginCtx, RoleProducer, sampleReadLimit)
	if !ok {
		return
	}

	replaced, err := s.registry.Join(c)
	if err != nil {
		zap.L().Error("ws.join", zap.String("room", c.roomID), zap.Error(err))
		c.closeWith(websocket.CloseInternalServerErr, "")
		return
	}
	if replaced != nil {
		zap.L().Info("ws.producer_replaced",
			zap.String("room", c.roomID),
			zap.String("old", replaced.id),
			zap.String("new", c.id),
		)
		replaced.closeWith(CloseProducerReplaced, "replaced")
	}

	go s.producerReader(c, raw)
	go s.pinger(c)
}

// HandleObserver serves GET /ws/insights/:room for snapshot observers.
func (s *WsServer) HandleObserver(ginCtx *gin.Context) {
	c, raw, ok := s.accept(ginCtx, RoleObserver, observerReadLimit)
	if !ok {
		return
	}

	if err := s.hub.AddObserver(c); err != nil {
		zap.L().Debug("ws.observer_join", zap.String("room", c.roomID), zap.Error(err))
		c.release(func() {
			s.hub.RemoveObserver(c)
			c.closeWith(websocket.CloseGoingAway, "")
		})
		return
	}

	go s.observerReader(c, raw)
	go s.pinger(c)
}

type Status struct {
	AnalyzerConfigured bool        `json:"analyzer_configured"`
	Model              string      `json:"model,omitempty"`
	Rooms              []RoomStats `json:"rooms"`
}

func (s *WsServer) Status() Status {
	st := Status{Rooms: s.registry.Stats()}
	if s.pipeline != nil && s.pipeline.Configured() {
		st.AnalyzerConfigured = true
		st.Model = s.model
	}
	return st
}

// NormalizeRoomID folds room ids so "ABC123 " and "abc123" share a room.
func NormalizeRoomID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, "ping", func(context.Context, *ConnContext, PingRequest) (any, error) {
		return Pong{Type: "pong"}, nil
	})
	Register(s.router, "sample", s.submitSample)
	Register(s.router, "multimodal_frame", s.submitSample)
}

// accept authorizes and upgrades the request. Rejected connections are
// upgraded and closed with a policy violation so the client sees a close
// code rather than an HTTP error.
func (s *WsServer) accept(ginCtx *gin.Context, role Role, readLimit int64) (*clientConn, *websocket.Conn, bool) {
	roomID := NormalizeRoomID(ginCtx.Param("room"))
	if roomID == "" {
		ginCtx.JSON(http.StatusBadRequest, ErrorBody{Type: "error", Message: "room id is required"})
		return nil, nil, false
	}

	ctx, cancel := context.WithTimeout(ginCtx.Request.Context(), authTimeout)
	authErr := s.auth.Authorize(ctx, roomID, tokenFrom(ginCtx.Request), string(role))
	cancel()

	raw, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.String("room", roomID), zap.Error(err))
		return nil, nil, false
	}
	c := newClientConn(raw, role, roomID)

	if authErr != nil {
		metrics.JoinRejections.WithLabelValues("unauthorized").Inc()
		zap.L().Info("ws.unauthorized",
			zap.String("room", roomID),
			zap.String("role", string(role)),
			zap.Error(authErr),
		)
		c.closeWith(websocket.ClosePolicyViolation, "")
		return nil, nil, false
	}

	raw.SetReadLimit(readLimit)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c, raw, true
}

func tokenFrom(r *http.Request) string {
	if ck, err := r.Cookie("access_token"); err == nil && ck.Value != "" {
		return ck.Value
	}
	return r.URL.Query().Get("token")
}

func (s *WsServer) signalReader(c *clientConn, raw *websocket.Conn) {
	defer c.release(func() {
		s.relay.Leave(c)
		c.closeWith(websocket.CloseNormalClosure, "")
		zap.L().Debug("ws.peer_left", zap.String("room", c.roomID), zap.String("conn", c.id))
	})

	for {
		_, frame, err := raw.ReadMessage()
		if err != nil {
			return // client closed or errored
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := sonic.Unmarshal(frame, &env); err != nil || env.Type == "" {
			zap.L().Debug("ws.signal_dropped", zap.String("room", c.roomID), zap.Int("bytes", len(frame)))
			continue
		}
		if env.Type == "ping" {
			_ = c.write(websocket.TextMessage, pongFrame)
			continue
		}
		s.relay.Relay(c, frame)
	}
}

func (s *WsServer) producerReader(c *clientConn, raw *websocket.Conn) {
	defer c.release(func() {
		s.hub.RemoveProducer(c)
		c.closeWith(websocket.CloseNormalClosure, "")
	})

	cc := &ConnContext{
		RoomID:   c.roomID,
		conn:     c,
		inflight: semaphore.NewWeighted(s.maxInflight),
	}

	for {
		_, frame, err := raw.ReadMessage()
		if err != nil {
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := sonic.Unmarshal(frame, &env); err != nil || env.Type == "" {
			_ = c.writeJSON(ErrorBody{Type: "error", Message: "invalid frame"})
			continue
		}

		res, err := s.router.dispatch(context.Background(), cc, env, frame)
		if err != nil {
			_ = c.writeJSON(ErrorBody{Type: "error", Message: err.Error()})
			continue
		}
		if res != nil {
			_ = c.writeJSON(res)
		}
	}
}

// observerReader only answers pings. Observers never send anything else.
func (s *WsServer) observerReader(c *clientConn, raw *websocket.Conn) {
	defer c.release(func() {
		s.hub.RemoveObserver(c)
		c.closeWith(websocket.CloseNormalClosure, "")
	})

	for {
		_, frame, err := raw.ReadMessage()
		if err != nil {
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := sonic.Unmarshal(frame, &env); err == nil && env.Type == "ping" {
			_ = c.write(websocket.TextMessage, pongFrame)
		}
	}
}

// submitSample runs the analysis off the read loop. Samples arriving while
// the producer already has its quota of analyses in flight are dropped.
func (s *WsServer) submitSample(_ context.Context, cc *ConnContext, req SampleRequest) (any, error) {
	if err := s.validate.Struct(req.Sample); err != nil {
		return nil, fmt.Errorf("%w: video is required", analysis.ErrInvalidSample)
	}
	if !s.registry.IsProducer(cc.RoomID, cc.conn) {
		return nil, ErrNotProducer
	}
	if s.pipeline == nil {
		return nil, nil
	}
	if !cc.inflight.TryAcquire(1) {
		zap.L().Debug("ws.sample_dropped", zap.String("room", cc.RoomID))
		return nil, nil
	}

	go func() {
		defer cc.inflight.Release(1)
		s.runSample(cc, req.Sample)
	}()
	return nil, nil
}

// runSample analyzes one accepted sample unless its producer was detached
// while the sample waited.
func (s *WsServer) runSample(cc *ConnContext, sample analysis.Sample) {
	if !s.registry.IsProducer(cc.RoomID, cc.conn) {
		zap.L().Debug("ws.sample_orphaned", zap.String("room", cc.RoomID))
		return
	}
	snap, err := s.pipeline.Submit(context.Background(), cc.RoomID, sample)
	switch {
	case errors.Is(err, analysis.ErrStaleResult), errors.Is(err, analysis.ErrRoomInactive):
	case err != nil:
		zap.L().Warn("ws.submit", zap.String("room", cc.RoomID), zap.Error(err))
	default:
		zap.L().Debug("ws.snapshot",
			zap.String("room", cc.RoomID),
			zap.Uint64("seq", snap.Sequence),
			zap.String("state", snap.DominantState),
		)
	}
}

func (s *WsServer) pinger(c *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.closeWith(websocket.CloseGoingAway, "ping timeout")
				return
			}
		}
	}
}
