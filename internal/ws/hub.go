package ws

import (
	"context"
	"time"

	"interviewsense/internal/analysis"
	"interviewsense/internal/metrics"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// InsightStore durably appends published snapshots.
type InsightStore interface {
	Persist(ctx context.Context, roomID string, snap analysis.Snapshot) error
}

// Hub fans snapshots out to a room's observers and couples the producer's
// lifetime to the observer set.
type Hub struct {
	registry       *Registry
	store          *SnapshotStore
	insights       InsightStore
	persistTimeout time.Duration
	locks          *roomLocks
	onIdle         func(roomID string)
}

func NewHub(reg *Registry, store *SnapshotStore, insights InsightStore, persistTimeout time.Duration) *Hub {
	if persistTimeout <= 0 {
		persistTimeout = 3 * time.Second
	}
	return &Hub{
		registry:       reg,
		store:          store,
		insights:       insights,
		persistTimeout: persistTimeout,
		locks:          newRoomLocks(),
	}
}

// OnRoomIdle registers fn to run once a room's analysis session ends: the
// last observer left while a producer was attached, or the room was dropped.
func (h *Hub) OnRoomIdle(fn func(roomID string)) { h.onIdle = fn }

// Publish caches snap, queues it for persistence and sends it to every
// observer. Observers that fail to receive it are dropped.
func (h *Hub) Publish(ctx context.Context, roomID string, snap analysis.Snapshot) {
	msg, err := sonic.Marshal(SnapshotUpdate{Type: "snapshot_update", Snapshot: snap})
	if err != nil {
		zap.L().Error("hub.marshal", zap.String("room", roomID), zap.Error(err))
		return
	}

	unlock := h.locks.lock(roomID)
	h.store.Put(roomID, snap)
	h.persist(roomID, snap)

	var failed []*clientConn
	for _, c := range h.registry.Observers(roomID) {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}

	var orphan *clientConn
	ended := false
	for _, c := range failed {
		metrics.ImplicitDisconnects.WithLabelValues(string(RoleObserver)).Inc()
		zap.L().Debug("hub.observer_dropped", zap.String("room", roomID), zap.String("conn", c.id))
		res := h.registry.Leave(c)
		if res.Orphan != nil {
			orphan = res.Orphan
		}
		ended = ended || res.Orphan != nil || res.Emptied
		c.closeWith(websocket.CloseGoingAway, "send failed")
	}
	unlock()

	if orphan != nil {
		h.closeProducer(roomID, orphan)
	}
	if ended {
		// The caller may still hold the room's delivery slot; idle cleanup
		// waits for it.
		go h.idle(roomID)
	}
}

// AddObserver registers c and sends it the latest snapshot, if any, before
// any later Publish can reach it.
func (h *Hub) AddObserver(c *clientConn) error {
	unlock := h.locks.lock(c.roomID)
	defer unlock()

	if _, err := h.registry.Join(c); err != nil {
		return err
	}
	if snap, ok := h.store.Get(c.roomID); ok {
		return c.writeJSON(SnapshotUpdate{Type: "snapshot_update", Snapshot: snap})
	}
	return nil
}

// RemoveObserver unregisters c. Losing the last observer closes the
// producer and clears the room's cached snapshot.
func (h *Hub) RemoveObserver(c *clientConn) {
	unlock := h.locks.lock(c.roomID)
	res := h.registry.Leave(c)
	unlock()

	if res.Orphan != nil {
		h.closeProducer(c.roomID, res.Orphan)
	}
	if res.Orphan != nil || res.Emptied {
		h.idle(c.roomID)
	}
}

// RemoveProducer unregisters c. Observers keep the room's snapshot until
// the last of them leaves.
func (h *Hub) RemoveProducer(c *clientConn) {
	unlock := h.locks.lock(c.roomID)
	res := h.registry.Leave(c)
	unlock()

	if res.Emptied {
		h.idle(c.roomID)
	}
}

// RoomEmptied ends the analysis session of a room the registry dropped
// through another role.
func (h *Hub) RoomEmptied(roomID string) { h.idle(roomID) }

func (h *Hub) closeProducer(roomID string, producer *clientConn) {
	zap.L().Info("hub.producer_stopped", zap.String("room", roomID), zap.String("conn", producer.id))
	producer.closeWith(websocket.CloseNormalClosure, "no observers")
}

func (h *Hub) idle(roomID string) {
	if h.onIdle != nil {
		h.onIdle(roomID)
	}
	h.store.Delete(roomID)
}

// persist is fire-and-forget: failures are logged and never reach the feed.
func (h *Hub) persist(roomID string, snap analysis.Snapshot) {
	if h.insights == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		defer cancel()
		if err := h.insights.Persist(ctx, roomID, snap); err != nil {
			metrics.PersistFailures.Inc()
			zap.L().Warn("hub.persist",
				zap.String("room", roomID),
				zap.Uint64("seq", snap.Sequence),
				zap.Error(err),
			)
		}
	}()
}
