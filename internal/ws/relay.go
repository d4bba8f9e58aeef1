package ws

import (
	"interviewsense/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Relay forwards session-negotiation frames between the two peers of a
// room. Frames are opaque and passed through byte for byte.
type Relay struct {
	registry *Registry
	onEmpty  func(roomID string)
}

func NewRelay(reg *Registry) *Relay {
	return &Relay{registry: reg}
}

// OnRoomEmpty registers fn to run when the last member of a room was a
// leaving peer.
func (r *Relay) OnRoomEmpty(fn func(roomID string)) { r.onEmpty = fn }

// Join admits c as a peer. ErrRoomFull is returned when two peers are
// already present.
func (r *Relay) Join(c *clientConn) error {
	_, err := r.registry.Join(c)
	return err
}

// Relay sends raw to every other peer in the sender's room. A peer that
// cannot be written to is closed; its own read loop then cleans it up.
func (r *Relay) Relay(sender *clientConn, raw []byte) {
	for _, p := range r.registry.PeersExcept(sender.roomID, sender) {
		if err := p.write(websocket.TextMessage, raw); err != nil {
			metrics.ImplicitDisconnects.WithLabelValues(string(RolePeer)).Inc()
			zap.L().Debug("relay.send_failed",
				zap.String("room", sender.roomID),
				zap.String("conn", p.id),
				zap.Error(err),
			)
			p.closeWith(websocket.CloseGoingAway, "send failed")
		}
	}
}

// Leave announces the departure to the remaining peers, then removes c.
func (r *Relay) Leave(c *clientConn) {
	for _, p := range r.registry.PeersExcept(c.roomID, c) {
		_ = p.write(websocket.TextMessage, peerLeftFrame)
	}
	if res := r.registry.Leave(c); res.Emptied && r.onEmpty != nil {
		r.onEmpty(c.roomID)
	}
}
