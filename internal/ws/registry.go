package ws

import (
	"errors"
	"sort"
	"sync"

	"interviewsense/internal/metrics"
)

const maxPeers = 2

var (
	ErrRoomFull    = errors.New("room is full")
	ErrUnknownRole = errors.New("unknown role")
)

// membership is everything attached to one room id.
type membership struct {
	peers     []*clientConn // join order, at most maxPeers
	producer  *clientConn
	observers []*clientConn // join order
}

func (m *membership) empty() bool {
	return len(m.peers) == 0 && m.producer == nil && len(m.observers) == 0
}

// LeaveResult describes what a Leave changed.
type LeaveResult struct {
	Removed bool
	// Orphan is the producer detached because the last observer left.
	Orphan *clientConn
	// Emptied reports that the room entry was dropped.
	Emptied bool
}

// Registry tracks room membership for every role. Room entries are created
// on first join and dropped once every set is empty.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*membership
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*membership)}
}

// Join registers c in its room. A peer join fails with ErrRoomFull when two
// peers are present. A producer join replaces any previous producer, which
// is returned so the caller can close it.
func (r *Registry) Join(c *clientConn) (replaced *clientConn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rooms[c.roomID]
	if !ok {
		m = &membership{}
	}

	switch c.role {
	case RolePeer:
		if len(m.peers) >= maxPeers {
			return nil, ErrRoomFull
		}
		m.peers = append(m.peers, c)
	case RoleProducer:
		replaced = m.producer
		m.producer = c
		if replaced != nil {
			metrics.OpenConnections.WithLabelValues(string(RoleProducer)).Dec()
		}
	case RoleObserver:
		m.observers = append(m.observers, c)
	default:
		return nil, ErrUnknownRole
	}

	r.rooms[c.roomID] = m
	metrics.OpenConnections.WithLabelValues(string(c.role)).Inc()
	return replaced, nil
}

// Leave removes c by identity. When c was the last observer the room's
// producer is detached and returned in the result.
func (r *Registry) Leave(c *clientConn) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res LeaveResult
	m, ok := r.rooms[c.roomID]
	if !ok {
		return res
	}

	switch c.role {
	case RolePeer:
		m.peers, res.Removed = without(m.peers, c)
	case RoleProducer:
		if m.producer == c {
			m.producer = nil
			res.Removed = true
		}
	case RoleObserver:
		m.observers, res.Removed = without(m.observers, c)
		if res.Removed && len(m.observers) == 0 && m.producer != nil {
			res.Orphan = m.producer
			m.producer = nil
			metrics.OpenConnections.WithLabelValues(string(RoleProducer)).Dec()
		}
	}
	if res.Removed {
		metrics.OpenConnections.WithLabelValues(string(c.role)).Dec()
	}

	if m.empty() {
		delete(r.rooms, c.roomID)
		res.Emptied = true
	}
	return res
}

// PeersExcept returns the room's peers other than c, in join order.
func (r *Registry) PeersExcept(roomID string, c *clientConn) []*clientConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*clientConn, 0, len(m.peers))
	for _, p := range m.peers {
		if p != c {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Observers(roomID string) []*clientConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]*clientConn(nil), m.observers...)
}

func (r *Registry) Producer(roomID string) *clientConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.rooms[roomID]; ok {
		return m.producer
	}
	return nil
}

// HasProducer reports whether a producer is attached to the room.
func (r *Registry) HasProducer(roomID string) bool {
	return r.Producer(roomID) != nil
}

func (r *Registry) IsProducer(roomID string, c *clientConn) bool {
	return c != nil && r.Producer(roomID) == c
}

type RoomStats struct {
	Room        string `json:"room"`
	Peers       int    `json:"peers"`
	HasProducer bool   `json:"has_producer"`
	Observers   int    `json:"observers"`
}

// Stats lists every live room ordered by id.
func (r *Registry) Stats() []RoomStats {
	r.mu.Lock()
	out := make([]RoomStats, 0, len(r.rooms))
	for id, m := range r.rooms {
		out = append(out, RoomStats{
			Room:        id,
			Peers:       len(m.peers),
			HasProducer: m.producer != nil,
			Observers:   len(m.observers),
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

func without(list []*clientConn, c *clientConn) ([]*clientConn, bool) {
	for i, x := range list {
		if x == c {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}
