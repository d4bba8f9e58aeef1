package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPeerCapacity(t *testing.T) {
	reg := NewRegistry()
	a, _ := newTestConn(RolePeer, "abc123")
	b, _ := newTestConn(RolePeer, "abc123")
	c, _ := newTestConn(RolePeer, "abc123")

	_, err := reg.Join(a)
	require.NoError(t, err)
	_, err = reg.Join(b)
	require.NoError(t, err)

	_, err = reg.Join(c)
	assert.ErrorIs(t, err, ErrRoomFull)

	assert.Equal(t, []*clientConn{b}, reg.PeersExcept("abc123", a))
	assert.Equal(t, []*clientConn{a}, reg.PeersExcept("abc123", b))

	// The rejected peer never became a member; a slot frees up on leave.
	assert.False(t, reg.Leave(c).Removed)
	assert.True(t, reg.Leave(a).Removed)
	_, err = reg.Join(c)
	assert.NoError(t, err)
}

func TestRegistryObserversUnlimited(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 10; i++ {
		o, _ := newTestConn(RoleObserver, "r")
		_, err := reg.Join(o)
		require.NoError(t, err)
	}
	assert.Len(t, reg.Observers("r"), 10)
}

func TestRegistryProducerLastWriterWins(t *testing.T) {
	reg := NewRegistry()
	p1, _ := newTestConn(RoleProducer, "r")
	p2, _ := newTestConn(RoleProducer, "r")

	replaced, err := reg.Join(p1)
	require.NoError(t, err)
	assert.Nil(t, replaced)

	replaced, err = reg.Join(p2)
	require.NoError(t, err)
	assert.Same(t, p1, replaced)

	// The replaced producer's cleanup must not evict its successor.
	assert.False(t, reg.Leave(p1).Removed)
	assert.Same(t, p2, reg.Producer("r"))
	assert.True(t, reg.IsProducer("r", p2))
	assert.False(t, reg.IsProducer("r", p1))
}

func TestRegistryLastObserverOrphansProducer(t *testing.T) {
	reg := NewRegistry()
	o1, _ := newTestConn(RoleObserver, "r")
	o2, _ := newTestConn(RoleObserver, "r")
	p, _ := newTestConn(RoleProducer, "r")
	for _, c := range []*clientConn{o1, o2, p} {
		_, err := reg.Join(c)
		require.NoError(t, err)
	}

	res := reg.Leave(o1)
	assert.True(t, res.Removed)
	assert.Nil(t, res.Orphan)
	assert.False(t, res.Emptied)
	assert.Same(t, p, reg.Producer("r"))

	res = reg.Leave(o2)
	assert.True(t, res.Removed)
	assert.Same(t, p, res.Orphan)
	assert.True(t, res.Emptied)
	assert.Nil(t, reg.Producer("r"))

	// Nothing is left, so the room entry is gone.
	assert.Empty(t, reg.Stats())
	assert.False(t, reg.Leave(p).Removed)
}

func TestRegistryProducerWithoutObserversStays(t *testing.T) {
	reg := NewRegistry()
	p, _ := newTestConn(RoleProducer, "r")
	peer, _ := newTestConn(RolePeer, "r")
	_, _ = reg.Join(p)
	_, _ = reg.Join(peer)

	// A peer leaving is unrelated to the observer set.
	res := reg.Leave(peer)
	assert.True(t, res.Removed)
	assert.Nil(t, res.Orphan)
	assert.Same(t, p, reg.Producer("r"))
}

func TestRegistryProducerFirstEmptiesOnLastObserver(t *testing.T) {
	reg := NewRegistry()
	o, _ := newTestConn(RoleObserver, "r")
	p, _ := newTestConn(RoleProducer, "r")
	_, _ = reg.Join(o)
	_, _ = reg.Join(p)
	assert.True(t, reg.HasProducer("r"))

	res := reg.Leave(p)
	assert.True(t, res.Removed)
	assert.False(t, res.Emptied)
	assert.False(t, reg.HasProducer("r"))

	res = reg.Leave(o)
	assert.True(t, res.Removed)
	assert.Nil(t, res.Orphan)
	assert.True(t, res.Emptied)
	assert.Empty(t, reg.Stats())

	// Leaving a room that no longer exists reports nothing.
	assert.Equal(t, LeaveResult{}, reg.Leave(o))
}

func TestRegistryStats(t *testing.T) {
	reg := NewRegistry()
	a, _ := newTestConn(RolePeer, "b-room")
	o, _ := newTestConn(RoleObserver, "a-room")
	p, _ := newTestConn(RoleProducer, "a-room")
	for _, c := range []*clientConn{a, o, p} {
		_, err := reg.Join(c)
		require.NoError(t, err)
	}

	assert.Equal(t, []RoomStats{
		{Room: "a-room", HasProducer: true, Observers: 1},
		{Room: "b-room", Peers: 1},
	}, reg.Stats())
}

func TestRegistryUnknownRole(t *testing.T) {
	reg := NewRegistry()
	c, _ := newTestConn(Role("spectator"), "r")
	_, err := reg.Join(c)
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.Empty(t, reg.Stats())
}
