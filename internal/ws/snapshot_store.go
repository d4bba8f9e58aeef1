package ws

import (
	"time"

	"interviewsense/internal/analysis"

	"github.com/patrickmn/go-cache"
)

// SnapshotStore keeps the latest snapshot per room so late observers are
// fast-forwarded. Entries idle longer than ttl are evicted.
type SnapshotStore struct {
	c *cache.Cache
}

func NewSnapshotStore(ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SnapshotStore{c: cache.New(ttl, ttl/2)}
}

func (s *SnapshotStore) Get(roomID string) (analysis.Snapshot, bool) {
	v, ok := s.c.Get(roomID)
	if !ok {
		return analysis.Snapshot{}, false
	}
	return v.(analysis.Snapshot), true
}

func (s *SnapshotStore) Put(roomID string, snap analysis.Snapshot) {
	s.c.SetDefault(roomID, snap)
}

func (s *SnapshotStore) Delete(roomID string) {
	s.c.Delete(roomID)
}
