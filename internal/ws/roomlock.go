package ws

import "sync"

// roomLocks hands out one mutex per room id, dropping entries nobody holds
// or waits on.
type roomLocks struct {
	mu sync.Mutex
	m  map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks { return &roomLocks{m: make(map[string]*roomLock)} }

func (l *roomLocks) lock(roomID string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.m[roomID]
	if !ok {
		e = &roomLock{}
		l.m[roomID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, roomID)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
