package ws

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"interviewsense/internal/analysis"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeSocket records what a clientConn writes.
type fakeSocket struct {
	mu         sync.Mutex
	frames     [][]byte
	closeCode  int
	closed     bool
	failWrites bool
}

func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites || f.closed {
		return errBrokenPipe
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.WriteMessage(websocket.TextMessage, b)
}

func (f *fakeSocket) WriteControl(mt int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mt == websocket.CloseMessage && len(data) >= 2 {
		f.closeCode = int(binary.BigEndian.Uint16(data))
	}
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeSocket) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestConn(role Role, roomID string) (*clientConn, *fakeSocket) {
	f := &fakeSocket{}
	return newClientConn(f, role, roomID), f
}

func decodeUpdates(t *testing.T, frames [][]byte) []analysis.Snapshot {
	t.Helper()
	out := make([]analysis.Snapshot, 0, len(frames))
	for _, fr := range frames {
		var u SnapshotUpdate
		require.NoError(t, json.Unmarshal(fr, &u))
		require.Equal(t, "snapshot_update", u.Type)
		out = append(out, u.Snapshot)
	}
	return out
}

func sequences(snaps []analysis.Snapshot) []uint64 {
	out := make([]uint64, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Sequence)
	}
	return out
}
