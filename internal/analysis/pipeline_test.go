package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []Snapshot
	rooms []string
}

func (r *recordingPublisher) Publish(_ context.Context, roomID string, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, roomID)
	r.snaps = append(r.snaps, snap)
}

func (r *recordingPublisher) sequences() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Sequence)
	}
	return out
}

// gatedAnalyzer blocks samples whose video appears in gates until the gate
// channel is closed, then answers with err (if set) or fields.
type gatedAnalyzer struct {
	mu     sync.Mutex
	gates  map[string]chan struct{}
	errs   map[string]error
	fields Fields
}

func newGatedAnalyzer() *gatedAnalyzer {
	return &gatedAnalyzer{
		gates:  map[string]chan struct{}{},
		errs:   map[string]error{},
		fields: Fields{"dominant_state": "confident", "engagement_score": 9},
	}
}

func (g *gatedAnalyzer) hold(video string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[video] = ch
	return ch
}

func (g *gatedAnalyzer) fail(video string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[video] = err
}

func (g *gatedAnalyzer) Analyze(ctx context.Context, s Sample) (Fields, error) {
	g.mu.Lock()
	gate := g.gates[s.Video]
	err := g.errs[s.Video]
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return g.fields, nil
}

type fixedClock struct {
	start time.Time
	err   error
}

func (c fixedClock) StartedAt(context.Context, string) (time.Time, error) { return c.start, c.err }

func TestPipeline_FallbackWhenUnconfigured(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewPipeline(Options{Publisher: pub, Synth: NewSynthesizer(1)})

	snap, err := p.Submit(context.Background(), "abc123", Sample{Video: "x"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Contains(t, synthStates, snap.DominantState)
	assert.False(t, p.Configured())
	assert.Equal(t, []uint64{1}, pub.sequences())
	assert.Equal(t, "abc123", pub.rooms[0])
}

func TestPipeline_FallbackOnAnalyzerError(t *testing.T) {
	an := newGatedAnalyzer()
	an.fail("bad", errors.New("upstream 503"))
	pub := &recordingPublisher{}
	p := NewPipeline(Options{Analyzer: an, Publisher: pub})

	snap, err := p.Submit(context.Background(), "r", Sample{Video: "bad"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Contains(t, synthStates, snap.DominantState)

	snap, err = p.Submit(context.Background(), "r", Sample{Video: "good"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Sequence)
	assert.Equal(t, "confident", snap.DominantState)
}

func TestPipeline_FallbackOnTimeout(t *testing.T) {
	an := newGatedAnalyzer()
	an.hold("slow") // never released
	pub := &recordingPublisher{}
	p := NewPipeline(Options{Analyzer: an, Publisher: pub, Timeout: 20 * time.Millisecond})

	snap, err := p.Submit(context.Background(), "r", Sample{Video: "slow"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Len(t, pub.sequences(), 1)
}

func TestPipeline_LateCompletionIsDiscarded(t *testing.T) {
	an := newGatedAnalyzer()
	gate := an.hold("first")
	an.fail("first", errors.New("analyzer unavailable"))
	pub := &recordingPublisher{}
	p := NewPipeline(Options{Analyzer: an, Publisher: pub})

	firstDone := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "abc123", Sample{Video: "first"})
		firstDone <- err
	}()

	// Wait for sample #1 to take its sequence number.
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		st := p.rooms["abc123"]
		if st == nil {
			return false
		}
		st.seqMu.Lock()
		defer st.seqMu.Unlock()
		return st.next == 1
	}, time.Second, time.Millisecond)

	second, err := p.Submit(context.Background(), "abc123", Sample{Video: "second"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Sequence)

	close(gate)
	assert.ErrorIs(t, <-firstDone, ErrStaleResult)
	assert.Equal(t, []uint64{2}, pub.sequences())
}

func TestPipeline_ForgetDiscardsInflight(t *testing.T) {
	an := newGatedAnalyzer()
	gate := an.hold("v")
	pub := &recordingPublisher{}
	p := NewPipeline(Options{Analyzer: an, Publisher: pub})

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "r", Sample{Video: "v"})
		done <- err
	}()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.rooms["r"] != nil
	}, time.Second, time.Millisecond)

	p.Forget("r")
	close(gate)

	assert.ErrorIs(t, <-done, ErrStaleResult)
	assert.Empty(t, pub.sequences())

	// A fresh room lifetime starts numbering again.
	snap, err := p.Submit(context.Background(), "r", Sample{Video: "w"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Sequence)
}

func TestPipeline_InactiveRoomIsNotRecreated(t *testing.T) {
	var live sync.Map
	live.Store("r", true)
	pub := &recordingPublisher{}
	p := NewPipeline(Options{
		Publisher: pub,
		Active: func(roomID string) bool {
			_, ok := live.Load(roomID)
			return ok
		},
	})

	_, err := p.Submit(context.Background(), "r", Sample{Video: "v"})
	require.NoError(t, err)

	// Room torn down, then a late sample for it arrives.
	live.Delete("r")
	p.Forget("r")
	_, err = p.Submit(context.Background(), "r", Sample{Video: "late"})
	assert.ErrorIs(t, err, ErrRoomInactive)

	p.mu.Lock()
	assert.Empty(t, p.rooms)
	p.mu.Unlock()
	assert.Equal(t, []uint64{1}, pub.sequences())

	// Existing state keeps sequencing even if the gate flips mid-session.
	live.Store("r", true)
	_, err = p.Submit(context.Background(), "r", Sample{Video: "v"})
	require.NoError(t, err)
	live.Delete("r")
	snap, err := p.Submit(context.Background(), "r", Sample{Video: "v"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Sequence)
}

func TestPipeline_ConcurrentSubmissionsAreMonotonic(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewPipeline(Options{Analyzer: newGatedAnalyzer(), Publisher: pub})

	const n = 64
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stale int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Submit(context.Background(), "room", Sample{Video: "v"})
			if errors.Is(err, ErrStaleResult) {
				mu.Lock()
				stale++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	seqs := pub.sequences()
	assert.Equal(t, n, len(seqs)+stale)
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}

	p.mu.Lock()
	assert.Equal(t, uint64(n), p.rooms["room"].next)
	p.mu.Unlock()
}

func TestPipeline_RoomsAreIndependent(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewPipeline(Options{Publisher: pub})

	a, err := p.Submit(context.Background(), "a", Sample{Video: "v"})
	require.NoError(t, err)
	b, err := p.Submit(context.Background(), "b", Sample{Video: "v"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a.Sequence)
	assert.Equal(t, uint64(1), b.Sequence)
}

func TestPipeline_RelativeOffset(t *testing.T) {
	captured := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	now := func() time.Time { return captured }

	tests := []struct {
		name  string
		clock MeetingClock
		want  float64
	}{
		{name: "started before capture", clock: fixedClock{start: captured.Add(-90 * time.Second)}, want: 90},
		{name: "start in the future is clamped", clock: fixedClock{start: captured.Add(time.Minute)}, want: 0},
		{name: "unknown start", clock: fixedClock{}, want: 0},
		{name: "lookup failure", clock: fixedClock{err: errors.New("db down")}, want: 0},
		{name: "no clock", clock: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(Options{Clock: tt.clock, Now: now, Publisher: &recordingPublisher{}})
			snap, err := p.Submit(context.Background(), "r", Sample{Video: "v"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.RelativeSeconds)
			assert.Equal(t, captured, snap.CapturedAt)
		})
	}
}
