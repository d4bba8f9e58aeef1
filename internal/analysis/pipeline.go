package analysis

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"interviewsense/internal/metrics"

	"go.uber.org/zap"
)

type Options struct {
	Analyzer  Analyzer     // nil: every sample is answered synthetically
	Clock     MeetingClock // nil: relative offsets are 0
	Publisher Publisher
	Synth     *Synthesizer
	Timeout   time.Duration
	Now       func() time.Time
	// Active reports whether a room may start a new sequence. nil: always.
	Active func(roomID string) bool
}

// Pipeline turns producer samples into sequenced snapshots and hands the
// ones that are still the freshest for their room to the Publisher.
type Pipeline struct {
	analyzer  Analyzer
	clock     MeetingClock
	publisher Publisher
	synth     *Synthesizer
	timeout   time.Duration
	now       func() time.Time
	active    func(roomID string) bool

	mu    sync.Mutex
	rooms map[string]*roomState
}

type roomState struct {
	seqMu sync.Mutex
	next  uint64

	deliverMu sync.Mutex
	delivered uint64
	forgotten bool
}

func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		analyzer:  opts.Analyzer,
		clock:     opts.Clock,
		publisher: opts.Publisher,
		synth:     opts.Synth,
		timeout:   opts.Timeout,
		now:       opts.Now,
		active:    opts.Active,
		rooms:     make(map[string]*roomState),
	}
	if p.synth == nil {
		p.synth = NewSynthesizer(0)
	}
	if p.timeout <= 0 {
		p.timeout = 20 * time.Second
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Submit analyzes one sample. It returns ErrStaleResult when a newer result
// for the room was delivered first or the room was torn down meanwhile, and
// ErrRoomInactive when the room has no state and is no longer active.
func (p *Pipeline) Submit(ctx context.Context, roomID string, s Sample) (Snapshot, error) {
	st, ok := p.state(roomID)
	if !ok {
		return Snapshot{}, ErrRoomInactive
	}

	st.seqMu.Lock()
	st.next++
	seq := st.next
	capturedAt := p.now()
	st.seqMu.Unlock()

	snap := Normalize(p.analyze(ctx, roomID, seq, s))
	snap.Sequence = seq
	snap.CapturedAt = capturedAt
	snap.RelativeSeconds = p.offset(ctx, roomID, capturedAt)

	if err := p.deliver(ctx, roomID, st, snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Forget drops the room's sequencing state. Results still in flight for the
// old state are discarded when they complete.
func (p *Pipeline) Forget(roomID string) {
	p.mu.Lock()
	st, ok := p.rooms[roomID]
	delete(p.rooms, roomID)
	p.mu.Unlock()
	if !ok {
		return
	}

	st.deliverMu.Lock()
	st.forgotten = true
	st.deliverMu.Unlock()
}

func (p *Pipeline) Configured() bool { return p.analyzer != nil }

// state returns the room's sequencing state, creating it only while the
// room is active.
func (p *Pipeline) state(roomID string) (*roomState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.rooms[roomID]; ok {
		return st, true
	}
	if p.active != nil && !p.active(roomID) {
		return nil, false
	}
	st := &roomState{}
	p.rooms[roomID] = st
	return st, true
}

func (p *Pipeline) analyze(ctx context.Context, roomID string, seq uint64, s Sample) Fields {
	if p.analyzer == nil {
		metrics.AnalyzerFallbacks.WithLabelValues("unconfigured").Inc()
		return p.synth.Fields()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	fields, err := p.analyzer.Analyze(ctx, s)
	metrics.AnalyzerLatency.Observe(time.Since(start).Seconds())

	if err == nil && len(fields) == 0 {
		err = errors.New("empty analyzer response")
	}
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.AnalyzerFallbacks.WithLabelValues(reason).Inc()
		zap.L().Warn("analysis.fallback",
			zap.String("room", roomID),
			zap.Uint64("seq", seq),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return p.synth.Fields()
	}
	return fields
}

func (p *Pipeline) offset(ctx context.Context, roomID string, capturedAt time.Time) float64 {
	if p.clock == nil {
		return 0
	}
	started, err := p.clock.StartedAt(ctx, roomID)
	if err != nil {
		zap.L().Debug("analysis.meeting_start", zap.String("room", roomID), zap.Error(err))
		return 0
	}
	if started.IsZero() {
		return 0
	}
	secs := capturedAt.Sub(started).Seconds()
	return math.Max(0, math.Round(secs*1000)/1000)
}

func (p *Pipeline) deliver(ctx context.Context, roomID string, st *roomState, snap Snapshot) error {
	st.deliverMu.Lock()
	defer st.deliverMu.Unlock()

	if st.forgotten || snap.Sequence <= st.delivered {
		metrics.StaleResultsDropped.Inc()
		zap.L().Debug("analysis.stale",
			zap.String("room", roomID),
			zap.Uint64("seq", snap.Sequence),
			zap.Uint64("delivered", st.delivered),
		)
		return ErrStaleResult
	}
	st.delivered = snap.Sequence

	if p.publisher != nil {
		p.publisher.Publish(ctx, roomID, snap)
	}
	metrics.SnapshotsPublished.Inc()
	return nil
}
