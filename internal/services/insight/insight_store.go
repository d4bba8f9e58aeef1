package insight

import (
	"context"
	"fmt"
	"strconv"

	"interviewsense/internal/analysis"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	Stream       = "insights_stream"
	streamMaxLen = 100_000
)

// Store appends published snapshots to the insight stream. A background
// syncer moves stream entries into Postgres.
type Store struct {
	rdc *redis.Client
}

func NewStore(rdc *redis.Client) *Store { return &Store{rdc: rdc} }

func (s *Store) Persist(ctx context.Context, meetingID string, snap analysis.Snapshot) error {
	args, err := streamArgs(meetingID, snap)
	if err != nil {
		return err
	}
	if err := s.rdc.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", Stream, err)
	}
	return nil
}

func streamArgs(meetingID string, snap analysis.Snapshot) (*redis.XAddArgs, error) {
	payload, err := sonic.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return &redis.XAddArgs{
		Stream: Stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: []string{
			"mid", meetingID,
			"seq", strconv.FormatUint(snap.Sequence, 10),
			"rel", strconv.FormatFloat(snap.RelativeSeconds, 'f', -1, 64),
			"at", strconv.FormatInt(snap.CapturedAt.UnixMilli(), 10),
			"snap", string(payload),
		},
	}, nil
}
