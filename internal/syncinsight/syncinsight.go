package syncinsight

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"interviewsense/internal/analysis"
	"interviewsense/internal/services/insight"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Run tails the insight stream and persists every snapshot. Entries are
// keyed by stream id, so replaying the stream from the start is harmless.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{insight.Stream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("syncinsight.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persist(ctx, db, entries); err != nil {
				zap.L().Error("syncinsight.persist", zap.Int("entries", len(entries)), zap.Error(err))
				time.Sleep(time.Second)
				continue // retry the same batch
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

type row struct {
	meetingID  string
	seq        uint64
	rel        float64
	capturedAt time.Time
	snap       analysis.Snapshot
	raw        string
}

func decode(m redis.XMessage) (row, error) {
	r := row{
		meetingID: cast.ToString(m.Values["mid"]),
		raw:       cast.ToString(m.Values["snap"]),
	}
	if r.meetingID == "" || r.raw == "" {
		return r, errors.New("missing meeting id or payload")
	}
	var err error
	if r.seq, err = cast.ToUint64E(m.Values["seq"]); err != nil {
		return r, err
	}
	if r.rel, err = cast.ToFloat64E(m.Values["rel"]); err != nil {
		return r, err
	}
	at, err := cast.ToInt64E(m.Values["at"])
	if err != nil {
		return r, err
	}
	r.capturedAt = time.UnixMilli(at).UTC()
	if err := sonic.UnmarshalString(r.raw, &r.snap); err != nil {
		return r, err
	}
	return r, nil
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO insights (stream_id, meeting_id, sequence, relative_seconds,
	                                   captured_at, dominant_state, smart_nudge,
	                                   smart_nudge_priority, snapshot)
	             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	             ON CONFLICT (stream_id) DO NOTHING`
	for _, m := range msgs {
		r, err := decode(m)
		if err != nil {
			// A malformed entry would otherwise block the stream forever.
			zap.L().Warn("syncinsight.skip", zap.String("id", m.ID), zap.Error(err))
			continue
		}
		if _, err := tx.ExecContext(ctx, ins,
			m.ID, r.meetingID, int64(r.seq), r.rel, r.capturedAt,
			r.snap.DominantState, r.snap.Nudge, r.snap.NudgePriority, r.raw,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
