package meeting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type InsightDTO struct {
	Sequence        uint64          `json:"sequence"`
	RelativeSeconds float64         `json:"relative_seconds" example:"42.5"`
	CapturedAt      time.Time       `json:"captured_at"      example:"2025-07-27T16:05:05Z"`
	DominantState   string          `json:"dominant_state"   example:"confident"`
	Nudge           string          `json:"smart_nudge"`
	NudgePriority   string          `json:"smart_nudge_priority" example:"low"`
	Snapshot        json.RawMessage `json:"snapshot" swaggertype:"object"`
}

const (
	redisMeetingKeyPrefix = "mtg:"
	meetingCacheTTL       = 6 * time.Hour
	candidatePrefix       = "candidate_"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMeetingNotFound = errors.New("meeting not found")
)

type IMeetingService interface {
	// Authorize checks that the session behind token may join the meeting's
	// room as role ("peer", "producer" or "observer").
	Authorize(ctx context.Context, meetingID, token, role string) error
	// StartedAt returns when the meeting started, or the zero time if it has
	// not started yet.
	StartedAt(ctx context.Context, meetingID string) (time.Time, error)
	ListInsights(ctx context.Context, meetingID string, limit, offset int) ([]InsightDTO, error)
}

type meetingService struct {
	rdc *redis.Client
	db  *sql.DB
	now func() time.Time

	started *expirable.LRU[string, time.Time]
	sf      singleflight.Group
}

var _ IMeetingService = (*meetingService)(nil)

func NewMeetingService(rdc *redis.Client, db *sql.DB) IMeetingService {
	return &meetingService{
		rdc:     rdc,
		db:      db,
		now:     time.Now,
		started: expirable.NewLRU[string, time.Time](1024, nil, meetingCacheTTL),
	}
}

func (svc *meetingService) Authorize(ctx context.Context, meetingID, token, role string) error {
	if token == "" {
		return ErrUnauthorized
	}

	var (
		username, sessionRole string
		expiresAt             time.Time
	)
	err := svc.db.QueryRowContext(ctx,
		`SELECT username, role, expires_at FROM sessions WHERE session_id = $1`, token,
	).Scan(&username, &sessionRole, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if !expiresAt.After(svc.now()) {
		return ErrUnauthorized
	}

	var (
		creator string
		active  bool
	)
	err = svc.db.QueryRowContext(ctx,
		`SELECT creator_username, active FROM meetings WHERE id = $1`, meetingID,
	).Scan(&creator, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMeetingNotFound
	}
	if err != nil {
		return err
	}
	if !active {
		return ErrUnauthorized
	}

	isCreator := sessionRole == "interviewer" && username == creator
	isCandidate := sessionRole == "candidate" && username == candidatePrefix+meetingID

	switch role {
	case "peer":
		if isCreator || isCandidate {
			return nil
		}
	case "producer":
		if isCandidate {
			return nil
		}
	case "observer":
		if isCreator {
			return nil
		}
	}
	return ErrUnauthorized
}

// StartedAt resolves the start time from the local memo, then the Redis
// hash "mtg:<id>", then Postgres. Concurrent misses for one meeting share a
// single lookup.
func (svc *meetingService) StartedAt(ctx context.Context, meetingID string) (time.Time, error) {
	if t, ok := svc.started.Get(meetingID); ok {
		return t, nil
	}

	v, err, _ := svc.sf.Do(meetingID, func() (any, error) {
		return svc.loadStartedAt(ctx, meetingID)
	})
	if err != nil {
		return time.Time{}, err
	}
	t := v.(time.Time)
	// A meeting that has not started yet may start any moment.
	if !t.IsZero() {
		svc.started.Add(meetingID, t)
	}
	return t, nil
}

func (svc *meetingService) loadStartedAt(ctx context.Context, meetingID string) (time.Time, error) {
	key := redisMeetingKeyPrefix + meetingID

	sa, err := svc.rdc.HGet(ctx, key, "sa").Result()
	switch {
	case err == nil:
		if unix, perr := strconv.ParseInt(sa, 10, 64); perr == nil && unix > 0 {
			return time.Unix(unix, 0).UTC(), nil
		}
	case !errors.Is(err, redis.Nil):
		zap.L().Warn("meeting.cache_read", zap.String("id", meetingID), zap.Error(err))
	}

	var started sql.NullTime
	err = svc.db.QueryRowContext(ctx,
		`SELECT started_at FROM meetings WHERE id = $1`, meetingID,
	).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrMeetingNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	if !started.Valid {
		return time.Time{}, nil
	}

	t := started.Time.UTC()
	if err := svc.rdc.HSet(ctx, key, "sa", t.Unix()).Err(); err != nil {
		zap.L().Warn("meeting.cache_write", zap.String("id", meetingID), zap.Error(err))
		return t, nil
	}
	_ = svc.rdc.Expire(ctx, key, meetingCacheTTL).Err()
	return t, nil
}

// ListInsights returns the persisted timeline of a meeting ordered by its
// offset into the meeting.
func (svc *meetingService) ListInsights(ctx context.Context, meetingID string, limit, offset int) ([]InsightDTO, error) {
	const q = `
	SELECT sequence, relative_seconds, captured_at,
	       COALESCE(dominant_state, ''), COALESCE(smart_nudge, ''),
	       COALESCE(smart_nudge_priority, ''), snapshot
	  FROM insights
	 WHERE meeting_id = $1
	 ORDER BY relative_seconds, captured_at
	 LIMIT $2 OFFSET $3`

	rows, err := svc.db.QueryContext(ctx, q, meetingID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]InsightDTO, 0, limit)
	for rows.Next() {
		var (
			dto  InsightDTO
			snap []byte
		)
		if err := rows.Scan(&dto.Sequence, &dto.RelativeSeconds, &dto.CapturedAt,
			&dto.DominantState, &dto.Nudge, &dto.NudgePriority, &snap); err != nil {
			return nil, err
		}
		dto.Snapshot = json.RawMessage(snap)
		out = append(out, dto)
	}
	return out, rows.Err()
}
