package interfaces

import (
	"context"

	"audiencehub/pkg/types"
)

// Persistence is C2: the append-only log of users, reactions, effects, and
// sessions. Every append is best-effort — a failure is logged by the
// caller, never propagated to abort a Connection or halt the Aggregator.
type Persistence interface {
	// EnsureUserRow inserts the user row on first sight; a no-op if the
	// row already exists (ensure_user_row is called N times, one row).
	EnsureUserRow(ctx context.Context, userID, experimentGroup string) error

	// LogReaction appends one reactions_log row.
	LogReaction(ctx context.Context, sample types.Sample) error

	// LogEffect appends one effects_log row.
	LogEffect(ctx context.Context, effect types.Effect) error

	// SessionCreate appends one sessions row.
	SessionCreate(ctx context.Context, session types.Session) error

	// SessionComplete marks a session row completed at completedMS.
	SessionComplete(ctx context.Context, sessionID string, completedMS int64) error

	// TableCounts returns row counts for users, reactions_log, effects_log,
	// and sessions, for the /debug/database endpoint.
	TableCounts(ctx context.Context) (map[string]int, error)

	// RecentReactions returns the most recent reactions_log rows, newest
	// first, bounded to limit.
	RecentReactions(ctx context.Context, limit int) ([]ReactionRow, error)

	// RecentEffects returns the most recent effects_log rows, newest
	// first, bounded to limit.
	RecentEffects(ctx context.Context, limit int) ([]EffectRow, error)

	// HealthCheck verifies the persistence handle is usable.
	HealthCheck(ctx context.Context) error

	// Close drains the writer goroutine and closes the underlying handle.
	Close() error
}

// ReactionRow is a read-shape projection of one reactions_log row, used by
// the debug endpoint and by tests asserting persisted content.
type ReactionRow struct {
	ID              int64
	UserID          string
	Timestamp       int64
	IsSmiling       bool
	IsSurprised     bool
	IsConcentrating bool
	IsHandUp        bool
	NodCount        int
	SwayVerticalCount   int
	SwayHorizontalCount int
	ShakeHeadCount      int
	CheerCount          int
	ClapCount           int
	VideoTime       *float64
	SessionID       *string
}

// EffectRow is a read-shape projection of one effects_log row.
type EffectRow struct {
	ID          int64
	Timestamp   int64
	EffectType  string
	Intensity   float64
	DurationMS  int64
	SessionID   *string
	VideoTime   *float64
	ActiveUsers *int
}
