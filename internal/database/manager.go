// Package database implements C2: the append-only persistence pipeline.
// Every write funnels through one dedicated writer goroutine fed by a
// buffered channel, exactly the single-writer pattern the teacher's own
// manager uses to avoid SQLite write contention; a failed write is retried
// once after a short delay before being surfaced as a final failure.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"audiencehub/internal/metricsx"
	dbconfig "audiencehub/pkg/database"
	"audiencehub/pkg/interfaces"
	"audiencehub/pkg/types"
)

const writeRetryDelay = 5 * time.Second
const writeTimeout = 30 * time.Second

type writeOperation struct {
	table     string
	operation func(*sql.DB) error
	result    chan error
}

// Manager is C2's concrete implementation, satisfying interfaces.Persistence.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	logger  zerolog.Logger
	metrics *metricsx.Registry
}

// NewManager opens the database, ensures the schema, and starts the
// single-writer goroutine.
func NewManager(cfg *dbconfig.Config, logger zerolog.Logger, metrics *metricsx.Registry) (*Manager, error) {
	db, err := dbconfig.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := dbconfig.EnsureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		logger:       logger,
		metrics:      metrics,
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			start := time.Now()
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn().Err(err).Str("table", op.table).Msg("write failed, retrying once")
				time.Sleep(writeRetryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error().Err(err).Str("table", op.table).Msg("write failed after retry")
					if m.metrics != nil {
						m.metrics.PersistenceWriteErrors.WithLabelValues(op.table).Inc()
					}
				}
			}
			if m.metrics != nil {
				m.metrics.PersistenceWriteDuration.WithLabelValues(op.table).Observe(time.Since(start).Seconds())
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(table string, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("persistence is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{table: table, operation: operation, result: result}:
		return <-result
	case <-time.After(writeTimeout):
		return fmt.Errorf("write operation timeout for table %s", table)
	case <-m.shutdown:
		return fmt.Errorf("persistence is shutting down")
	}
}

// EnsureUserRow inserts the user row on first sight. INSERT OR IGNORE makes
// repeated calls for the same id a no-op, satisfying "ensure_user called N
// times produces exactly one users row".
func (m *Manager) EnsureUserRow(ctx context.Context, userID, experimentGroup string) error {
	return m.executeWrite("users", func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (id, experiment_group, created_at) VALUES (?, ?, ?)`,
			userID, experimentGroup, time.Now().UnixMilli(),
		)
		return err
	})
}

// LogReaction appends one reactions_log row.
func (m *Manager) LogReaction(ctx context.Context, sample types.Sample) error {
	return m.executeWrite("reactions_log", func(db *sql.DB) error {
		var sessionID interface{}
		if sample.SessionID != "" {
			sessionID = sample.SessionID
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO reactions_log (
				user_id, timestamp, is_smiling, is_surprised, is_concentrating, is_hand_up,
				nod_count, sway_vertical_count, sway_horizontal_count, shake_head_count,
				cheer_count, clap_count, video_time, session_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sample.UserID, sample.ServerReceiveMS,
			sample.HasState(types.StateIsSmiling), sample.HasState(types.StateIsSurprised),
			sample.HasState(types.StateIsConcentrating), sample.HasState(types.StateIsHandUp),
			sample.EventCount(types.EventNod), sample.EventCount(types.EventSwayVertical),
			sample.EventCount(types.EventSwayHorizontal), sample.EventCount(types.EventShakeHead),
			sample.EventCount(types.EventCheer), sample.EventCount(types.EventClap),
			sample.VideoTime, sessionID,
		)
		return err
	})
}

// LogEffect appends one effects_log row.
func (m *Manager) LogEffect(ctx context.Context, effect types.Effect) error {
	return m.executeWrite("effects_log", func(db *sql.DB) error {
		var sessionID interface{}
		if effect.SessionID != "" {
			sessionID = effect.SessionID
		}
		var activeUsers interface{}
		if effect.ActiveUsers > 0 {
			activeUsers = effect.ActiveUsers
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO effects_log (timestamp, effect_type, intensity, duration_ms, session_id, video_time, active_users)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			effect.ServerSendMS, effect.EffectType, effect.Intensity, effect.DurationMS,
			sessionID, effect.VideoTime, activeUsers,
		)
		return err
	})
}

// SessionCreate appends one sessions row.
func (m *Manager) SessionCreate(ctx context.Context, session types.Session) error {
	return m.executeWrite("sessions", func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, video_id, started_at, completed_at) VALUES (?, ?, ?, ?, NULL)`,
			session.ID, session.UserID, session.VideoID, session.StartedMS,
		)
		return err
	})
}

// SessionComplete marks a session row completed at completedMS.
func (m *Manager) SessionComplete(ctx context.Context, sessionID string, completedMS int64) error {
	return m.executeWrite("sessions", func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE sessions SET completed_at = ? WHERE id = ?`,
			completedMS, sessionID,
		)
		return err
	})
}

// TableCounts returns row counts for every table, for /debug/database.
func (m *Manager) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"users", "reactions_log", "effects_log", "sessions"} {
		var count int
		if err := m.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

// RecentReactions returns the most recent reactions_log rows, newest first.
func (m *Manager) RecentReactions(ctx context.Context, limit int) ([]interfaces.ReactionRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, timestamp, is_smiling, is_surprised, is_concentrating, is_hand_up,
			nod_count, sway_vertical_count, sway_horizontal_count, shake_head_count,
			cheer_count, clap_count, video_time, session_id
		FROM reactions_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []interfaces.ReactionRow
	for rows.Next() {
		var r interfaces.ReactionRow
		var videoTime sql.NullFloat64
		var sessionID sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.Timestamp, &r.IsSmiling, &r.IsSurprised,
			&r.IsConcentrating, &r.IsHandUp, &r.NodCount, &r.SwayVerticalCount,
			&r.SwayHorizontalCount, &r.ShakeHeadCount, &r.CheerCount, &r.ClapCount,
			&videoTime, &sessionID); err != nil {
			return nil, err
		}
		if videoTime.Valid {
			r.VideoTime = &videoTime.Float64
		}
		if sessionID.Valid {
			r.SessionID = &sessionID.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentEffects returns the most recent effects_log rows, newest first.
func (m *Manager) RecentEffects(ctx context.Context, limit int) ([]interfaces.EffectRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, timestamp, effect_type, intensity, duration_ms, session_id, video_time, active_users
		FROM effects_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []interfaces.EffectRow
	for rows.Next() {
		var e interfaces.EffectRow
		var sessionID sql.NullString
		var videoTime sql.NullFloat64
		var activeUsers sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EffectType, &e.Intensity, &e.DurationMS,
			&sessionID, &videoTime, &activeUsers); err != nil {
			return nil, err
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if videoTime.Valid {
			e.VideoTime = &videoTime.Float64
		}
		if activeUsers.Valid {
			v := int(activeUsers.Int64)
			e.ActiveUsers = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HealthCheck verifies the database is reachable and responsive.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	_, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM users LIMIT 1")
	return err
}

// Close drains the writer goroutine and closes the underlying handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}

var _ interfaces.Persistence = (*Manager)(nil)
