package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"audiencehub/internal/metricsx"
	dbconfig "audiencehub/pkg/database"
	"audiencehub/pkg/interfaces"
	"audiencehub/pkg/types"
)

func setupTestManager(t *testing.T) (*Manager, func()) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	cfg := &dbconfig.Config{
		DatabasePath:    dbPath,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
	}

	m, err := NewManager(cfg, zerolog.Nop(), metricsx.New(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	return m, func() { _ = m.Close() }
}

func TestManager_EnsureUserRowIsIdempotent(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := m.EnsureUserRow(ctx, "u-1", types.GroupExperiment); err != nil {
			t.Fatalf("EnsureUserRow() error = %v", err)
		}
	}

	counts, err := m.TableCounts(ctx)
	if err != nil {
		t.Fatalf("TableCounts() error = %v", err)
	}
	if counts["users"] != 1 {
		t.Errorf("users count = %d, want 1 after 3 EnsureUserRow calls", counts["users"])
	}
}

func TestManager_LogReactionPersistsFields(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	ctx := context.Background()
	videoTime := 12.5
	sample := types.Sample{
		UserID:          "u-1",
		ServerReceiveMS: 1000,
		States:          map[string]bool{types.StateIsSmiling: true},
		Events:          map[string]int{types.EventNod: 2},
		VideoTime:       &videoTime,
		SessionID:       "sess-1",
	}

	if err := m.LogReaction(ctx, sample); err != nil {
		t.Fatalf("LogReaction() error = %v", err)
	}

	rows, err := m.RecentReactions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentReactions() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 reaction row, got %d", len(rows))
	}
	got := rows[0]
	if !got.IsSmiling || got.NodCount != 2 || got.SessionID == nil || *got.SessionID != "sess-1" {
		t.Errorf("reaction row did not round-trip expected fields: %+v", got)
	}
}

func TestManager_LogEffectPersistsFields(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	ctx := context.Background()
	effect := types.Effect{
		EffectType:   types.EffectSparkle,
		Intensity:    0.8,
		DurationMS:   types.DefaultEffectDurationMS,
		ServerSendMS: 2000,
		ActiveUsers:  5,
	}

	if err := m.LogEffect(ctx, effect); err != nil {
		t.Fatalf("LogEffect() error = %v", err)
	}

	rows, err := m.RecentEffects(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEffects() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 effect row, got %d", len(rows))
	}
	if rows[0].EffectType != types.EffectSparkle || rows[0].ActiveUsers == nil || *rows[0].ActiveUsers != 5 {
		t.Errorf("effect row did not round-trip expected fields: %+v", rows[0])
	}
}

func TestManager_SessionCreateAndComplete(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	ctx := context.Background()
	session := types.Session{ID: "sess-1", UserID: "u-1", VideoID: "vid-1", StartedMS: 1000}

	if err := m.SessionCreate(ctx, session); err != nil {
		t.Fatalf("SessionCreate() error = %v", err)
	}
	if err := m.SessionComplete(ctx, "sess-1", 5000); err != nil {
		t.Fatalf("SessionComplete() error = %v", err)
	}

	counts, err := m.TableCounts(ctx)
	if err != nil {
		t.Fatalf("TableCounts() error = %v", err)
	}
	if counts["sessions"] != 1 {
		t.Errorf("sessions count = %d, want 1", counts["sessions"])
	}
}

func TestManager_RecentReactionsOrderedNewestFirst(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		s := types.Sample{UserID: "u-1", ServerReceiveMS: i * 1000}
		if err := m.LogReaction(ctx, s); err != nil {
			t.Fatalf("LogReaction() error = %v", err)
		}
	}

	rows, err := m.RecentReactions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentReactions() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Timestamp != 3000 || rows[2].Timestamp != 1000 {
		t.Errorf("rows not ordered newest first: %+v", rows)
	}
}

func TestManager_HealthCheck(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestManager_CloseRejectsFurtherWrites(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer func() { _ = cleanup }()

	ctx := context.Background()
	if err := m.EnsureUserRow(ctx, "u-1", types.GroupExperiment); err != nil {
		t.Fatalf("EnsureUserRow() error = %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() should be a no-op, got %v", err)
	}

	if err := m.EnsureUserRow(ctx, "u-2", types.GroupExperiment); err == nil {
		t.Error("EnsureUserRow() after Close() should fail")
	}
}

func TestManager_ConcurrentWritesAllSucceed(t *testing.T) {
	m, cleanup := setupTestManager(t)
	defer cleanup()

	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("u-%d", i)
			if err := m.EnsureUserRow(ctx, userID, types.GroupExperiment); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent EnsureUserRow failed: %v", err)
	}

	counts, err := m.TableCounts(ctx)
	if err != nil {
		t.Fatalf("TableCounts() error = %v", err)
	}
	if counts["users"] != n {
		t.Errorf("users count = %d, want %d", counts["users"], n)
	}
}

func TestManager_NewManagerFailsOnInvalidConfig(t *testing.T) {
	cfg := &dbconfig.Config{DatabasePath: ""}
	if _, err := NewManager(cfg, zerolog.Nop(), nil); err == nil {
		t.Error("NewManager() with an invalid config should fail")
	}
}

var _ interfaces.Persistence = (*Manager)(nil)
