package interfaces

import (
	"context"
	"testing"

	"audiencehub/pkg/types"
)

// mockConnection is a minimal stand-in used only to prove Connection's
// method set is implementable without pulling in the connection package.
type mockConnection struct {
	userID string
	group  string
	host   bool
	sent   []interface{}
	closed bool
}

func (m *mockConnection) WriteJSON(v interface{}) error { m.sent = append(m.sent, v); return nil }
func (m *mockConnection) Close() error                  { m.closed = true; return nil }
func (m *mockConnection) UserID() string                { return m.userID }
func (m *mockConnection) ExperimentGroup() string       { return m.group }
func (m *mockConnection) IsHost() bool                  { return m.host }

type mockStore struct {
	windows map[string][]types.Sample
}

func (m *mockStore) EnsureUser(userID, group string) {}
func (m *mockStore) Append(sample types.Sample) {
	if m.windows == nil {
		m.windows = make(map[string][]types.Sample)
	}
	m.windows[sample.UserID] = append(m.windows[sample.UserID], sample)
}
func (m *mockStore) SnapshotActive(nowMS int64) map[string][]types.Sample { return m.windows }
func (m *mockStore) WindowLen(userID string) int                         { return len(m.windows[userID]) }

type mockHub struct{ registered []Connection }

func (m *mockHub) Register(conn Connection)                          { m.registered = append(m.registered, conn) }
func (m *mockHub) Unregister(conn Connection)                        {}
func (m *mockHub) Broadcast(msg interface{})                         {}
func (m *mockHub) BroadcastExcept(sender Connection, msg interface{}) {}
func (m *mockHub) SendTo(userID string, msg interface{}) bool        { return false }
func (m *mockHub) Host() (Connection, bool)                          { return nil, false }
func (m *mockHub) Count() int                                        { return len(m.registered) }
func (m *mockHub) UserIDs() []string                                 { return nil }

type mockPersistence struct{}

func (m *mockPersistence) EnsureUserRow(ctx context.Context, userID, group string) error { return nil }
func (m *mockPersistence) LogReaction(ctx context.Context, sample types.Sample) error    { return nil }
func (m *mockPersistence) LogEffect(ctx context.Context, effect types.Effect) error      { return nil }
func (m *mockPersistence) SessionCreate(ctx context.Context, session types.Session) error {
	return nil
}
func (m *mockPersistence) SessionComplete(ctx context.Context, sessionID string, completedMS int64) error {
	return nil
}
func (m *mockPersistence) TableCounts(ctx context.Context) (map[string]int, error) { return nil, nil }
func (m *mockPersistence) RecentReactions(ctx context.Context, limit int) ([]ReactionRow, error) {
	return nil, nil
}
func (m *mockPersistence) RecentEffects(ctx context.Context, limit int) ([]EffectRow, error) {
	return nil, nil
}
func (m *mockPersistence) HealthCheck(ctx context.Context) error { return nil }
func (m *mockPersistence) Close() error                          { return nil }

// TestInterfaces_Implementable proves every interface in this package has
// at least one satisfying type, catching accidental method-set drift.
func TestInterfaces_Implementable(t *testing.T) {
	var _ Connection = &mockConnection{}
	var _ Store = &mockStore{}
	var _ Hub = &mockHub{}
	var _ Persistence = &mockPersistence{}
}

func TestMockHub_RegisterTracksConnections(t *testing.T) {
	hub := &mockHub{}
	conn := &mockConnection{userID: "u-1"}
	hub.Register(conn)

	if hub.Count() != 1 {
		t.Errorf("Count() = %d, want 1", hub.Count())
	}
}

func TestMockStore_AppendAndSnapshot(t *testing.T) {
	store := &mockStore{}
	store.Append(types.Sample{UserID: "u-1", ServerReceiveMS: 1000})

	snap := store.SnapshotActive(1000)
	if len(snap["u-1"]) != 1 {
		t.Errorf("expected one sample for u-1, got %d", len(snap["u-1"]))
	}
}
