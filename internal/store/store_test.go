package store

import (
	"testing"

	"github.com/rs/zerolog"

	"audiencehub/pkg/types"
)

func newTestStore() *Store {
	return New(zerolog.Nop())
}

func TestStore_AppendBoundsWindowToW(t *testing.T) {
	s := newTestStore()
	for i := int64(1); i <= 5; i++ {
		s.Append(types.Sample{UserID: "u-1", ServerReceiveMS: i * 1000})
	}

	if got := s.WindowLen("u-1"); got != types.WindowSize {
		t.Errorf("WindowLen() = %d, want %d", got, types.WindowSize)
	}
}

func TestStore_AppendEvictsOldestFirst(t *testing.T) {
	s := newTestStore()
	s.Append(types.Sample{UserID: "u-1", ServerReceiveMS: 1000})
	s.Append(types.Sample{UserID: "u-1", ServerReceiveMS: 2000})
	s.Append(types.Sample{UserID: "u-1", ServerReceiveMS: 3000})
	s.Append(types.Sample{UserID: "u-1", ServerReceiveMS: 4000})

	snap := s.SnapshotActive(4000)
	samples := snap["u-1"]
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0].ServerReceiveMS != 2000 {
		t.Errorf("oldest retained sample = %d, want 2000 (1000 evicted)", samples[0].ServerReceiveMS)
	}
}

func TestStore_SnapshotActive_ExcludesEmptyAndExpired(t *testing.T) {
	s := newTestStore()
	s.EnsureUser("u-empty", types.GroupControl2)
	s.Append(types.Sample{UserID: "u-stale", ServerReceiveMS: 1000})
	s.Append(types.Sample{UserID: "u-fresh", ServerReceiveMS: 5000})

	snap := s.SnapshotActive(5000)

	if _, ok := snap["u-empty"]; ok {
		t.Error("a user with an empty window must not appear in the active snapshot")
	}
	if _, ok := snap["u-stale"]; ok {
		t.Error("a user whose last arrival is more than 3000ms old must not appear active")
	}
	if _, ok := snap["u-fresh"]; !ok {
		t.Error("a user with a recent arrival must appear active")
	}
}

func TestStore_SnapshotActive_BoundaryIsInclusive(t *testing.T) {
	s := newTestStore()
	s.Append(types.Sample{UserID: "u-1", ServerReceiveMS: 1000})

	if _, ok := s.SnapshotActive(1000 + types.ActiveWindowMS)["u-1"]; !ok {
		t.Error("exactly at the 3000ms boundary the user must still be active")
	}
	if _, ok := s.SnapshotActive(1000 + types.ActiveWindowMS + 1)["u-1"]; ok {
		t.Error("one millisecond past the boundary the user must not be active")
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := newTestStore()
	s.Append(types.Sample{UserID: "u-1", ServerReceiveMS: 1000})

	snap := s.SnapshotActive(1000)
	snap["u-1"][0].ServerReceiveMS = 9999

	snapAgain := s.SnapshotActive(1000)
	if snapAgain["u-1"][0].ServerReceiveMS != 1000 {
		t.Error("mutating a snapshot must not affect the store's internal state")
	}
}
