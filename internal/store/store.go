// Package store implements C1: the exclusive owner of per-user sample
// windows. A single exclusive lock serializes every mutation and read, the
// same strategy the teacher's connection registry uses for its own map of
// live connections — moderate fan-in (a few hundred writes/second, one
// snapshot/second) never justifies anything finer-grained.
package store

import (
	"sync"

	"github.com/rs/zerolog"

	"audiencehub/pkg/types"
)

type window struct {
	samples       []types.Sample
	lastArrivalMS int64
}

// Store is C1's concrete implementation, satisfying interfaces.Store.
type Store struct {
	mu      sync.Mutex
	windows map[string]*window
	logger  zerolog.Logger
}

// New constructs an empty Store.
func New(logger zerolog.Logger) *Store {
	return &Store{
		windows: make(map[string]*window),
		logger:  logger,
	}
}

// EnsureUser registers a first-seen user's window if one does not already
// exist. A no-op for known users — the experiment group itself is recorded
// by Persistence, not here; the Store only needs a window to exist.
func (s *Store) EnsureUser(userID, experimentGroup string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.windows[userID]; !ok {
		s.windows[userID] = &window{}
	}
}

// Append adds sample to its user's window, evicting the oldest entry once
// the window exceeds types.WindowSize (I1). Appends out of order relative
// to ServerReceiveMS never occur because C4 stamps samples with the server
// clock at ingress, in arrival order (O1/O4).
func (s *Store) Append(sample types.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[sample.UserID]
	if !ok {
		w = &window{}
		s.windows[sample.UserID] = w
	}

	w.samples = append(w.samples, sample)
	if len(w.samples) > types.WindowSize {
		w.samples = w.samples[len(w.samples)-types.WindowSize:]
	}
	if sample.ServerReceiveMS > w.lastArrivalMS {
		w.lastArrivalMS = sample.ServerReceiveMS
	}
}

// SnapshotActive returns a copy of every active user's current sample
// slice: non-empty window, last arrival within types.ActiveWindowMS of
// nowMS. The lock is held only long enough to copy each window's samples,
// not across the caller's subsequent computation.
func (s *Store) SnapshotActive(nowMS int64) map[string][]types.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]types.Sample, len(s.windows))
	for userID, w := range s.windows {
		if len(w.samples) == 0 {
			continue
		}
		if nowMS-w.lastArrivalMS > types.ActiveWindowMS {
			continue
		}
		samples := make([]types.Sample, len(w.samples))
		copy(samples, w.samples)
		out[userID] = samples
	}
	return out
}

// WindowLen reports the current sample count for one user, used by tests.
func (s *Store) WindowLen(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[userID]
	if !ok {
		return 0
	}
	return len(w.samples)
}
