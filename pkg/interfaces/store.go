package interfaces

import "audiencehub/pkg/types"

// Store is C1: the exclusive owner of per-user sample windows. Mutations and
// reads are serialized internally; snapshot_active must not hold its lock
// across the caller's computation.
type Store interface {
	// EnsureUser registers a first-seen user; a no-op for known users.
	EnsureUser(userID, experimentGroup string)

	// Append adds a sample to the user's window, evicting the oldest entry
	// on overflow. Idempotent with respect to window size invariants.
	Append(sample types.Sample)

	// SnapshotActive returns, for every user whose window is non-empty and
	// whose last arrival is within the activity ceiling of nowMS, a copy of
	// that user's current sample slice.
	SnapshotActive(nowMS int64) map[string][]types.Sample

	// WindowLen reports the current sample count for one user, for testing.
	WindowLen(userID string) int
}
