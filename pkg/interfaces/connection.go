package interfaces

// Connection is the narrow view the Hub and Aggregator need of a live
// viewer connection, independent of the transport. Implemented by
// *connection.Conn; mocked in tests.
type Connection interface {
	// WriteJSON enqueues v on the connection's outbound queue. Must never
	// block the caller on slow I/O; a full queue is a drop, not a stall.
	WriteJSON(v interface{}) error

	// Close tears the connection down. Idempotent.
	Close() error

	// UserID returns the handshake-declared viewer id.
	UserID() string

	// ExperimentGroup returns the handshake-declared (or defaulted) group.
	ExperimentGroup() string

	// IsHost reports whether this connection drives video transport.
	IsHost() bool
}
