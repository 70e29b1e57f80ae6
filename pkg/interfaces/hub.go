package interfaces

// Hub is C3: the exclusive owner of the live-connection registry.
type Hub interface {
	// Register replaces any existing connection for the same user id,
	// closing the displaced one, then adds conn.
	Register(conn Connection)

	// Unregister removes conn if it is still the registered connection for
	// its user id. Idempotent; a stale unregister for an already-replaced
	// connection is a silent no-op.
	Unregister(conn Connection)

	// Broadcast enqueues msg on every registered connection's outbound
	// queue. A full queue drops that one message for that one subscriber.
	Broadcast(msg interface{})

	// BroadcastExcept is Broadcast minus the sender, used to suppress the
	// host's own echo of a transport event it originated.
	BroadcastExcept(sender Connection, msg interface{})

	// SendTo delivers msg to the single connection registered for userID,
	// if any is currently registered. Reports whether a recipient existed.
	SendTo(userID string, msg interface{}) bool

	// Host returns the currently registered host connection, if any.
	Host() (Connection, bool)

	// Count returns the number of live registered connections.
	Count() int

	// UserIDs returns the set of currently connected user ids, for the
	// /status endpoint.
	UserIDs() []string
}
