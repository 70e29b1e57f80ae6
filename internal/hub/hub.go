// Package hub implements C3: the registry of live viewer connections and
// the only place fan-out happens. Registration is serialized by one
// exclusive lock, held only across the map mutation itself; broadcast
// copies the subscriber list under that lock and dispatches without
// holding it, the same split the teacher's connection registry uses for
// its own read-heavy lookup maps.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"audiencehub/internal/metricsx"
	"audiencehub/pkg/interfaces"
)

// Hub is C3's concrete implementation, satisfying interfaces.Hub.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection
	hostUserID  string

	logger  zerolog.Logger
	metrics *metricsx.Registry
}

// New constructs an empty Hub.
func New(logger zerolog.Logger, metrics *metricsx.Registry) *Hub {
	return &Hub{
		connections: make(map[string]interfaces.Connection),
		logger:      logger,
		metrics:     metrics,
	}
}

// Register adds conn, replacing and closing any existing connection for
// the same user id. The displaced connection is closed off the lock to
// avoid a close() call blocking registration of its replacement.
func (h *Hub) Register(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	userID := conn.UserID()

	h.mu.Lock()
	existing, displaced := h.connections[userID]
	h.connections[userID] = conn
	if conn.IsHost() {
		h.hostUserID = userID
	} else if h.hostUserID == userID {
		h.hostUserID = ""
	}
	h.mu.Unlock()

	if displaced {
		go func() {
			if err := existing.Close(); err != nil {
				h.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to close displaced connection")
			}
		}()
	}

	if h.metrics != nil {
		h.metrics.ConnectionsActive.Set(float64(h.Count()))
	}
	h.logger.Info().Str("user_id", userID).Bool("is_host", conn.IsHost()).Msg("connection registered")
}

// Unregister removes conn if it is still the connection currently
// registered for its user id. Idempotent: unregistering a connection that
// was already displaced or removed is a no-op.
func (h *Hub) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	userID := conn.UserID()

	h.mu.Lock()
	current, ok := h.connections[userID]
	if ok && current == conn {
		delete(h.connections, userID)
		if h.hostUserID == userID {
			h.hostUserID = ""
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionsActive.Set(float64(h.Count()))
	}
	h.logger.Info().Str("user_id", userID).Msg("connection unregistered")
}

// Broadcast enqueues msg to every registered connection's outbound queue.
// A subscriber whose queue is full misses this message (it stays
// registered) and a warning is recorded; other subscribers are unaffected
// (I5).
func (h *Hub) Broadcast(msg interface{}) {
	h.broadcastTo(h.snapshot(), msg)
}

// BroadcastExcept enqueues msg to every registered connection except
// sender, used to suppress a host's own transport-event echo.
func (h *Hub) BroadcastExcept(sender interfaces.Connection, msg interface{}) {
	all := h.snapshot()
	targets := make([]interfaces.Connection, 0, len(all))
	for _, conn := range all {
		if conn == sender {
			continue
		}
		targets = append(targets, conn)
	}
	h.broadcastTo(targets, msg)
}

func (h *Hub) broadcastTo(targets []interfaces.Connection, msg interface{}) {
	for _, conn := range targets {
		if err := conn.WriteJSON(msg); err != nil {
			if h.metrics != nil {
				h.metrics.BroadcastDrops.WithLabelValues("queue_full").Inc()
			}
			h.logger.Warn().Err(err).Str("user_id", conn.UserID()).Msg("dropped broadcast to subscriber")
		}
	}
}

// SendTo enqueues msg to the named user's connection only, used for sync
// relay unicasts. Reports whether a connection for userID was found.
func (h *Hub) SendTo(userID string, msg interface{}) bool {
	h.mu.RLock()
	conn, ok := h.connections[userID]
	h.mu.RUnlock()

	if !ok {
		return false
	}

	if err := conn.WriteJSON(msg); err != nil {
		if h.metrics != nil {
			h.metrics.BroadcastDrops.WithLabelValues("queue_full").Inc()
		}
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("dropped unicast to subscriber")
		return false
	}
	return true
}

// Host returns the currently registered host connection, if any.
func (h *Hub) Host() (interfaces.Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.hostUserID == "" {
		return nil, false
	}
	conn, ok := h.connections[h.hostUserID]
	return conn, ok
}

// Count returns the number of currently registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// UserIDs returns the user ids of every currently registered connection,
// used by the /status endpoint.
func (h *Hub) UserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) snapshot() []interfaces.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]interfaces.Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		out = append(out, conn)
	}
	return out
}

var _ interfaces.Hub = (*Hub)(nil)
