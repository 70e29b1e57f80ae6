package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"audiencehub/internal/metricsx"
	"audiencehub/internal/ratelimit"
	"audiencehub/pkg/interfaces"
	"audiencehub/pkg/types"
)

const (
	maxFrameBytes    = 8 * 1024
	handshakeTimeout = 10 * time.Second
	idleTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
)

// inboundFrame is a flattened superset of every tag in §4.4's table,
// decoded once per frame so the dispatcher can read whichever fields the
// tag in question defines without a second unmarshal.
type inboundFrame struct {
	Type        string          `json:"type,omitempty"`
	States      map[string]bool `json:"states,omitempty"`
	Events      map[string]int  `json:"events,omitempty"`
	VideoTime   *float64        `json:"videoTime,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	CurrentTime float64         `json:"currentTime,omitempty"`
	RequesterID string          `json:"requesterId,omitempty"`
	VideoID     string          `json:"videoId,omitempty"`
	EffectType  string          `json:"effectType,omitempty"`
	Intensity   float64         `json:"intensity,omitempty"`
	DurationMS  int64           `json:"durationMs,omitempty"`
}

// Handler upgrades incoming HTTP requests to WebSocket connections and runs
// the inbound demultiplexer for each one. Grounded on the teacher's
// internal/websocket.Handler, replacing classroom session/role validation
// with the handshake-only flow §4.4 specifies.
type Handler struct {
	hub         interfaces.Hub
	store       interfaces.Store
	persistence interfaces.Persistence
	limiter     *ratelimit.Limiter

	upgrader websocket.Upgrader

	logger  zerolog.Logger
	metrics *metricsx.Registry
}

// NewHandler constructs a Handler. allowedOrigin is matched against the
// Origin header during upgrade; an empty string allows every origin (local
// dev).
func NewHandler(hub interfaces.Hub, store interfaces.Store, persistence interfaces.Persistence, limiter *ratelimit.Limiter, allowedOrigin string, logger zerolog.Logger, metrics *metricsx.Registry) *Handler {
	return &Handler{
		hub:         hub,
		store:       store,
		persistence: persistence,
		limiter:     limiter,
		logger:      logger,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// ServeHTTP upgrades the request and runs the connection's lifetime to
// completion; it returns only once the peer has disconnected.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ws.SetReadLimit(maxFrameBytes)
	if err := ws.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		_ = ws.Close()
		return
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		h.logger.Warn().Err(err).Msg("handshake read failed")
		_ = ws.Close()
		return
	}

	var handshake types.HandshakeFrame
	if err := json.Unmarshal(data, &handshake); err != nil || !types.IsValidUserID(handshake.UserID) {
		if err == nil {
			err = types.ErrMissingHandshake
		}
		h.logger.Warn().Err(err).Msg("malformed or missing handshake")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "invalid handshake"), time.Now().Add(writeTimeout))
		_ = ws.Close()
		return
	}

	group, err := types.NormalizeExperimentGroup(handshake.ExperimentGroup)
	if err != nil {
		h.logger.Warn().Str("user_id", handshake.UserID).Err(err).Msg("invalid experiment group")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "invalid experiment group"), time.Now().Add(writeTimeout))
		_ = ws.Close()
		return
	}

	conn := New(ws, handshake.UserID, group, handshake.IsHost, h.logger)

	ctx := context.Background()
	h.store.EnsureUser(conn.UserID(), conn.ExperimentGroup())
	if err := h.persistence.EnsureUserRow(ctx, conn.UserID(), conn.ExperimentGroup()); err != nil {
		h.logger.Error().Err(err).Str("user_id", conn.UserID()).Msg("ensure_user_row failed")
	}

	h.hub.Register(conn)

	established := types.ConnectionEstablishedFrame{
		Type:            types.TagConnectionEstablished,
		UserID:          conn.UserID(),
		ExperimentGroup: conn.ExperimentGroup(),
		IsHost:          conn.IsHost(),
		Message:         "welcome aboard",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if err := conn.WriteJSON(established); err != nil {
		h.logger.Warn().Err(err).Str("user_id", conn.UserID()).Msg("failed to send connection_established")
	}

	h.runConnection(ctx, conn)
}

// runConnection drives the reader loop and a ping ticker for one
// connection's lifetime, cleaning up the Hub registration on exit. The
// UserWindow in Store is deliberately left untouched (§4.4's contract).
func (h *Handler) runConnection(ctx context.Context, conn *Conn) {
	defer func() {
		h.hub.Unregister(conn)
		h.limiter.Forget(conn.UserID())
		_ = conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
		return
	}

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("user_id", conn.UserID()).Msg("connection read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !h.limiter.Allow(conn.UserID()) {
			h.logger.Warn().Str("user_id", conn.UserID()).Msg("inbound rate limit exceeded, closing connection")
			_ = conn.CloseWithReason(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		h.dispatch(ctx, conn, data)
	}
}

func (h *Handler) pingLoop(conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// dispatch decodes one frame and routes it per §4.4's tag table. Unknown
// tags are ignored with a warning; the `type` field wins over the
// presence-of-states/events heuristic, which only applies when type is
// absent entirely.
func (h *Handler) dispatch(ctx context.Context, conn *Conn, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.logger.Warn().Err(err).Str("user_id", conn.UserID()).Msg("malformed inbound frame")
		return
	}

	tag := frame.Type
	if tag == "" && (frame.States != nil || frame.Events != nil) {
		tag = types.TagReaction
	}

	if h.metrics != nil {
		label := tag
		if label == "" {
			label = "unknown"
		}
		h.metrics.InboundMessages.WithLabelValues(label).Inc()
	}

	switch tag {
	case types.TagReaction:
		h.handleReaction(ctx, conn, frame)
	case types.TagVideoPlay, types.TagVideoPause, types.TagVideoSeek:
		h.handleVideoTransport(conn, tag, frame)
	case types.TagTimeSyncRequest:
		h.handleTimeSyncRequest(conn)
	case types.TagTimeSyncResponse:
		h.handleTimeSyncResponse(conn, frame)
	case types.TagVideoURLSelected:
		h.handleVideoURLSelected(conn, frame)
	case types.TagSessionCreate:
		h.handleSessionCreate(ctx, conn, frame)
	case types.TagSessionCompleted:
		h.handleSessionCompleted(ctx, frame)
	case types.TagManualEffect:
		h.handleManualEffect(ctx, conn, frame)
	default:
		h.logger.Warn().Err(types.ErrUnknownMessageTag).Str("tag", tag).Str("user_id", conn.UserID()).Msg("unknown message tag")
	}
}

func (h *Handler) handleReaction(ctx context.Context, conn *Conn, frame inboundFrame) {
	sample := types.Sample{
		UserID:          conn.UserID(),
		ServerReceiveMS: time.Now().UnixMilli(),
		States:          frame.States,
		Events:          frame.Events,
		VideoTime:       frame.VideoTime,
		SessionID:       frame.SessionID,
	}

	h.store.Append(sample)
	if err := h.persistence.LogReaction(ctx, sample); err != nil {
		h.logger.Error().Err(err).Str("user_id", conn.UserID()).Msg("log_reaction failed")
	}
}

func (h *Handler) handleVideoTransport(conn *Conn, tag string, frame inboundFrame) {
	if !conn.IsHost() {
		return
	}

	out := types.VideoTransportFrame{
		Type:        tag,
		CurrentTime: frame.CurrentTime,
		Timestamp:   time.Now().UnixMilli(),
	}
	h.hub.BroadcastExcept(conn, out)
}

func (h *Handler) handleTimeSyncRequest(conn *Conn) {
	if conn.IsHost() {
		return
	}

	host, ok := h.hub.Host()
	if !ok {
		return
	}

	req := types.TimeSyncRequestFrame{
		Type:        types.TagTimeSyncRequest,
		RequesterID: conn.UserID(),
	}
	h.hub.SendTo(host.UserID(), req)
}

func (h *Handler) handleTimeSyncResponse(conn *Conn, frame inboundFrame) {
	if !conn.IsHost() || frame.RequesterID == "" {
		return
	}

	resp := types.TimeSyncResponseFrame{
		Type:        types.TagTimeSyncResponse,
		CurrentTime: frame.CurrentTime,
	}
	h.hub.SendTo(frame.RequesterID, resp)
}

func (h *Handler) handleVideoURLSelected(conn *Conn, frame inboundFrame) {
	if !conn.IsHost() {
		return
	}

	h.hub.Broadcast(types.VideoURLSelectedFrame{
		Type:    types.TagVideoURLSelected,
		VideoID: frame.VideoID,
	})
}

func (h *Handler) handleSessionCreate(ctx context.Context, conn *Conn, frame inboundFrame) {
	session := types.Session{
		ID:        frame.SessionID,
		UserID:    conn.UserID(),
		VideoID:   frame.VideoID,
		StartedMS: time.Now().UnixMilli(),
	}
	if err := h.persistence.SessionCreate(ctx, session); err != nil {
		h.logger.Error().Err(err).Str("session_id", frame.SessionID).Msg("session_create failed")
	}
}

func (h *Handler) handleSessionCompleted(ctx context.Context, frame inboundFrame) {
	if err := h.persistence.SessionComplete(ctx, frame.SessionID, time.Now().UnixMilli()); err != nil {
		h.logger.Error().Err(err).Str("session_id", frame.SessionID).Msg("session_complete failed")
	}
}

func (h *Handler) handleManualEffect(ctx context.Context, conn *Conn, frame inboundFrame) {
	if conn.ExperimentGroup() != types.GroupDebug {
		h.logger.Warn().Err(types.ErrNotDebugGroup).Str("user_id", conn.UserID()).Msg("manual_effect rejected")
		return
	}
	if !types.IsValidEffectType(frame.EffectType) {
		h.logger.Warn().Err(types.ErrInvalidEffectType).Str("effect_type", frame.EffectType).Msg("manual_effect rejected")
		return
	}

	effect := types.Effect{
		EffectType:   frame.EffectType,
		Intensity:    types.ClampIntensity(frame.Intensity),
		DurationMS:   frame.DurationMS,
		ServerSendMS: time.Now().UnixMilli(),
		SessionID:    frame.SessionID,
		VideoTime:    frame.VideoTime,
	}
	if effect.DurationMS <= 0 {
		effect.DurationMS = types.DefaultEffectDurationMS
	}

	if err := h.persistence.LogEffect(ctx, effect); err != nil {
		h.logger.Error().Err(err).Msg("log_effect failed for manual effect")
	}
	h.hub.Broadcast(types.NewEffectFrame(effect))
}
