package types

// Fixed state names carried on every reaction sample. Unknown names on the
// wire are ignored; missing names default to false.
const (
	StateIsSmiling       = "isSmiling"
	StateIsSurprised     = "isSurprised"
	StateIsConcentrating = "isConcentrating"
	StateIsHandUp        = "isHandUp"
)

// StateNames enumerates the fixed state set; the aggregator iterates it in
// this order when building debug ratios.
var StateNames = []string{StateIsSmiling, StateIsSurprised, StateIsConcentrating, StateIsHandUp}

// Fixed event names carried on every reaction sample. Unknown names on the
// wire are ignored; missing names default to zero.
const (
	EventNod             = "nod"
	EventShakeHead       = "shakeHead"
	EventSwayVertical    = "swayVertical"
	EventSwayHorizontal  = "swayHorizontal"
	EventCheer           = "cheer"
	EventClap            = "clap"
)

// EventNames enumerates the fixed event set; the aggregator iterates it in
// this order when building debug densities.
var EventNames = []string{EventNod, EventShakeHead, EventSwayVertical, EventSwayHorizontal, EventCheer, EventClap}

// EffectType is one of the finite visual effects the aggregator may emit.
const (
	EffectSparkle        = "sparkle"
	EffectWave           = "wave"
	EffectExcitement     = "excitement"
	EffectBounce         = "bounce"
	EffectCheer          = "cheer"
	EffectShimmer        = "shimmer"
	EffectFocus          = "focus"
	EffectGroove         = "groove"
	EffectClappingIcons  = "clapping_icons"
)

// ExperimentGroup is whatever the client declared at handshake.
const (
	GroupExperiment = "experiment"
	GroupControl1   = "control1"
	GroupControl2   = "control2"
	GroupDebug      = "debug"

	DefaultExperimentGroup = GroupControl2
)

// Wire-level message tags recognized by the connection demultiplexer.
const (
	TagReaction            = "reaction"
	TagVideoPlay           = "video_play"
	TagVideoPause          = "video_pause"
	TagVideoSeek           = "video_seek"
	TagTimeSyncRequest     = "time_sync_request"
	TagTimeSyncResponse    = "time_sync_response"
	TagVideoURLSelected    = "video_url_selected"
	TagSessionCreate       = "session_create"
	TagSessionCompleted    = "session_completed"
	TagManualEffect        = "manual_effect"
	TagConnectionEstablished = "connection_established"
	TagEffect              = "effect"
)

// WindowSize is W in the spec: the bounded length of a per-user sample
// window and the implicit smoothing period (one sample/second).
const WindowSize = 3

// ActiveWindowMS is the inactivity ceiling: a user with no sample newer than
// this many milliseconds ago drops out of the active set.
const ActiveWindowMS = int64(WindowSize * 1000)

// DefaultEffectDurationMS is the fixed broadcast duration for every
// ladder-selected effect.
const DefaultEffectDurationMS = int64(2000)

// Sample is one client-second summary of reaction states and events.
// Immutable once constructed; the aggregator and store only ever read it.
type Sample struct {
	UserID          string
	ServerReceiveMS int64
	States          map[string]bool
	Events          map[string]int
	VideoTime       *float64
	SessionID       string
	ClientTimestamp int64 // debugging only, never used for windowing
}

// HasState reports whether the sample carries the named state as true.
// Unknown names are treated as false rather than an error.
func (s *Sample) HasState(name string) bool {
	return s.States != nil && s.States[name]
}

// EventCount returns the count for the named event, defaulting to zero for
// unknown or absent names.
func (s *Sample) EventCount(name string) int {
	if s.Events == nil {
		return 0
	}
	return s.Events[name]
}

// EffectDebug carries the aggregation inputs that justified an effect
// decision. Present on every effect the aggregator emits; manual effects
// relayed by the connection handler carry none.
type EffectDebug struct {
	ActiveUsers  int                `json:"activeUsers"`
	RatioState   map[string]float64 `json:"ratioState"`
	DensityEvent map[string]float64 `json:"densityEvent"`
}

// Effect is the at-most-one-per-tick decision record broadcast to viewers.
type Effect struct {
	EffectType   string       `json:"effectType"`
	Intensity    float64      `json:"intensity"`
	DurationMS   int64        `json:"durationMs"`
	ServerSendMS int64        `json:"timestamp"`
	SessionID    string       `json:"sessionId,omitempty"`
	VideoTime    *float64     `json:"videoTime,omitempty"`
	ActiveUsers  int          `json:"activeUsers,omitempty"`
	Debug        *EffectDebug `json:"debug,omitempty"`
}

// ConnectionMeta is the durable-enough identity of a viewer's connection,
// independent of the transport. The Hub owns the live socket; this is the
// part other components (Store, Persistence) need to know about a viewer.
type ConnectionMeta struct {
	UserID          string
	ExperimentGroup string
	IsHost          bool
	JoinedMS        int64
}

// Session is one viewing-instance's metadata, created on first play and
// closed on video end.
type Session struct {
	ID          string
	UserID      string
	VideoID     string
	StartedMS   int64
	CompletedMS *int64
}

// UserRecord is the durable identity of a viewer, created on first
// connection.
type UserRecord struct {
	ID              string
	ExperimentGroup string
	CreatedMS       int64
}
