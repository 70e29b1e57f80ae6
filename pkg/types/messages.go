package types

// Envelope is the bare `type` tag of an inbound frame. The connection
// handler does not decode into it; it decodes every frame once into its own
// flattened frame struct. Absence of a type alongside presence of
// `states`/`events` is treated as a reaction sample per the demultiplexer
// rule.
type Envelope struct {
	Type string `json:"type,omitempty"`
}

// HandshakeFrame is the mandatory first frame on every connection.
type HandshakeFrame struct {
	UserID          string `json:"userId"`
	ExperimentGroup string `json:"experimentGroup,omitempty"`
	IsHost          bool   `json:"isHost,omitempty"`
}

// ReactionFrame is the untagged (or type="reaction") per-second summary.
type ReactionFrame struct {
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp,omitempty"`
	States    map[string]bool `json:"states"`
	Events    map[string]int  `json:"events"`
	VideoTime *float64        `json:"videoTime,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// VideoTransportFrame covers video_play / video_pause / video_seek, both
// inbound from the host and outbound as a relay to participants.
type VideoTransportFrame struct {
	Type        string  `json:"type"`
	CurrentTime float64 `json:"currentTime"`
	Timestamp   int64   `json:"timestamp,omitempty"`
}

// TimeSyncRequestFrame is sent by a participant with no extra fields, and
// relayed to the host with the requester's id attached.
type TimeSyncRequestFrame struct {
	Type        string `json:"type"`
	RequesterID string `json:"requesterId,omitempty"`
}

// TimeSyncResponseFrame is sent by the host naming the requester, and
// relayed to the requester with the id stripped.
type TimeSyncResponseFrame struct {
	Type        string  `json:"type"`
	RequesterID string  `json:"requesterId,omitempty"`
	CurrentTime float64 `json:"currentTime"`
}

// VideoURLSelectedFrame is sent by the host and broadcast unchanged.
type VideoURLSelectedFrame struct {
	Type    string `json:"type"`
	VideoID string `json:"videoId"`
}

// SessionCreateFrame records the start of a viewing instance.
type SessionCreateFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	VideoID   string `json:"videoId"`
}

// SessionCompletedFrame records the end of a viewing instance.
type SessionCompletedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// ManualEffectFrame lets a debug-group sender inject an effect directly,
// bypassing the aggregator's priority ladder.
type ManualEffectFrame struct {
	Type       string   `json:"type"`
	EffectType string   `json:"effectType"`
	Intensity  float64  `json:"intensity"`
	DurationMS int64    `json:"durationMs"`
	SessionID  string   `json:"sessionId,omitempty"`
	VideoTime  *float64 `json:"videoTime,omitempty"`
}

// ConnectionEstablishedFrame is the server's handshake acknowledgement.
type ConnectionEstablishedFrame struct {
	Type            string `json:"type"`
	UserID          string `json:"userId"`
	ExperimentGroup string `json:"experimentGroup"`
	IsHost          bool   `json:"isHost"`
	Message         string `json:"message"`
	Timestamp       string `json:"timestamp"`
}

// EffectFrame is the outbound shape of an Effect broadcast to viewers.
type EffectFrame struct {
	Type       string       `json:"type"`
	EffectType string       `json:"effectType"`
	Intensity  float64      `json:"intensity"`
	DurationMS int64        `json:"durationMs"`
	Timestamp  int64        `json:"timestamp"`
	Debug      *EffectDebug `json:"debug,omitempty"`
}

// NewEffectFrame adapts a decided Effect into its wire shape.
func NewEffectFrame(e Effect) EffectFrame {
	return EffectFrame{
		Type:       TagEffect,
		EffectType: e.EffectType,
		Intensity:  e.Intensity,
		DurationMS: e.DurationMS,
		Timestamp:  e.ServerSendMS,
		Debug:      e.Debug,
	}
}
