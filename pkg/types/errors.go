package types

import "errors"

// Sentinel errors surfaced by validation helpers and the inbound
// demultiplexer. Each maps to a single close-or-ignore decision at the
// boundary that catches it.
var (
	ErrInvalidUserID          = errors.New("user id must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidExperimentGroup = errors.New("experiment group must be one of experiment, control1, control2, debug")
	ErrMissingHandshake       = errors.New("first frame must be a handshake with a userId")
	ErrFrameTooLarge          = errors.New("frame exceeds the inbound size ceiling")
	ErrUnknownMessageTag      = errors.New("unrecognized message type tag")
	ErrInvalidEffectType      = errors.New("effect type is not one of the recognized visual effects")
	ErrNotHost                = errors.New("sender is not the registered host")
	ErrNotDebugGroup          = errors.New("manual effects are only accepted from the debug experiment group")
)
