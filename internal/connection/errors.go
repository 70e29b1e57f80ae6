package connection

import "errors"

var (
	// ErrQueueFull is returned by WriteJSON when the bounded outbound queue
	// is already at capacity; the new frame is dropped, not the oldest.
	ErrQueueFull = errors.New("connection: outbound queue full")

	// ErrConnectionClosed is returned by WriteJSON once Close has run.
	ErrConnectionClosed = errors.New("connection: closed")

	// ErrHandshakeTimeout names the case of a peer that sends no initial
	// handshake frame within the handshake deadline. No code in this
	// package returns it: the handler logs the underlying read error and
	// closes the socket.
	ErrHandshakeTimeout = errors.New("connection: handshake timeout")
)
