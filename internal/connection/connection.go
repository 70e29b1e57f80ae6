// Package connection implements C4 (per-viewer connection lifecycle and
// inbound demultiplexing) and C6 (the sync relay tags within that same
// demultiplexer). A connection is a pair of independent tasks — reader and
// writer — exactly the split the teacher's own Connection wrapper uses,
// with a single writer goroutine serializing outbound writes so no two
// goroutines ever call WriteMessage concurrently on the same socket.
package connection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"audiencehub/pkg/interfaces"
)

// outboundQueueSize is the bounded per-connection outbound queue (§4.4's
// backpressure recommendation); a full queue drops the newest frame.
const outboundQueueSize = 64

const writeTimeout = 5 * time.Second

// Conn wraps a live WebSocket and satisfies interfaces.Connection. Its
// identity fields are fixed at construction, right after the handshake, and
// never change for the lifetime of the connection.
type Conn struct {
	ws     *websocket.Conn
	writeCh chan []byte

	userID          string
	experimentGroup string
	isHost          bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger zerolog.Logger
}

// New wraps ws and starts its writer goroutine. userID/experimentGroup/
// isHost are the handshake-resolved identity; they never change afterward.
func New(ws *websocket.Conn, userID, experimentGroup string, isHost bool, logger zerolog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:              ws,
		writeCh:         make(chan []byte, outboundQueueSize),
		userID:          userID,
		experimentGroup: experimentGroup,
		isHost:          isHost,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
	}

	go c.writeLoop()

	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Str("user_id", c.userID).Msg("write failed, closing connection")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON enqueues v without blocking. A full outbound queue drops the
// new frame rather than the oldest, and reports ErrQueueFull so the Hub can
// count the drop.
func (c *Conn) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// ReadMessage reads one inbound data frame (text or binary; the caller
// filters by message type), subject to the read deadline
// already set by the caller. Exposed so the handler's reader loop can stay
// outside this package's lock-free write path.
func (c *Conn) ReadMessage() (messageType int, data []byte, err error) {
	return c.ws.ReadMessage()
}

// SetReadLimit bounds the size of any single inbound frame; if a peer
// exceeds it, gorilla sends a message-too-big (1009) close frame and the
// read returns websocket.ErrReadLimit.
func (c *Conn) SetReadLimit(limit int64) {
	c.ws.SetReadLimit(limit)
}

// SetReadDeadline forwards to the underlying socket, used by the handler's
// idle-timeout and ping/pong bookkeeping.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// SetPongHandler forwards to the underlying socket.
func (c *Conn) SetPongHandler(h func(string) error) {
	c.ws.SetPongHandler(h)
}

// Ping sends a control-frame ping directly, bypassing the outbound queue
// since pings are not JSON payloads.
func (c *Conn) Ping(deadline time.Time) error {
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

// CloseWithReason sends a close control frame carrying code/reason before
// tearing the connection down, used when the handler rejects a peer for a
// protocol error or a rate-limit violation.
func (c *Conn) CloseWithReason(code int, reason string) error {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
	return c.Close()
}

// Close tears the connection down exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

// Done reports connection closure to callers that need to tear down their
// own per-connection goroutines (the handler's ping ticker) in step.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Conn) UserID() string          { return c.userID }
func (c *Conn) ExperimentGroup() string { return c.experimentGroup }
func (c *Conn) IsHost() bool            { return c.isHost }

var _ interfaces.Connection = (*Conn)(nil)
