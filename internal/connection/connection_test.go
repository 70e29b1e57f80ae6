package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"audiencehub/pkg/interfaces"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// newTestConnPair dials a real WebSocket connection over an httptest
// server and returns both the server-side socket (what Conn wraps in
// production) and the client-side socket (what a test uses to observe
// what the server wrote).
func newTestConnPair(t *testing.T) (serverWS, clientWS *websocket.Conn) {
	t.Helper()

	serverCh := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade failed: %v", err)
			return
		}
		serverCh <- ws
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ws := <-serverCh:
		return ws, client
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side upgrade")
		return nil, nil
	}
}

func TestConn_SatisfiesInterfacesConnection(t *testing.T) {
	var _ interfaces.Connection = (*Conn)(nil)
}

func TestConn_IdentityGetters(t *testing.T) {
	serverWS, _ := newTestConnPair(t)
	c := New(serverWS, "u-1", "control2", true, zerolog.Nop())
	defer func() { _ = c.Close() }()

	if c.UserID() != "u-1" || c.ExperimentGroup() != "control2" || !c.IsHost() {
		t.Errorf("identity getters did not round-trip constructor args: %+v", c)
	}
}

func TestConn_WriteJSONDeliversToPeer(t *testing.T) {
	serverWS, clientWS := newTestConnPair(t)
	c := New(serverWS, "u-1", "control2", false, zerolog.Nop())
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	_ = clientWS.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientWS.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if !strings.Contains(string(data), "world") {
		t.Errorf("peer did not receive the written payload, got %q", data)
	}
}

func TestConn_WriteJSONDropsNewestWhenQueueFull(t *testing.T) {
	// Built without a writer goroutine, so nothing drains the queue and
	// saturation is exact.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Conn{
		writeCh: make(chan []byte, outboundQueueSize),
		userID:  "u-1",
		ctx:     ctx,
		cancel:  cancel,
		logger:  zerolog.Nop(),
	}

	for i := 0; i < outboundQueueSize; i++ {
		if err := c.WriteJSON(map[string]int{"i": i}); err != nil {
			t.Fatalf("WriteJSON(%d) error = %v, want nil while the queue has room", i, err)
		}
	}
	if err := c.WriteJSON(map[string]int{"i": outboundQueueSize}); err != ErrQueueFull {
		t.Fatalf("WriteJSON() on a full queue = %v, want ErrQueueFull", err)
	}
	if first := string(<-c.writeCh); first != `{"i":0}` {
		t.Errorf("oldest queued frame = %s, want {\"i\":0} (the newest frame is the one dropped)", first)
	}
}

func TestConn_WriteJSONFailsAfterClose(t *testing.T) {
	serverWS, _ := newTestConnPair(t)
	c := New(serverWS, "u-1", "control2", false, zerolog.Nop())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := c.WriteJSON(map[string]string{"a": "b"}); err != ErrConnectionClosed {
		t.Errorf("WriteJSON() after Close() = %v, want ErrConnectionClosed", err)
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	serverWS, _ := newTestConnPair(t)
	c := New(serverWS, "u-1", "control2", false, zerolog.Nop())

	if err := c.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() should be a no-op, got %v", err)
	}
}
