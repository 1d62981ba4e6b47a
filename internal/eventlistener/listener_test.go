package eventlistener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func notification(sub uint64, sig, errJSON string, logs ...string) string {
	raw, _ := json.Marshal(logs)
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":%d,"result":{"context":{"slot":42},"value":{"signature":%q,"err":%s,"logs":%s}}}}`,
		sub, sig, errJSON, raw)
}

// fakeRPC accepts logsSubscribe, pushes the scripted notifications and hangs up.
func fakeRPC(t *testing.T, connections *int32, script []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(connections, 1)

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		assert.Equal(t, "logsSubscribe", req.Method)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":7}`, req.ID)))
		for _, msg := range script {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestListenerTriggersOnPoolInitAndReconnects(t *testing.T) {
	var connections int32
	server := fakeRPC(t, &connections, []string{
		notification(7, "sig-init", "null", "Program log: initialize2: InitializeInstruction2"),
		notification(7, "sig-swap", "null", "Program log: ray_log: swap"),
		notification(7, "sig-failed", `{"InstructionError":[0,"Custom"]}`, "Program log: initialize2"),
		notification(8, "sig-other-sub", "null", "Program log: initialize2"),
	})
	defer server.Close()

	el, err := NewEventListener(wsURL(server), Config{ReconnectDelay: 20 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	var triggers int32
	handler := TriggerOnPoolInit(func() { atomic.AddInt32(&triggers, 1) }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- el.Run(ctx, handler) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&connections) >= 2 && atomic.LoadInt32(&triggers) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// at most one trigger per connection: the failed tx and foreign subscription are ignored
	assert.LessOrEqual(t, atomic.LoadInt32(&triggers), atomic.LoadInt32(&connections))
}

func TestSubscribeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"Method not found"}}`, req.ID)))
	}))
	defer server.Close()

	el, err := NewEventListener(wsURL(server), Config{}, zap.NewNop())
	require.NoError(t, err)

	err = el.listen(context.Background(), func(Event) {})
	assert.ErrorContains(t, err, "Method not found")
	assert.False(t, el.Connected())
}

func TestNewEventListenerValidatesURL(t *testing.T) {
	for _, u := range []string{"", "http://rpc.example.com", "ws://", "::"} {
		_, err := NewEventListener(u, Config{}, zap.NewNop())
		assert.Error(t, err, u)
	}
	el, err := NewEventListener("wss://rpc.example.com", Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, RaydiumAMMProgram, el.cfg.Program)
	assert.Equal(t, 5*time.Second, el.cfg.ReconnectDelay)
}

func TestParseNotification(t *testing.T) {
	ev, ok := parseNotification([]byte(notification(3, "abc", "null", "a", "b")), 3)
	require.True(t, ok)
	assert.Equal(t, Event{Signature: "abc", Slot: 42, Logs: []string{"a", "b"}}, ev)

	_, ok = parseNotification([]byte(`{"jsonrpc":"2.0","id":1,"result":3}`), 3)
	assert.False(t, ok)
	_, ok = parseNotification([]byte(`not json`), 3)
	assert.False(t, ok)
}

func TestIsPoolInitialization(t *testing.T) {
	assert.True(t, IsPoolInitialization([]string{"Program log: x", "Program log: initialize2: InitializeInstruction2"}))
	assert.False(t, IsPoolInitialization([]string{"Program log: initialize"}))
	assert.False(t, IsPoolInitialization(nil))
}
