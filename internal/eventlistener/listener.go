// internal/eventlistener/listener.go
package eventlistener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventListener follows program logs over the RPC websocket and reconnects
// after every disconnect.
type EventListener struct {
	wsURL     string
	cfg       Config
	dialer    websocket.Dialer
	logger    *zap.Logger
	requestID atomic.Uint64
	connected atomic.Bool
}

func NewEventListener(wsURL string, cfg Config, logger *zap.Logger) (*EventListener, error) {
	u, err := url.Parse(wsURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("invalid websocket url %q", wsURL)
	}
	def := DefaultConfig()
	if cfg.Program == "" {
		cfg.Program = def.Program
	}
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &EventListener{
		wsURL:  wsURL,
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.Named("ws"),
	}, nil
}

// Connected reports whether a subscription is currently live.
func (el *EventListener) Connected() bool { return el.connected.Load() }

// Run delivers events to handler until ctx is cancelled.
func (el *EventListener) Run(ctx context.Context, handler func(Event)) error {
	b := backoff.NewConstantBackOff(el.cfg.ReconnectDelay)
	for {
		err := el.listen(ctx, handler)
		el.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}

		delay := b.NextBackOff()
		el.logger.Warn("WebSocket disconnected, reconnecting",
			zap.Error(err), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (el *EventListener) listen(ctx context.Context, handler func(Event)) error {
	conn, _, err := el.dialer.DialContext(ctx, el.wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	subID, err := el.subscribe(conn)
	if err != nil {
		return err
	}
	el.connected.Store(true)
	el.logger.Info("Subscribed to program logs",
		zap.String("program", el.cfg.Program), zap.Uint64("subscription", subID))

	done := make(chan struct{})
	defer close(done)
	go el.pingLoop(conn, done)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(el.cfg.ReadTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(el.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		if event, ok := parseNotification(data, subID); ok {
			handler(event)
		}
	}
}

func (el *EventListener) subscribe(conn *websocket.Conn) (uint64, error) {
	id := el.requestID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string][]string{"mentions": {el.cfg.Program}},
			map[string]string{"commitment": el.cfg.Commitment},
		},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(el.cfg.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(el.cfg.ReadTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read subscribe reply: %w", err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return 0, fmt.Errorf("logsSubscribe rejected: %d %s", msg.Error.Code, msg.Error.Message)
		}
		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return 0, errors.New("logsSubscribe reply has no subscription id")
		}
		return subID, nil
	}
}

func (el *EventListener) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(el.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(el.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				el.logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

// parseNotification extracts a successful transaction's logs for subscription subID.
func parseNotification(data []byte, subID uint64) (Event, bool) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false
	}
	if msg.Method != "logsNotification" || msg.Params == nil || msg.Params.Subscription != subID {
		return Event{}, false
	}
	value := msg.Params.Result.Value
	if len(value.Err) > 0 && string(value.Err) != "null" {
		return Event{}, false
	}
	return Event{
		Signature: value.Signature,
		Slot:      msg.Params.Result.Context.Slot,
		Logs:      value.Logs,
	}, true
}
