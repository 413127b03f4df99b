package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
)

// WSSubscriber adapts a coder/websocket connection to the Subscriber
// interface. Writes carry a per-send timeout so one stalled client cannot
// hold an encounter lock indefinitely.
type WSSubscriber struct {
	conn         *websocket.Conn
	ctx          context.Context
	writeTimeout time.Duration
}

// NewWSSubscriber wraps conn. ctx bounds the connection's lifetime.
func NewWSSubscriber(ctx context.Context, conn *websocket.Conn, writeTimeout time.Duration) *WSSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSSubscriber{conn: conn, ctx: ctx, writeTimeout: writeTimeout}
}

// Send writes payload as a JSON text frame.
func (s *WSSubscriber) Send(payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

// Close closes the connection with a normal status.
func (s *WSSubscriber) Close(reason string) {
	_ = s.conn.Close(websocket.StatusNormalClosure, reason)
}

// ClosePolicyViolation closes the connection for auth or parameter failures.
func (s *WSSubscriber) ClosePolicyViolation(reason string) {
	_ = s.conn.Close(websocket.StatusPolicyViolation, reason)
}

// ReceiveLoop discards client frames until the connection drops. The hub's
// wire protocol is server-to-client only; the loop exists to detect
// disconnects promptly.
func (s *WSSubscriber) ReceiveLoop() {
	for {
		if _, _, err := s.conn.Read(s.ctx); err != nil {
			return
		}
	}
}
