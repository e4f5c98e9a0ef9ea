// Package bot defines the interface the core consumes from a chat-bot
// channel (Telegram, Slack, or any other gateway) and a minimal gateway
// client that speaks a websocket-framed variant of that protocol. The bot
// surface itself — command parsing, button layout, long-poll semantics for
// a specific chat network — is an external collaborator; this package only
// supplies the seam the permission engine and notifier push through.
package bot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentbridge/bridge/log"
)

// ButtonCallback is a human's response to an inline-button prompt.
type ButtonCallback struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Response  string `json:"response"`
	UserID    string `json:"userId"`
}

// Adapter is what the permission engine and notifier need from any chat-bot
// channel: push a message (optionally with buttons), edit one in place once
// answered, and a stream of inbound callbacks/free-form messages.
type Adapter interface {
	SendMessage(ctx context.Context, sessionID, text string, buttons []string, requestID string) (externalMessageID string, err error)
	EditMessage(ctx context.Context, externalMessageID, text string) error
	Callbacks() <-chan ButtonCallback
	Messages() <-chan IncomingMessage
	Close() error
}

// IncomingMessage is free-form chat text routed to a session (or, with no
// active session, to the task executor as a fresh headless invocation).
type IncomingMessage struct {
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
}

// GatewayClient implements Adapter against a websocket-framed bot gateway:
// a small always-on companion process that owns the actual chat-network
// credentials and forwards button callbacks / messages back to the bridge.
// This keeps network-specific auth (bot tokens, webhook secrets) out of the
// bridge process entirely.
type GatewayClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	cbs    chan ButtonCallback
	msgs   chan IncomingMessage
	closed chan struct{}
}

type gatewayFrame struct {
	Kind string          `json:"kind"` // "send", "edit", "callback", "message"
	Data json.RawMessage `json:"data"`
}

// DialGateway connects to a bot gateway's websocket endpoint and starts its
// read loop. The gateway is expected to frame every inbound event as
// {"kind": "callback"|"message", "data": ...}.
func DialGateway(ctx context.Context, url string, headers map[string]string) (*GatewayClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	h := make(map[string][]string, len(headers))
	for k, v := range headers {
		h[k] = []string{v}
	}
	conn, _, err := dialer.DialContext(ctx, url, h)
	if err != nil {
		return nil, err
	}
	gc := &GatewayClient{
		conn:   conn,
		cbs:    make(chan ButtonCallback, 16),
		msgs:   make(chan IncomingMessage, 16),
		closed: make(chan struct{}),
	}
	go gc.readLoop()
	return gc, nil
}

func (c *GatewayClient) readLoop() {
	defer close(c.cbs)
	defer close(c.msgs)
	for {
		var frame gatewayFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			select {
			case <-c.closed:
			default:
				log.Warn().Err(err).Msg("bot gateway read failed, closing")
			}
			return
		}
		switch frame.Kind {
		case "callback":
			var cb ButtonCallback
			if err := json.Unmarshal(frame.Data, &cb); err == nil {
				c.cbs <- cb
			}
		case "message":
			var m IncomingMessage
			if err := json.Unmarshal(frame.Data, &m); err == nil {
				c.msgs <- m
			}
		}
	}
}

func (c *GatewayClient) writeFrame(kind string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(gatewayFrame{Kind: kind, Data: payload})
}

type sendPayload struct {
	SessionID string   `json:"sessionId"`
	Text      string   `json:"text"`
	Buttons   []string `json:"buttons,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

func (c *GatewayClient) SendMessage(ctx context.Context, sessionID, text string, buttons []string, requestID string) (string, error) {
	if err := c.writeFrame("send", sendPayload{SessionID: sessionID, Text: text, Buttons: buttons, RequestID: requestID}); err != nil {
		return "", err
	}
	// The gateway owns message-ID assignment on its side of the wire; the
	// bridge only needs something to key EditMessage against later, so the
	// request id doubles as that key for the lifetime of one ask.
	return requestID, nil
}

type editPayload struct {
	ExternalMessageID string `json:"externalMessageId"`
	Text               string `json:"text"`
}

func (c *GatewayClient) EditMessage(ctx context.Context, externalMessageID, text string) error {
	return c.writeFrame("edit", editPayload{ExternalMessageID: externalMessageID, Text: text})
}

func (c *GatewayClient) Callbacks() <-chan ButtonCallback   { return c.cbs }
func (c *GatewayClient) Messages() <-chan IncomingMessage   { return c.msgs }

func (c *GatewayClient) Close() error {
	close(c.closed)
	return c.conn.Close()
}
