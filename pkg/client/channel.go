package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/demi-app/demi/backend/pkg/protocol"
)

// ChannelStatus is the connection state surfaced to the UI indicator.
type ChannelStatus string

const (
	StatusDisconnected ChannelStatus = "disconnected"
	StatusConnecting   ChannelStatus = "connecting"
	StatusConnected    ChannelStatus = "connected"
	StatusError        ChannelStatus = "error"
)

// ErrEmptyMessage is returned by Send for content that trims to nothing;
// such messages are never transmitted.
var ErrEmptyMessage = errors.New("message content is empty")

// ErrChannelClosed is returned by Send after Close.
var ErrChannelClosed = errors.New("channel closed")

// ErrNotConnected is returned by Send while the channel has no live
// connection.
var ErrNotConnected = errors.New("channel not connected")

// Reconnect backoff: exponential from base to cap, reset on success.
const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 30 * time.Second
)

// EventKind discriminates Event payloads.
type EventKind string

const (
	KindHistory         EventKind = "history"
	KindMessage         EventKind = "message"
	KindTyping          EventKind = "typing"
	KindDeliveryReceipt EventKind = "delivery_receipt"
	KindReadReceipt     EventKind = "read_receipt"
	KindError           EventKind = "error"
	KindStatus          EventKind = "status"
)

// Event is one item on the channel's single ordered event stream. Exactly
// the fields implied by Kind are set.
type Event struct {
	Kind EventKind

	ConversationID string
	Messages       []protocol.Message // KindHistory
	Message        *protocol.Message  // KindMessage
	IsTyping       bool               // KindTyping
	MessageID      string             // receipts
	Detail         string             // KindError
	Status         ChannelStatus      // KindStatus
}

// Channel maintains the chat connection for the logged-in session. It
// reconnects automatically with backoff; every (re)connect yields a fresh
// KindHistory event from the server, which the reducer reconciles by id.
type Channel struct {
	client *Client
	events chan Event

	mu     sync.Mutex
	conn   *websocket.Conn
	status ChannelStatus
	opened bool
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel prepares a channel; Open starts it.
func (c *Client) NewChannel() *Channel {
	return &Channel{
		client: c,
		events: make(chan Event, 64),
		status: StatusDisconnected,
		done:   make(chan struct{}),
	}
}

// Events returns the ordered event stream. It is meant for a single
// consumer and is closed when the channel shuts down.
func (ch *Channel) Events() <-chan Event {
	return ch.events
}

// Status returns the current connection state.
func (ch *Channel) Status() ChannelStatus {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.status
}

// Open starts the connect/read/reconnect loop. It returns immediately;
// connection progress arrives as KindStatus events. Only the first call
// does anything.
func (ch *Channel) Open(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	ch.mu.Lock()
	if ch.opened || ch.closed {
		ch.mu.Unlock()
		cancel()
		return
	}
	ch.opened = true
	ch.cancel = cancel
	ch.mu.Unlock()

	go ch.run(runCtx)
}

// Close tears the channel down deterministically: the connection is closed,
// the run loop exits and the event stream is closed before Close returns.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	opened := ch.opened
	cancel := ch.cancel
	conn := ch.conn
	ch.mu.Unlock()

	if !opened {
		// run never started, so nobody else will close the stream.
		close(ch.events)
		return
	}

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-ch.done
}

// Send transmits a user message. Content is trimmed client-side; an empty
// result is rejected without touching the wire.
func (ch *Channel) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	return ch.write(protocol.OpSendMessage, protocol.SendMessagePayload{Content: content})
}

// SendReadReceipt marks a companion message as read.
func (ch *Channel) SendReadReceipt(messageID string) error {
	return ch.write(protocol.OpReadReceipt, protocol.ReceiptPayload{MessageID: messageID})
}

func (ch *Channel) write(typ string, payload any) error {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return ErrChannelClosed
	}
	if ch.conn == nil || ch.status != StatusConnected {
		return ErrNotConnected
	}
	return ch.conn.WriteJSON(env)
}

func (ch *Channel) run(ctx context.Context) {
	defer close(ch.done)
	defer close(ch.events)
	defer ch.setStatus(ctx, StatusDisconnected)

	backoff := backoffBase
	for {
		if ctx.Err() != nil {
			return
		}

		ch.setStatus(ctx, StatusConnecting)

		conn, err := ch.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			// A definitive refusal from the session authority is not a
			// transport problem: surface it and stop, the user has to log
			// in again. Only transport failures get the backoff retry.
			var authErr *AuthError
			if errors.As(err, &authErr) {
				log.Printf("[channel] authorization rejected: %v", authErr)
				ch.emit(ctx, Event{Kind: KindError, Detail: authErr.Message})
				return
			}

			log.Printf("[channel] connect failed: %v", err)
			ch.setStatus(ctx, StatusError)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		ch.mu.Lock()
		ch.conn = conn
		ch.mu.Unlock()
		ch.setStatus(ctx, StatusConnected)
		backoff = backoffBase

		ch.readLoop(ctx, conn)

		ch.mu.Lock()
		ch.conn = nil
		ch.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		ch.setStatus(ctx, StatusDisconnected)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (ch *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := ch.client.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	wsURL, err := channelURL(ch.client.baseURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		// A 401 handshake means the token itself was refused, not that the
		// server was unreachable.
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{Code: CodeInvalidToken, Message: "invalid or expired token"}
		}
		return nil, fmt.Errorf("dial channel: %w", err)
	}
	return conn, nil
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[channel] read error: %v", err)
			}
			return
		}

		event, err := parseEnvelope(env)
		if err != nil {
			// Malformed frames degrade to error events; the channel lives on.
			event = Event{Kind: KindError, Detail: err.Error()}
		}

		select {
		case ch.events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (ch *Channel) setStatus(ctx context.Context, status ChannelStatus) {
	ch.mu.Lock()
	changed := ch.status != status
	ch.status = status
	ch.mu.Unlock()

	if !changed {
		return
	}
	ch.emit(ctx, Event{Kind: KindStatus, Status: status})
}

func (ch *Channel) emit(ctx context.Context, ev Event) {
	select {
	case ch.events <- ev:
	case <-ctx.Done():
	}
}

func parseEnvelope(env protocol.Envelope) (Event, error) {
	switch env.Type {
	case protocol.EventHistory:
		var payload protocol.HistoryPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("malformed history event: %w", err)
		}
		return Event{Kind: KindHistory, ConversationID: payload.ConversationID, Messages: payload.Messages}, nil

	case protocol.EventMessage:
		var payload protocol.MessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("malformed message event: %w", err)
		}
		return Event{Kind: KindMessage, Message: &payload.Message}, nil

	case protocol.EventTyping:
		var payload protocol.TypingPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("malformed typing event: %w", err)
		}
		return Event{Kind: KindTyping, IsTyping: payload.IsTyping}, nil

	case protocol.EventDeliveryReceipt:
		var payload protocol.ReceiptPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("malformed delivery receipt: %w", err)
		}
		return Event{Kind: KindDeliveryReceipt, MessageID: payload.MessageID}, nil

	case protocol.EventReadReceipt:
		var payload protocol.ReceiptPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("malformed read receipt: %w", err)
		}
		return Event{Kind: KindReadReceipt, MessageID: payload.MessageID}, nil

	case protocol.EventError:
		var payload protocol.ErrorPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("malformed error event: %w", err)
		}
		return Event{Kind: KindError, Detail: payload.Detail}, nil
	}

	return Event{}, fmt.Errorf("unknown event type %q", env.Type)
}

func channelURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/chat/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > backoffMax {
		return backoffMax
	}
	return next
}
