// Package protocol defines the wire contract between the Demi backend and
// its clients: REST entities for the session authority and the envelope
// format spoken on the chat channel.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/demi-app/demi/backend/pkg/emotion"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// MessageStatus tracks delivery progress. Transitions only move forward:
// sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses for the monotonicity check. Unknown values rank
// below sent so they can never overwrite a real status.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Message is one conversation turn. Everything except status, deliveredAt
// and readAt is immutable once created.
type Message struct {
	MessageID      string         `json:"messageId"`
	ConversationID string         `json:"conversationId"`
	Sender         Sender         `json:"sender"`
	Content        string         `json:"content"`
	EmotionState   *emotion.State `json:"emotionState,omitempty"`
	Status         MessageStatus  `json:"status"`
	DeliveredAt    *time.Time     `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time     `json:"readAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Session describes one authenticated device login. IsCurrent is relative
// to the requesting client and never persisted.
type Session struct {
	SessionID    string    `json:"sessionId"`
	DeviceName   string    `json:"deviceName"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsActive     bool      `json:"isActive"`
	IsCurrent    bool      `json:"isCurrent"`
}

// TokenPair is issued on login and rotated as a unit on refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// LoginRequest authenticates an email/password pair for a named device.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"deviceName"`
}

// LoginResponse carries the fresh token pair and the session it belongs to.
type LoginResponse struct {
	TokenPair
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// RefreshRequest exchanges a refresh token for a rotated pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ErrorResponse is the JSON body of every non-2xx REST reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Channel event types, server to client.
const (
	EventHistory         = "history"
	EventMessage         = "message"
	EventTyping          = "typing"
	EventDeliveryReceipt = "delivery_receipt"
	EventReadReceipt     = "read_receipt"
	EventError           = "error"
)

// Channel operation types, client to server.
const (
	OpSendMessage = "send_message"
	OpReadReceipt = "read_receipt"
)

// Envelope frames every payload on the chat channel, both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope wraps payload under the given type, stamped with now.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()}, nil
}

// HistoryPayload delivers the conversation once, right after connect.
type HistoryPayload struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
}

// MessagePayload announces a newly appended message.
type MessagePayload struct {
	Message Message `json:"message"`
}

// TypingPayload is ephemeral and last-value-wins.
type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// ReceiptPayload signals a status transition for an existing message.
type ReceiptPayload struct {
	MessageID string `json:"messageId"`
}

// ErrorPayload is a non-fatal protocol error; the channel stays open.
type ErrorPayload struct {
	Detail string `json:"detail"`
}

// SendMessagePayload carries the user's outbound message content.
type SendMessagePayload struct {
	Content string `json:"content"`
}
