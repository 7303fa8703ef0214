// Package chat manages the companion conversation: one thread per user,
// append-only messages, forward-only receipt transitions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/demi-app/demi/backend/pkg/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

var (
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Store persists conversations and their messages.
type Store interface {
	// EnsureConversation returns the user's conversation id, creating the
	// conversation on first use.
	EnsureConversation(ctx context.Context, userID string) (string, error)
	Append(ctx context.Context, msg protocol.Message) error
	Update(ctx context.Context, msg protocol.Message) error
	Get(ctx context.Context, conversationID, messageID string) (protocol.Message, bool, error)
	History(ctx context.Context, conversationID string) ([]protocol.Message, error)
}

// Service wraps a Store with the conversation rules. Receipt application is
// serialized so superseded channels cannot interleave status writes.
type Service struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
}

// NewService builds a Service on top of the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// History returns the user's conversation id and full message list.
func (s *Service) History(ctx context.Context, userID string) (string, []protocol.Message, error) {
	conversationID, err := s.store.EnsureConversation(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	messages, err := s.store.History(ctx, conversationID)
	if err != nil {
		return "", nil, err
	}
	return conversationID, messages, nil
}

// AppendUser stores a user-authored message. Content is trimmed; an empty
// result is rejected before anything touches the store.
func (s *Service) AppendUser(ctx context.Context, userID, content string) (protocol.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return protocol.Message{}, ErrEmptyMessage
	}
	return s.append(ctx, userID, protocol.SenderUser, content, nil)
}

// AppendAssistant stores a companion-authored message with its mood vector.
func (s *Service) AppendAssistant(ctx context.Context, userID, content string, state *emotion.State) (protocol.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return protocol.Message{}, ErrEmptyMessage
	}
	return s.append(ctx, userID, protocol.SenderAssistant, content, state)
}

func (s *Service) append(ctx context.Context, userID string, sender protocol.Sender, content string, state *emotion.State) (protocol.Message, error) {
	conversationID, err := s.store.EnsureConversation(ctx, userID)
	if err != nil {
		return protocol.Message{}, err
	}

	msg := protocol.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		EmotionState:   state,
		Status:         protocol.StatusSent,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.store.Append(ctx, msg); err != nil {
		return protocol.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// MarkDelivered advances the message to delivered. Unknown ids and backward
// transitions are no-ops; applied reports whether anything changed.
func (s *Service) MarkDelivered(ctx context.Context, userID, messageID string) (protocol.Message, bool, error) {
	return s.transition(ctx, userID, messageID, protocol.StatusDelivered)
}

// MarkRead advances the message to read.
func (s *Service) MarkRead(ctx context.Context, userID, messageID string) (protocol.Message, bool, error) {
	return s.transition(ctx, userID, messageID, protocol.StatusRead)
}

func (s *Service) transition(ctx context.Context, userID, messageID string, target protocol.MessageStatus) (protocol.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversationID, err := s.store.EnsureConversation(ctx, userID)
	if err != nil {
		return protocol.Message{}, false, err
	}

	msg, ok, err := s.store.Get(ctx, conversationID, messageID)
	if err != nil {
		return protocol.Message{}, false, err
	}
	if !ok {
		// Receipt for a message we never saw: tolerated, not an error.
		return protocol.Message{}, false, nil
	}

	if target.Rank() <= msg.Status.Rank() {
		return msg, false, nil
	}

	now := s.now().UTC()
	msg.Status = target
	switch target {
	case protocol.StatusDelivered:
		if msg.DeliveredAt == nil {
			msg.DeliveredAt = &now
		}
	case protocol.StatusRead:
		if msg.DeliveredAt == nil {
			msg.DeliveredAt = &now
		}
		if msg.ReadAt == nil {
			msg.ReadAt = &now
		}
	}

	if err := s.store.Update(ctx, msg); err != nil {
		return protocol.Message{}, false, fmt.Errorf("update message: %w", err)
	}
	return msg, true, nil
}
