package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/demi-app/demi/backend/pkg/protocol"
)

// MemoryStore keeps conversations in process memory. It is the default when
// no database path is configured and the workhorse for tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]string             // userID -> conversationID
	messages      map[string][]protocol.Message // conversationID -> ordered messages
	index         map[string]map[string]int     // conversationID -> messageID -> slice position
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]string),
		messages:      make(map[string][]protocol.Message),
		index:         make(map[string]map[string]int),
	}
}

func (s *MemoryStore) EnsureConversation(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.conversations[userID]; ok {
		return id, nil
	}

	id := uuid.NewString()
	s.conversations[userID] = id
	s.messages[id] = make([]protocol.Message, 0, 16)
	s.index[id] = make(map[string]int)
	return id, nil
}

func (s *MemoryStore) Append(_ context.Context, msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ConversationID]; !ok {
		return ErrConversationNotFound
	}

	s.index[msg.ConversationID][msg.MessageID] = len(s.messages[msg.ConversationID])
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[msg.ConversationID][msg.MessageID]
	if !ok {
		return ErrConversationNotFound
	}
	s.messages[msg.ConversationID][pos] = msg
	return nil
}

func (s *MemoryStore) Get(_ context.Context, conversationID, messageID string) (protocol.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[conversationID][messageID]
	if !ok {
		return protocol.Message{}, false, nil
	}
	return s.messages[conversationID][pos], true, nil
}

func (s *MemoryStore) History(_ context.Context, conversationID string) ([]protocol.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]protocol.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
