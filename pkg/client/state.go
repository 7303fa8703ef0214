package client

import (
	"github.com/demi-app/demi/backend/pkg/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

// ConversationState folds the channel's event stream into the view the UI
// renders. It is a pure accumulator: Apply never blocks and never talks to
// the network. Not safe for concurrent use; feed it from the single event
// consumer.
type ConversationState struct {
	ConversationID string
	Messages       []protocol.Message
	Typing         bool
	Status         ChannelStatus
	LastError      string

	index map[string]int // messageId -> position in Messages
}

// NewConversationState returns an empty state.
func NewConversationState() *ConversationState {
	return &ConversationState{
		Status: StatusDisconnected,
		index:  make(map[string]int),
	}
}

// Apply folds one event into the state. Messages are deduplicated by id, so
// replaying history after a reconnect is idempotent, and a message's status
// only ever moves forward.
func (s *ConversationState) Apply(ev Event) {
	switch ev.Kind {
	case KindHistory:
		if ev.ConversationID != "" {
			s.ConversationID = ev.ConversationID
		}
		for i := range ev.Messages {
			s.upsert(ev.Messages[i])
		}

	case KindMessage:
		if ev.Message != nil {
			s.upsert(*ev.Message)
		}

	case KindTyping:
		s.Typing = ev.IsTyping

	case KindDeliveryReceipt:
		s.advance(ev.MessageID, protocol.StatusDelivered)

	case KindReadReceipt:
		s.advance(ev.MessageID, protocol.StatusRead)

	case KindError:
		s.LastError = ev.Detail

	case KindStatus:
		s.Status = ev.Status
		if ev.Status == StatusConnected {
			s.LastError = ""
		}
	}
}

// CurrentEmotion returns the emotional state of the most recent companion
// message that carries one, or nil when no such message exists. It is
// recomputed from the message list on every call rather than cached.
func (s *ConversationState) CurrentEmotion() *emotion.State {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Sender == protocol.SenderAssistant && msg.EmotionState != nil {
			return msg.EmotionState
		}
	}
	return nil
}

// DominantEmotion is CurrentEmotion reduced to the single dimension the UI
// leads with. The second return is false when no companion message has
// carried an emotional state yet.
func (s *ConversationState) DominantEmotion() (emotion.Dimension, bool) {
	state := s.CurrentEmotion()
	if state == nil {
		return "", false
	}
	return state.Dominant(), true
}

func (s *ConversationState) upsert(msg protocol.Message) {
	pos, seen := s.index[msg.MessageID]
	if !seen {
		s.index[msg.MessageID] = len(s.Messages)
		s.Messages = append(s.Messages, msg)
		return
	}

	// Later copies win on content, but status never regresses: a stale
	// history replay must not undo a receipt already applied.
	prev := s.Messages[pos]
	if msg.Status.Rank() < prev.Status.Rank() {
		msg.Status = prev.Status
		if msg.DeliveredAt == nil {
			msg.DeliveredAt = prev.DeliveredAt
		}
		if msg.ReadAt == nil {
			msg.ReadAt = prev.ReadAt
		}
	}
	s.Messages[pos] = msg
}

func (s *ConversationState) advance(messageID string, target protocol.MessageStatus) {
	pos, seen := s.index[messageID]
	if !seen {
		return
	}
	if target.Rank() <= s.Messages[pos].Status.Rank() {
		return
	}
	s.Messages[pos].Status = target
}
