package chat_test

import (
	"context"
	"errors"
	"testing"

	chat "github.com/demi-app/demi/backend/internal/service/chat"
	"github.com/demi-app/demi/backend/pkg/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

func TestAppendUserRejectsEmptyContent(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := svc.AppendUser(ctx, "user-1", content); !errors.Is(err, chat.ErrEmptyMessage) {
			t.Fatalf("content %q: expected ErrEmptyMessage, got %v", content, err)
		}
	}
}

func TestAppendTrimsContent(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())

	msg, err := svc.AppendUser(context.Background(), "user-1", "  hello there  ")
	if err != nil {
		t.Fatalf("AppendUser err: %v", err)
	}
	if msg.Content != "hello there" {
		t.Fatalf("content not trimmed: %q", msg.Content)
	}
	if msg.Status != protocol.StatusSent {
		t.Fatalf("expected status sent, got %s", msg.Status)
	}
}

func TestHistorySharesOneConversationPerUser(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	first, err := svc.AppendUser(ctx, "user-1", "hi")
	if err != nil {
		t.Fatalf("AppendUser err: %v", err)
	}
	state := emotion.State{Affection: 0.8}
	second, err := svc.AppendAssistant(ctx, "user-1", "hi yourself", &state)
	if err != nil {
		t.Fatalf("AppendAssistant err: %v", err)
	}
	if first.ConversationID != second.ConversationID {
		t.Fatal("messages landed in different conversations")
	}

	convID, history, err := svc.History(ctx, "user-1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if convID != first.ConversationID {
		t.Fatalf("conversation id mismatch: %s vs %s", convID, first.ConversationID)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[1].EmotionState == nil || history[1].EmotionState.Affection != 0.8 {
		t.Fatal("assistant emotion state not preserved")
	}
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	msg, err := svc.AppendUser(ctx, "user-1", "hello")
	if err != nil {
		t.Fatalf("AppendUser err: %v", err)
	}

	delivered, applied, err := svc.MarkDelivered(ctx, "user-1", msg.MessageID)
	if err != nil || !applied {
		t.Fatalf("MarkDelivered applied=%v err=%v", applied, err)
	}
	if delivered.Status != protocol.StatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("unexpected delivered state: %+v", delivered)
	}

	read, applied, err := svc.MarkRead(ctx, "user-1", msg.MessageID)
	if err != nil || !applied {
		t.Fatalf("MarkRead applied=%v err=%v", applied, err)
	}
	if read.Status != protocol.StatusRead || read.ReadAt == nil {
		t.Fatalf("unexpected read state: %+v", read)
	}

	// Delivery after read must not regress.
	after, applied, err := svc.MarkDelivered(ctx, "user-1", msg.MessageID)
	if err != nil {
		t.Fatalf("MarkDelivered err: %v", err)
	}
	if applied {
		t.Fatal("delivery receipt regressed a read message")
	}
	if after.Status != protocol.StatusRead {
		t.Fatalf("status regressed to %s", after.Status)
	}
}

func TestReadWithoutDeliverySetsBothTimestamps(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())
	ctx := context.Background()

	msg, err := svc.AppendUser(ctx, "user-1", "hello")
	if err != nil {
		t.Fatalf("AppendUser err: %v", err)
	}

	read, applied, err := svc.MarkRead(ctx, "user-1", msg.MessageID)
	if err != nil || !applied {
		t.Fatalf("MarkRead applied=%v err=%v", applied, err)
	}
	if read.DeliveredAt == nil || read.ReadAt == nil {
		t.Fatalf("expected both timestamps set, got %+v", read)
	}
}

func TestReceiptForUnknownMessageIsNoOp(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore())

	_, applied, err := svc.MarkRead(context.Background(), "user-1", "no-such-id")
	if err != nil {
		t.Fatalf("expected no error for unknown message, got %v", err)
	}
	if applied {
		t.Fatal("receipt for unknown message reported as applied")
	}
}
