package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/demi-app/demi/backend/pkg/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "demi.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureConversationIsStablePerUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureConversation err: %v", err)
	}
	second, err := store.EnsureConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureConversation err: %v", err)
	}
	if first != second {
		t.Fatalf("conversation id changed: %s vs %s", first, second)
	}

	other, err := store.EnsureConversation(ctx, "user-2")
	if err != nil {
		t.Fatalf("EnsureConversation err: %v", err)
	}
	if other == first {
		t.Fatal("distinct users share a conversation")
	}
}

func TestAppendAndHistoryRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	convID, err := store.EnsureConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureConversation err: %v", err)
	}

	state := &emotion.State{Affection: 0.9, Happiness: 0.5}
	msgs := []protocol.Message{
		{
			MessageID:      uuid.NewString(),
			ConversationID: convID,
			Sender:         protocol.SenderUser,
			Content:        "hello",
			Status:         protocol.StatusSent,
			CreatedAt:      time.Now().UTC(),
		},
		{
			MessageID:      uuid.NewString(),
			ConversationID: convID,
			Sender:         protocol.SenderAssistant,
			Content:        "hello back",
			EmotionState:   state,
			Status:         protocol.StatusSent,
			CreatedAt:      time.Now().UTC(),
		},
	}
	for _, msg := range msgs {
		if err := store.Append(ctx, msg); err != nil {
			t.Fatalf("Append err: %v", err)
		}
	}

	history, err := store.History(ctx, convID)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hello back" {
		t.Fatal("history out of order")
	}
	if history[1].EmotionState == nil || history[1].EmotionState.Affection != 0.9 {
		t.Fatalf("emotion state lost in round trip: %+v", history[1].EmotionState)
	}
	if history[0].EmotionState != nil {
		t.Fatal("user message grew an emotion state")
	}
}

func TestUpdatePersistsStatusAndTimestamps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	convID, err := store.EnsureConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureConversation err: %v", err)
	}

	msg := protocol.Message{
		MessageID:      uuid.NewString(),
		ConversationID: convID,
		Sender:         protocol.SenderUser,
		Content:        "hello",
		Status:         protocol.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}
	if err := store.Append(ctx, msg); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	now := time.Now().UTC()
	msg.Status = protocol.StatusRead
	msg.DeliveredAt = &now
	msg.ReadAt = &now
	if err := store.Update(ctx, msg); err != nil {
		t.Fatalf("Update err: %v", err)
	}

	got, ok, err := store.Get(ctx, convID, msg.MessageID)
	if err != nil || !ok {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}
	if got.Status != protocol.StatusRead || got.DeliveredAt == nil || got.ReadAt == nil {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestGetUnknownMessage(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get(context.Background(), "conv", "missing")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if ok {
		t.Fatal("expected missing message")
	}
}
