package emotion

import (
	"context"
	"testing"

	"github.com/demi-app/demi/backend/pkg/protocol"
)

func TestClassifyFallsBackWithoutModel(t *testing.T) {
	svc, err := NewService(context.Background(), nil, Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	if svc.Enabled() {
		t.Fatal("service claims LLM path without a model")
	}

	state := svc.Classify(context.Background(), nil, "I'm so happy today", "That makes me happy too!")
	if state.Happiness == 0 {
		t.Fatal("fallback produced no happiness signal")
	}
}

func TestParseClassifierOutput(t *testing.T) {
	content := "Here you go:\n{\"happiness\": 0.8, \"affection\": 1.4, \"sadness\": -0.2}\nDone."
	state, err := parseClassifierOutput(content)
	if err != nil {
		t.Fatalf("parseClassifierOutput err: %v", err)
	}
	if state.Happiness != 0.8 {
		t.Fatalf("happiness: got %f", state.Happiness)
	}
	if state.Affection != 1 {
		t.Fatalf("affection not clamped: %f", state.Affection)
	}
	if state.Sadness != 0 {
		t.Fatalf("sadness not clamped: %f", state.Sadness)
	}
}

func TestParseClassifierOutputRejectsNonJSON(t *testing.T) {
	if _, err := parseClassifierOutput("the companion feels fine"); err == nil {
		t.Fatal("expected error for missing json object")
	}
}

func TestFormatHistoryWindowsTail(t *testing.T) {
	if got := formatHistory(nil, 6); got != "(no prior messages)" {
		t.Fatalf("unexpected empty-history format: %q", got)
	}

	messages := []protocol.Message{
		{Sender: protocol.SenderUser, Content: "one"},
		{Sender: protocol.SenderAssistant, Content: "two"},
		{Sender: protocol.SenderUser, Content: "three"},
	}
	got := formatHistory(messages, 2)
	want := "companion: two\nuser: three"
	if got != want {
		t.Fatalf("formatHistory: got %q want %q", got, want)
	}
}
