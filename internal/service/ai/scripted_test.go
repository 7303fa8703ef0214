package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/demi-app/demi/backend/internal/companion"
)

func TestScriptedReplyNeverEmpty(t *testing.T) {
	responder := NewScripted(companion.Default())

	for _, msg := range []string{"hello", "I feel so sad today", "this is amazing!", "whatever"} {
		reply, err := responder.Reply(context.Background(), nil, msg)
		if err != nil {
			t.Fatalf("Reply(%q) err: %v", msg, err)
		}
		if strings.TrimSpace(reply) == "" {
			t.Fatalf("Reply(%q) returned empty line", msg)
		}
	}
}

func TestScriptedReplyRotatesVariants(t *testing.T) {
	responder := NewScripted(companion.Default())
	ctx := context.Background()

	first, err := responder.Reply(ctx, nil, "just checking in")
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	second, err := responder.Reply(ctx, nil, "just checking in")
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	if first == second {
		t.Fatal("expected consecutive replies to rotate")
	}
}

func TestScriptedReplyMatchesSadMood(t *testing.T) {
	responder := NewScripted(companion.Default())

	reply, err := responder.Reply(context.Background(), nil, "I'm so sad and heartbroken")
	if err != nil {
		t.Fatalf("Reply err: %v", err)
	}
	found := false
	for _, line := range scriptedLines["sadness"] {
		if reply == line {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a comfort line, got %q", reply)
	}
}
