package emotion

import (
	"testing"

	"github.com/demi-app/demi/backend/pkg/emotion"
)

func TestFromTextHappyReply(t *testing.T) {
	state := FromText("we did it", "I'm so happy for you, that's wonderful!")
	if state.Happiness == 0 {
		t.Fatal("expected happiness to score above zero")
	}
	if got := state.Dominant(); got != emotion.Happiness {
		t.Fatalf("expected happiness dominant, got %s", got)
	}
}

func TestFromTextMirrorsSadUser(t *testing.T) {
	state := FromText("I feel so sad and alone today", "Tell me more about it.")
	if state.Affection < 0.6 {
		t.Fatalf("expected affection mirror for a sad user, got %f", state.Affection)
	}
}

func TestFromTextBaselineWarmth(t *testing.T) {
	state := FromText("", "")
	if state.Trust < 0.3 || state.Affection < 0.25 {
		t.Fatalf("expected baseline warmth, got trust=%f affection=%f", state.Trust, state.Affection)
	}
}

func TestFromTextStaysInRange(t *testing.T) {
	state := FromText(
		"amazing incredible thrilled so cool let's go fantastic!!!",
		"amazing incredible thrilled so cool let's go fantastic can't believe!!!!!",
	)
	for _, d := range emotion.Dimensions {
		if v := state.Get(d); v < 0 || v > 1 {
			t.Fatalf("dimension %s out of range: %f", d, v)
		}
	}
}
