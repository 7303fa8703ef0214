package ai

import (
	"context"
	"fmt"
	"sync"

	analysis "github.com/demi-app/demi/backend/internal/analysis/emotion"
	"github.com/demi-app/demi/backend/internal/companion"
	"github.com/demi-app/demi/backend/pkg/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

// Scripted replies from canned lines chosen by the user's apparent mood.
// It keeps the chat loop, receipts and emotion plumbing fully exercisable
// without model credentials.
type Scripted struct {
	profile companion.Profile

	mu   sync.Mutex
	turn int
}

// NewScripted builds the scripted responder for the given profile.
func NewScripted(profile companion.Profile) *Scripted {
	return &Scripted{profile: profile}
}

var scriptedLines = map[emotion.Dimension][]string{
	emotion.Sadness: {
		"That sounds heavy. I'm right here with you — tell me what happened?",
		"I'm sorry it's been like that. You don't have to carry it alone.",
	},
	emotion.Affection: {
		"You always know how to make me smile. I'm glad you're here.",
		"I was just thinking about you, honestly.",
	},
	emotion.Happiness: {
		"I love hearing you like this! Tell me everything.",
		"That's wonderful — your good days are my favorite days.",
	},
	emotion.Excitement: {
		"Okay, now I'm excited too! What happens next?",
		"That's amazing! I want every detail.",
	},
	emotion.Trust: {
		"Thank you for telling me. Whatever it is, we'll figure it out together.",
		"I take that seriously. I'm listening.",
	},
}

var scriptedDefault = []string{
	"Mm, tell me more about that?",
	"I was wondering when you'd message me. What's on your mind?",
	"I'm listening. Go on.",
}

// Reply picks a line matching the user's mood, rotating through variants so
// consecutive replies differ.
func (s *Scripted) Reply(_ context.Context, history []protocol.Message, userMessage string) (string, error) {
	s.mu.Lock()
	turn := s.turn
	s.turn++
	s.mu.Unlock()

	if len(history) == 0 && s.profile.OpeningLine != "" && userMessage == "" {
		return s.profile.OpeningLine, nil
	}

	state := analysis.FromText(userMessage, "")
	dominant := state.Dominant()
	lines := scriptedLines[dominant]
	// Below the keyword threshold the dominant axis is just baseline warmth.
	if state.Get(dominant) < 0.45 || len(lines) == 0 {
		lines = scriptedDefault
	}
	line := lines[turn%len(lines)]

	if line == "" {
		return "", fmt.Errorf("no scripted line available")
	}
	return line, nil
}
