// Package emotion infers a mood vector from conversation text. It is the
// fallback path when no LLM classifier is configured.
package emotion

import (
	"strings"

	"github.com/demi-app/demi/backend/pkg/emotion"
)

var keywordBuckets = map[emotion.Dimension][]string{
	emotion.Happiness: {
		"happy", "glad", "joy", "wonderful", "great", "lovely", "delight",
		"smile", "haha", "yay", "thanks", "thank you", "awesome",
	},
	emotion.Sadness: {
		"sad", "unhappy", "cry", "tears", "miss you", "lost", "grief",
		"down", "blue", "heartbroken", "sorrow",
	},
	emotion.Anger: {
		"angry", "furious", "mad", "rage", "annoyed", "unfair", "hate",
	},
	emotion.Fear: {
		"afraid", "scared", "worried", "anxious", "nervous", "terrified",
		"panic", "dread",
	},
	emotion.Surprise: {
		"surprised", "unexpected", "wow", "no way", "really?", "unbelievable",
		"didn't expect",
	},
	emotion.Disgust: {
		"disgusting", "gross", "awful", "horrible", "can't stand",
	},
	emotion.Trust: {
		"trust", "believe in you", "count on", "safe with", "honest",
		"i'm here", "always here", "you can tell me",
	},
	emotion.Anticipation: {
		"can't wait", "looking forward", "soon", "excited for", "tomorrow",
		"next time", "planning",
	},
	emotion.Loneliness: {
		"lonely", "alone", "nobody", "no one", "isolated", "empty",
		"by myself",
	},
	emotion.Excitement: {
		"amazing", "incredible", "thrilled", "so cool", "let's go",
		"fantastic", "can't believe",
	},
	emotion.Frustration: {
		"frustrated", "stuck", "tired of", "again and again", "give up",
		"why won't", "ugh",
	},
	emotion.Affection: {
		"love", "dear", "sweet", "care about", "hold you", "hug", "close to",
		"warm", "tender", "cherish",
	},
}

// mirrors maps a user's strongest feeling to the dimensions a caring
// companion reflects back when its own reply carries no obvious affect.
var mirrors = map[emotion.Dimension][]emotion.Dimension{
	emotion.Sadness:    {emotion.Affection, emotion.Sadness},
	emotion.Loneliness: {emotion.Affection, emotion.Trust},
	emotion.Anger:      {emotion.Trust},
	emotion.Fear:       {emotion.Trust, emotion.Affection},
	emotion.Happiness:  {emotion.Happiness},
	emotion.Excitement: {emotion.Excitement, emotion.Happiness},
}

// FromText infers the companion's mood from its own reply, leaning on the
// user's utterance when the reply is emotionally flat. The result is
// clamped to [0,1] on every axis.
func FromText(userUtterance, assistantUtterance string) emotion.State {
	state := scoreText(assistantUtterance)
	if flat(state) {
		userState := scoreText(userUtterance)
		if strongest := strongestDimension(userState); strongest != "" {
			for _, d := range mirrors[strongest] {
				if state.Get(d) < 0.6 {
					state.Set(d, 0.6)
				}
			}
		}
	}

	// A companion is never emotionally blank toward its user.
	if state.Trust < 0.3 {
		state.Trust = 0.3
	}
	if state.Affection < 0.25 {
		state.Affection = 0.25
	}

	state.Clamp()
	return state
}

func scoreText(text string) emotion.State {
	var state emotion.State
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return state
	}

	for dim, keywords := range keywordBuckets {
		hits := 0
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				hits++
			}
		}
		if hits > 0 {
			state.Set(dim, 0.45+0.15*float64(hits-1))
		}
	}

	if exclaims := strings.Count(text, "!"); exclaims > 0 {
		state.Excitement += 0.1 * float64(exclaims)
		if state.Happiness > 0 {
			state.Happiness += 0.1
		}
	}

	state.Clamp()
	return state
}

func flat(s emotion.State) bool {
	for _, d := range emotion.Dimensions {
		if s.Get(d) > 0 {
			return false
		}
	}
	return true
}

func strongestDimension(s emotion.State) emotion.Dimension {
	best := emotion.Dimension("")
	bestVal := 0.0
	for _, d := range emotion.Dimensions {
		if v := s.Get(d); v > bestVal {
			best = d
			bestVal = v
		}
	}
	return best
}
