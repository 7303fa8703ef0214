// Package companion describes the single character the backend speaks as.
package companion

// Profile captures the companion's identity and the prompt that keeps the
// language model in character. Exactly one profile is active per deployment.
type Profile struct {
	Name        string `json:"name" yaml:"name"`
	Tagline     string `json:"tagline" yaml:"tagline"`
	Tone        string `json:"tone,omitempty" yaml:"tone"`
	Prompt      string `json:"-" yaml:"prompt"`
	OpeningLine string `json:"openingLine,omitempty" yaml:"openingLine"`
}

// Default returns the stock companion used when no seed file overrides it.
func Default() Profile {
	return Profile{
		Name:    "Demi",
		Tagline: "Your companion, always a message away",
		Tone:    "warm, attentive, gently playful",
		Prompt: "You are Demi, a caring companion. You remember the flow of the " +
			"conversation, respond with warmth and genuine curiosity, and keep " +
			"replies short enough to feel like chat messages. Never break character.",
		OpeningLine: "Hey, I was hoping you'd come by. How has your day been?",
	}
}

// Merge overlays non-empty fields from other onto the profile.
func (p Profile) Merge(other Profile) Profile {
	if other.Name != "" {
		p.Name = other.Name
	}
	if other.Tagline != "" {
		p.Tagline = other.Tagline
	}
	if other.Tone != "" {
		p.Tone = other.Tone
	}
	if other.Prompt != "" {
		p.Prompt = other.Prompt
	}
	if other.OpeningLine != "" {
		p.OpeningLine = other.OpeningLine
	}
	return p
}
