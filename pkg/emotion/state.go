// Package emotion defines the mood vector carried on companion messages.
package emotion

// Dimension names one axis of the mood vector.
type Dimension string

const (
	Happiness    Dimension = "happiness"
	Sadness      Dimension = "sadness"
	Anger        Dimension = "anger"
	Fear         Dimension = "fear"
	Surprise     Dimension = "surprise"
	Disgust      Dimension = "disgust"
	Trust        Dimension = "trust"
	Anticipation Dimension = "anticipation"
	Loneliness   Dimension = "loneliness"
	Excitement   Dimension = "excitement"
	Frustration  Dimension = "frustration"
	Affection    Dimension = "affection"
)

// Dimensions lists every axis in canonical order. Tie-breaks in Dominant
// resolve to the earlier entry, so the order is part of the contract.
var Dimensions = []Dimension{
	Happiness, Sadness, Anger, Fear, Surprise, Disgust,
	Trust, Anticipation, Loneliness, Excitement, Frustration, Affection,
}

// dominantExcluded holds axes that never win the dominant selection; they
// still travel on the wire and still influence the companion's tone.
var dominantExcluded = map[Dimension]bool{
	Disgust:      true,
	Frustration:  true,
	Anticipation: true,
}

// State is a snapshot of the companion's mood, each intensity in [0,1].
type State struct {
	Happiness    float64 `json:"happiness"`
	Sadness      float64 `json:"sadness"`
	Anger        float64 `json:"anger"`
	Fear         float64 `json:"fear"`
	Surprise     float64 `json:"surprise"`
	Disgust      float64 `json:"disgust"`
	Trust        float64 `json:"trust"`
	Anticipation float64 `json:"anticipation"`
	Loneliness   float64 `json:"loneliness"`
	Excitement   float64 `json:"excitement"`
	Frustration  float64 `json:"frustration"`
	Affection    float64 `json:"affection"`
}

// Get returns the intensity for the named dimension.
func (s State) Get(d Dimension) float64 {
	switch d {
	case Happiness:
		return s.Happiness
	case Sadness:
		return s.Sadness
	case Anger:
		return s.Anger
	case Fear:
		return s.Fear
	case Surprise:
		return s.Surprise
	case Disgust:
		return s.Disgust
	case Trust:
		return s.Trust
	case Anticipation:
		return s.Anticipation
	case Loneliness:
		return s.Loneliness
	case Excitement:
		return s.Excitement
	case Frustration:
		return s.Frustration
	case Affection:
		return s.Affection
	}
	return 0
}

// Set assigns the intensity for the named dimension without clamping.
func (s *State) Set(d Dimension, v float64) {
	switch d {
	case Happiness:
		s.Happiness = v
	case Sadness:
		s.Sadness = v
	case Anger:
		s.Anger = v
	case Fear:
		s.Fear = v
	case Surprise:
		s.Surprise = v
	case Disgust:
		s.Disgust = v
	case Trust:
		s.Trust = v
	case Anticipation:
		s.Anticipation = v
	case Loneliness:
		s.Loneliness = v
	case Excitement:
		s.Excitement = v
	case Frustration:
		s.Frustration = v
	case Affection:
		s.Affection = v
	}
}

// Clamp forces every intensity into [0,1].
func (s *State) Clamp() {
	for _, d := range Dimensions {
		v := s.Get(d)
		if v < 0 {
			s.Set(d, 0)
		} else if v > 1 {
			s.Set(d, 1)
		}
	}
}

// Dominant returns the strongest eligible dimension. Excluded axes never
// win; an exact tie goes to the dimension listed first in Dimensions.
func (s State) Dominant() Dimension {
	best := Dimension("")
	bestVal := -1.0
	for _, d := range Dimensions {
		if dominantExcluded[d] {
			continue
		}
		if v := s.Get(d); v > bestVal {
			best = d
			bestVal = v
		}
	}
	return best
}
