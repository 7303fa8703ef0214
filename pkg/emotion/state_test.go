package emotion

import "testing"

func TestDominantPicksStrongestDimension(t *testing.T) {
	s := State{Affection: 0.9, Happiness: 0.5}
	if got := s.Dominant(); got != Affection {
		t.Fatalf("expected affection, got %s", got)
	}
}

func TestDominantTieBreaksByOrder(t *testing.T) {
	s := State{Happiness: 0.7, Affection: 0.7}
	if got := s.Dominant(); got != Happiness {
		t.Fatalf("expected happiness on tie, got %s", got)
	}
}

func TestDominantSkipsExcludedDimensions(t *testing.T) {
	s := State{Disgust: 1, Frustration: 1, Anticipation: 1, Trust: 0.2}
	if got := s.Dominant(); got != Trust {
		t.Fatalf("expected trust, got %s", got)
	}
}

func TestClampBoundsIntensities(t *testing.T) {
	s := State{Happiness: 1.4, Sadness: -0.3, Anger: 0.5}
	s.Clamp()
	if s.Happiness != 1 {
		t.Fatalf("happiness not clamped: %f", s.Happiness)
	}
	if s.Sadness != 0 {
		t.Fatalf("sadness not clamped: %f", s.Sadness)
	}
	if s.Anger != 0.5 {
		t.Fatalf("anger changed by clamp: %f", s.Anger)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	var s State
	for i, d := range Dimensions {
		s.Set(d, float64(i)/20)
	}
	for i, d := range Dimensions {
		if got := s.Get(d); got != float64(i)/20 {
			t.Fatalf("dimension %s: got %f", d, got)
		}
	}
}
