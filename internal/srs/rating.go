package srs

import "fmt"

// Rating is the five-level vocabulary shown to users instead of raw quality grades.
type Rating string

const (
	VeryHard Rating = "very_hard"
	Hard     Rating = "hard"
	Good     Rating = "good"
	Easy     Rating = "easy"
	TooEasy  Rating = "too_easy"
)

// Ratings lists every rating from hardest to easiest.
var Ratings = []Rating{VeryHard, Hard, Good, Easy, TooEasy}

// Easy and TooEasy both mean perfect recall and share grade 5, so the
// five user levels collapse to four distinct scheduler inputs.
var qualityByRating = map[Rating]Quality{
	VeryHard: 2, // failure band: incorrect, but the answer was recognisable
	Hard:     3,
	Good:     4,
	Easy:     5,
	TooEasy:  5,
}

// ToQuality maps a rating onto the SM-2 quality scale.
func ToQuality(r Rating) (Quality, error) {
	q, ok := qualityByRating[r]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRating, string(r))
	}
	return q, nil
}

// ParseRating validates s as a rating name.
func ParseRating(s string) (Rating, error) {
	r := Rating(s)
	if _, ok := qualityByRating[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRating, s)
	}
	return r, nil
}

func (r Rating) String() string { return string(r) }

// UnmarshalText implements encoding.TextUnmarshaler so unknown ratings are
// rejected while decoding request bodies.
func (r *Rating) UnmarshalText(text []byte) error {
	parsed, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
