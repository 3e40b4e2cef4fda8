// Package srs implements the SM-2 spaced repetition scheduler and the mapping
// from user-facing ratings onto its 0-5 quality scale.
package srs

import (
	"fmt"
	"math"

	"github.com/conorfennell/wikiflash/internal/domain"
)

// Quality is SM-2's recall grade: 0 is a total blackout, 5 is perfect recall.
type Quality int

const (
	MinQuality     Quality = 0
	MaxQuality     Quality = 5
	PassingQuality Quality = 3 // lowest grade that counts as a successful recall
)

const (
	firstInterval  = 1 // days after the first success, and after any lapse
	secondInterval = 6 // days after the second consecutive success
)

// Valid reports whether q lies on the 0-5 scale.
func (q Quality) Valid() bool {
	return q >= MinQuality && q <= MaxQuality
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= PassingQuality
}

// Advance computes the schedule that follows a review graded q on the given day.
// It is a pure function: the caller supplies today and persists the result.
func Advance(s domain.CardSchedule, q Quality, today domain.Date) (domain.CardSchedule, error) {
	if !q.Valid() {
		return domain.CardSchedule{}, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}

	if !q.Passed() {
		// Lapse: relearn from tomorrow, ease factor untouched.
		return domain.CardSchedule{
			EaseFactor:  s.EaseFactor,
			Interval:    firstInterval,
			Repetitions: 0,
			NextReview:  today.AddDays(firstInterval),
		}, nil
	}

	ef := NextEaseFactor(s.EaseFactor, q)

	var interval int
	switch s.Repetitions {
	case 0:
		interval = firstInterval
	case 1:
		interval = secondInterval
	default:
		// Uses the updated ease factor, not the prior one.
		interval = int(math.Round(float64(s.Interval) * ef))
	}

	return domain.CardSchedule{
		EaseFactor:  ef,
		Interval:    interval,
		Repetitions: s.Repetitions + 1,
		NextReview:  today.AddDays(interval),
	}, nil
}

// NextEaseFactor applies the classical SM-2 ease update for a passing grade:
// EF' = max(1.3, EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02))).
func NextEaseFactor(ef float64, q Quality) float64 {
	miss := float64(MaxQuality - q)
	return math.Max(domain.MinEaseFactor, ef+(0.1-miss*(0.08+miss*0.02)))
}
