package session

import "github.com/conorfennell/wikiflash/internal/srs"

// Tally counts the ratings given during one session.
type Tally struct {
	VeryHard int `json:"very_hard"`
	Hard     int `json:"hard"`
	Good     int `json:"good"`
	Easy     int `json:"easy"`
	TooEasy  int `json:"too_easy"`
}

func (t *Tally) add(r srs.Rating) {
	switch r {
	case srs.VeryHard:
		t.VeryHard++
	case srs.Hard:
		t.Hard++
	case srs.Good:
		t.Good++
	case srs.Easy:
		t.Easy++
	case srs.TooEasy:
		t.TooEasy++
	}
}

// Total is the number of ratings recorded.
func (t Tally) Total() int {
	return t.VeryHard + t.Hard + t.Good + t.Easy + t.TooEasy
}

// Accuracy is the share of ratings of good or better, in [0, 1].
// It is zero when nothing was rated.
func (t Tally) Accuracy() float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return float64(t.Good+t.Easy+t.TooEasy) / float64(total)
}
