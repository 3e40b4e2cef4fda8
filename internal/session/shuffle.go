package session

import (
	"math/rand/v2"

	"github.com/conorfennell/wikiflash/internal/domain"
)

// shuffle permutes cards in place with a Fisher-Yates shuffle, uniform over
// all orderings. Only never-studied cards may go through it.
func shuffle(cards []domain.Flashcard, intn func(n int) int) {
	for i := len(cards) - 1; i > 0; i-- {
		j := intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

func randomShuffle(cards []domain.Flashcard) {
	shuffle(cards, rand.IntN)
}
