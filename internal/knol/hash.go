// Package knol derives stable content hashes for flashcards so that the same
// question/answer pair is stored at most once per deck.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/wikiflash/internal/domain"
)

// Normalize joins the card's question and answer after cleaning each part.
// Case, surrounding whitespace, inner whitespace runs and line endings are
// ignored. Context is not part of a card's identity.
func Normalize(card domain.QA) string {
	clean := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return strings.Join(strings.Fields(p), " ")
	}

	// Newline-separated so "ab"+"c" and "a"+"bc" stay distinct.
	return clean(card.Question) + "\n" + clean(card.Answer)
}

// Hash takes a card, normalizes it, and returns its SHA-256 hash as a hex string.
func Hash(card domain.QA) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
