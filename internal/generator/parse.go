package generator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/conorfennell/wikiflash/internal/domain"
)

var (
	openingFence = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	closingFence = regexp.MustCompile("\\s*```$")
	jsonArray    = regexp.MustCompile(`(?s)\[.*\]`)
)

// parseCards extracts question/answer pairs from a model reply. It accepts a
// bare array, an object holding the array under "flashcards", "cards" or any
// other key, and text with an array embedded in it. Incomplete entries are
// dropped and the result is trimmed to count.
func parseCards(reply string, count int) ([]domain.QA, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = openingFence.ReplaceAllString(cleaned, "")
	cleaned = closingFence.ReplaceAllString(cleaned, "")

	var data any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		match := jsonArray.FindString(cleaned)
		if match == "" {
			return nil, fmt.Errorf("%w: no JSON found", ErrInvalidResponse)
		}
		if err := json.Unmarshal([]byte(match), &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	items, err := cardArray(data)
	if err != nil {
		return nil, err
	}

	var cards []domain.QA
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q, qok := m["question"].(string)
		a, aok := m["answer"].(string)
		q, a = strings.TrimSpace(q), strings.TrimSpace(a)
		if !qok || !aok || q == "" || a == "" {
			continue
		}
		cards = append(cards, domain.QA{Question: q, Answer: a})
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: no valid flashcards", ErrInvalidResponse)
	}
	if len(cards) > count {
		cards = cards[:count]
	}
	return cards, nil
}

func cardArray(data any) ([]any, error) {
	switch v := data.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range []string{"flashcards", "cards"} {
			if arr, ok := v[key].([]any); ok {
				return arr, nil
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr, ok := v[k].([]any); ok {
				return arr, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: expected an array of flashcards", ErrInvalidResponse)
}
