package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/wikiflash/internal/domain"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []domain.QA
	}{
		{
			name:     "Simple Q&A",
			input:    "Q: Who stormed the Bastille?\nA: Parisian revolutionaries",
			expected: []domain.QA{{Question: "Who stormed the Bastille?", Answer: "Parisian revolutionaries"}},
		},
		{
			name:     "Question, answer and context",
			input:    "Q: When did the Bastille fall?\nA: 14 July 1789\nC: French Revolution",
			expected: []domain.QA{{Question: "When did the Bastille fall?", Answer: "14 July 1789", Context: "French Revolution"}},
		},
		{
			name: "Multiline answer",
			input: `
Q: Name the three estates.
A: Clergy
Nobility
Commoners
`,
			expected: []domain.QA{{Question: "Name the three estates.", Answer: "Clergy\nNobility\nCommoners"}},
		},
		{
			name: "Two cards separated by a blank line",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expected: []domain.QA{
				{Question: "First question", Answer: "First answer"},
				{Question: "Second question", Answer: "Second answer"},
			},
		},
		{
			name:     "Separator ends a card",
			input:    "Q: One\nA: 1\n---\nstray notes\nQ: Two\nA: 2",
			expected: []domain.QA{{Question: "One", Answer: "1"}, {Question: "Two", Answer: "2"}},
		},
		{
			name:     "Question without answer is dropped",
			input:    "Q: Unanswered\n\nQ: Answered\nA: Yes",
			expected: []domain.QA{{Question: "Answered", Answer: "Yes"}},
		},
		{
			name:     "Prefixes with no space",
			input:    "Q:Question\nA:Answer",
			expected: []domain.QA{{Question: "Question", Answer: "Answer"}},
		},
		{
			name:  "No cards, just text",
			input: "This is a file with no questions.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cards)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\nQ: Capital of France?\nA: Paris\n"), 0o644))

	cards, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.QA{{Question: "Capital of France?", Answer: "Paris"}}, cards)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
