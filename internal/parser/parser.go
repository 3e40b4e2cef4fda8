// Package parser extracts question/answer pairs from markdown notes.
//
// A card starts at a line beginning with "Q:", its answer at "A:" and an
// optional context at "C:". Lines that follow a prefix belong to the same
// field until the next prefix, a "---" separator or the next question.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/wikiflash/internal/domain"
)

const separator = "---"

type field int

const (
	none field = iota
	question
	answer
	contextField
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", question},
	{"A:", answer},
	{"C:", contextField},
}

// ParseFile reads the markdown file at path and extracts all cards.
func ParseFile(path string) ([]domain.QA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cards, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cards, nil
}

type cardBuilder struct {
	cards   []domain.QA
	current domain.QA
	field   field
	lines   []string
}

// flushField stores the buffered lines into the field being read.
func (b *cardBuilder) flushField() {
	content := strings.TrimSpace(strings.Join(b.lines, "\n"))
	switch b.field {
	case question:
		b.current.Question = content
	case answer:
		b.current.Answer = content
	case contextField:
		b.current.Context = content
	}
	b.lines = nil
}

// finishCard keeps the current card if it has both sides and resets state.
func (b *cardBuilder) finishCard() {
	b.flushField()
	if b.current.Question != "" && b.current.Answer != "" {
		b.cards = append(b.cards, b.current)
	}
	b.current = domain.QA{}
	b.field = none
}

func (b *cardBuilder) start(f field, rest string) {
	if f == question && b.field != none {
		b.finishCard()
	} else {
		b.flushField()
	}
	b.field = f
	b.lines = append(b.lines, strings.TrimPrefix(rest, " "))
}

// Parse reads markdown from r and extracts all complete cards. Cards
// without an answer are dropped.
func Parse(r io.Reader) ([]domain.QA, error) {
	scanner := bufio.NewScanner(r)
	var b cardBuilder

lines:
	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			b.finishCard()
			continue
		}

		for _, p := range prefixes {
			if rest, ok := strings.CutPrefix(line, p.prefix); ok {
				b.start(p.field, rest)
				continue lines
			}
		}

		if b.field != none {
			b.lines = append(b.lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	b.finishCard()
	return b.cards, nil
}
