// Package deck imports flashcard decks written as markdown files. A deck
// file is a sequence of cards in Q:/A:/C: form:
//
//	Q: question text (may continue on following lines)
//	A: answer text
//	C: optional context
//
// "---" separates cards; a new Q: also starts a new card. Imports come from
// a local directory or a git remote and land in the store as one batch.
package deck

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Card is one parsed deck entry.
type Card struct {
	Question string
	Answer   string
	Context  string
}

type section int

const (
	seeking section = iota
	inQuestion
	inAnswer
	inContext
)

// ParseFile reads one deck file.
func ParseFile(path string) ([]Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse extracts all cards from a deck. Cards without a question are
// dropped; unmarked leading text is ignored.
func Parse(r io.Reader) ([]Card, error) {
	var (
		cards   []Card
		current Card
		block   []string
		state   = seeking
	)

	closeBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch state {
		case inQuestion:
			current.Question = content
		case inAnswer:
			current.Answer = content
		case inContext:
			current.Context = content
		}
		block = nil
	}

	closeCard := func() {
		closeBlock()
		if current.Question != "" {
			cards = append(cards, current)
		}
		current = Card{}
		state = seeking
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			closeCard()
			continue
		}

		marker, rest := splitMarker(line)
		switch marker {
		case seeking: // no marker: continuation of the current block
			if state != seeking {
				block = append(block, line)
			}
		case inQuestion:
			if state != seeking {
				closeCard()
			} else {
				closeBlock()
			}
			state = inQuestion
			block = append(block, rest)
		default:
			closeBlock()
			state = marker
			block = append(block, rest)
		}
	}
	closeCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

func splitMarker(line string) (section, string) {
	for prefix, sec := range map[string]section{
		"Q:": inQuestion,
		"A:": inAnswer,
		"C:": inContext,
	} {
		if strings.HasPrefix(line, prefix) {
			return sec, strings.TrimPrefix(strings.TrimPrefix(line, prefix), " ")
		}
	}
	return seeking, ""
}
