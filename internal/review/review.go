// Package review drives an interactive session over the due cards: present,
// read a command, and rate, delete, edit, or move the current card. Parse
// errors reprompt in place without consuming the card or advancing the
// round.
package review

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/basalt-app/basalt/internal/domain"
	"github.com/basalt-app/basalt/internal/sm2"
	"github.com/basalt-app/basalt/internal/storage"
	"github.com/basalt-app/basalt/internal/timeutil"
)

// Action is what a parsed command does to the current card.
type Action int

const (
	ActionRate Action = iota
	ActionDelete
	ActionEdit
	ActionMove
)

// Command is one parsed review instruction.
type Command struct {
	Action Action
	Score  int    // rate
	Field  string // edit
	Value  string // edit
	Folder string // move
}

// ParseCommand parses the review grammar (case-insensitive):
//
//	1-5                 rate the card
//	d                   delete the card
//	e <field> <value>   edit question, answer, or an other_data key
//	m <folder>          move the card to the named folder
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Command{}, fmt.Errorf("%w: empty input", domain.ErrInvalidCommand)
	}

	if score, err := strconv.Atoi(s); err == nil {
		if score < 1 || score > 5 {
			return Command{}, fmt.Errorf("%w: rating must be 1-5", domain.ErrInvalidCommand)
		}
		return Command{Action: ActionRate, Score: score}, nil
	}

	lower := strings.ToLower(s)
	switch {
	case lower == "d":
		return Command{Action: ActionDelete}, nil

	case strings.HasPrefix(lower, "e "):
		rest := strings.TrimSpace(s[2:])
		field, value, found := strings.Cut(rest, " ")
		if !found || field == "" || strings.TrimSpace(value) == "" {
			return Command{}, fmt.Errorf("%w: usage: e <field> <new value>", domain.ErrInvalidCommand)
		}
		return Command{Action: ActionEdit, Field: strings.ToLower(field), Value: value}, nil

	case strings.HasPrefix(lower, "m "):
		// Everything after the marker is the folder name; names may contain
		// spaces.
		folder := strings.TrimSpace(s[2:])
		if folder == "" {
			return Command{}, fmt.Errorf("%w: usage: m <folder>", domain.ErrInvalidCommand)
		}
		return Command{Action: ActionMove, Folder: folder}, nil
	}

	return Command{}, fmt.Errorf("%w: %q", domain.ErrInvalidCommand, s)
}

// Session reviews due cards read from the store, with commands read from In
// and prompts written to Out.
type Session struct {
	DB  *storage.DB
	In  io.Reader
	Out io.Writer
}

// Run works through rounds of due cards until none remain. Each round pulls
// the due list once; a card that is rated, deleted, edited, or moved leaves
// the round and is not re-fetched until the next one.
func (s *Session) Run() error {
	reader := bufio.NewReader(s.In)

	for {
		due, err := s.DB.GetDueCards(timeutil.Now())
		if err != nil {
			return err
		}
		if len(due) == 0 {
			fmt.Fprintln(s.Out, "No due cards.")
			return nil
		}

		for i, card := range due {
			if err := s.reviewCard(reader, card, len(due)-i-1); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	}
}

func (s *Session) reviewCard(reader *bufio.Reader, card *domain.Flashcard, remaining int) error {
	folder, err := s.DB.GetFolder(card.FolderID)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.Out, "folder: %s | inbox: %d remaining\n", folder.Name, remaining)
	fmt.Fprintf(s.Out, "QUESTION: %s\n", card.Question)
	fmt.Fprintf(s.Out, "ANSWER:   %s\n", card.Answer)
	if len(card.OtherData) > 0 {
		fmt.Fprintf(s.Out, "%v\n", card.OtherData)
	}

	for {
		fmt.Fprint(s.Out, "> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return err
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			fmt.Fprintf(s.Out, "Error: %v\n", err)
			continue
		}

		if err := s.apply(card, cmd); err != nil {
			fmt.Fprintf(s.Out, "Error: %v\n", err)
			continue
		}
		return nil
	}
}

func (s *Session) apply(card *domain.Flashcard, cmd Command) error {
	switch cmd.Action {
	case ActionRate:
		return Rate(s.DB, card.ID, cmd.Score, timeutil.Now())

	case ActionDelete:
		return s.DB.DeleteFlashcard(card.ID)

	case ActionEdit:
		if cmd.Field == "question" || cmd.Field == "answer" {
			return s.DB.UpdateFlashcardFields(card.ID, map[string]any{cmd.Field: cmd.Value})
		}
		other := card.OtherData
		if other == nil {
			other = make(map[string]any)
		}
		other[cmd.Field] = cmd.Value
		return s.DB.UpdateFlashcardFields(card.ID, map[string]any{"other_data": other})

	case ActionMove:
		folderID, err := s.DB.GetFolderIDFromName(cmd.Folder)
		if err != nil {
			return err
		}
		if err := s.DB.UpdateFlashcardFields(card.ID, map[string]any{"folder_id": folderID}); err != nil {
			return err
		}
		fmt.Fprintf(s.Out, "Flashcard moved to %s.\n", cmd.Folder)
		return nil
	}
	return fmt.Errorf("%w: unknown action", domain.ErrInvalidCommand)
}

// Rate appends a scored review to the card's history, then reschedules it:
// the effective folder settings pick the algorithm, the algorithm computes
// the next interval, and next_due moves accordingly.
func Rate(db *storage.DB, cardID int64, score int, now time.Time) error {
	card, err := db.GetCard(cardID)
	if err != nil {
		return err
	}

	history := append(card.RepData.History, domain.ReviewEntry{
		Score: score,
		At:    timeutil.ToSQL(now),
	})
	if err := db.UpdateFlashcardFields(cardID, map[string]any{
		"rep_data": domain.RepData{History: history},
	}); err != nil {
		return err
	}

	settings, err := db.GetFolderSettings(card.FolderID)
	if err != nil {
		return err
	}
	if settings.Algorithm != sm2.Algorithm {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, settings.Algorithm)
	}
	params, err := sm2.DecodeSettings(settings.SM2Settings)
	if err != nil {
		return err
	}
	hours, err := sm2.NextInterval(history, params)
	if err != nil {
		return err
	}

	nextDue := now.Add(time.Duration(hours * float64(time.Hour)))
	return db.UpdateFlashcardFields(cardID, map[string]any{"next_due": nextDue})
}
