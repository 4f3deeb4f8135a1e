package review

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basalt-app/basalt/internal/domain"
	"github.com/basalt-app/basalt/internal/storage"
	"github.com/basalt-app/basalt/internal/timeutil"
)

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected Command
		wantErr  bool
	}{
		{name: "rating", input: "4", expected: Command{Action: ActionRate, Score: 4}},
		{name: "rating with whitespace", input: "  5\n", expected: Command{Action: ActionRate, Score: 5}},
		{name: "rating of zero", input: "0", wantErr: true},
		{name: "rating above five", input: "6", wantErr: true},
		{name: "delete", input: "d", expected: Command{Action: ActionDelete}},
		{name: "delete uppercase", input: "D", expected: Command{Action: ActionDelete}},
		{name: "edit question", input: "e question What is Go?", expected: Command{Action: ActionEdit, Field: "question", Value: "What is Go?"}},
		{name: "edit other field", input: "e hint check the docs", expected: Command{Action: ActionEdit, Field: "hint", Value: "check the docs"}},
		{name: "edit without value", input: "e question", wantErr: true},
		{name: "move", input: "m Archive", expected: Command{Action: ActionMove, Folder: "Archive"}},
		{name: "move to folder with spaces in name", input: "m My Deck", expected: Command{Action: ActionMove, Folder: "My Deck"}},
		{name: "move without folder", input: "m ", wantErr: true},
		{name: "empty input", input: "", wantErr: true},
		{name: "gibberish", input: "xyzzy", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCommand(tc.input)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidCommand) {
					t.Fatalf("Expected ErrInvalidCommand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand failed: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %+v, got %+v", tc.expected, got)
			}
		})
	}
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "flashcards.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func dueCard(t *testing.T, db *storage.DB, question string) int64 {
	t.Helper()
	due := timeutil.Now().Add(-time.Hour)
	id, err := db.CreateFlashcard(domain.CardDraft{Question: question, Answer: "a", NextDue: &due}, nil)
	if err != nil {
		t.Fatalf("CreateFlashcard failed: %v", err)
	}
	return id
}

func TestRate(t *testing.T) {
	db := openTestDB(t)
	id := dueCard(t, db, "q")
	now := timeutil.Now()

	if err := Rate(db, id, 5, now); err != nil {
		t.Fatalf("Rate failed: %v", err)
	}

	card, err := db.GetCard(id)
	if err != nil {
		t.Fatalf("GetCard failed: %v", err)
	}
	if len(card.RepData.History) != 1 {
		t.Fatalf("Expected one history entry, got %d", len(card.RepData.History))
	}
	entry := card.RepData.History[0]
	if entry.Score != 5 || entry.At != timeutil.ToSQL(now) {
		t.Errorf("Unexpected history entry: %+v", entry)
	}

	// One perfect review lands on the second interval, six days out.
	want := now.Add(144 * time.Hour)
	if card.NextDue == nil || !card.NextDue.Equal(want) {
		t.Errorf("Expected next_due %v, got %v", want, card.NextDue)
	}

	t.Run("a lapse resets to the first interval", func(t *testing.T) {
		later := now.Add(144 * time.Hour)
		if err := Rate(db, id, 1, later); err != nil {
			t.Fatalf("Rate failed: %v", err)
		}
		card, err := db.GetCard(id)
		if err != nil {
			t.Fatalf("GetCard failed: %v", err)
		}
		if len(card.RepData.History) != 2 {
			t.Fatalf("Expected two history entries, got %d", len(card.RepData.History))
		}
		want := later.Add(24 * time.Hour)
		if card.NextDue == nil || !card.NextDue.Equal(want) {
			t.Errorf("Expected next_due %v, got %v", want, card.NextDue)
		}
	})
}

func TestRateMissingCard(t *testing.T) {
	db := openTestDB(t)
	if err := Rate(db, 999, 3, timeutil.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSessionRun(t *testing.T) {
	t.Run("no due cards ends immediately", func(t *testing.T) {
		db := openTestDB(t)
		var out bytes.Buffer
		s := &Session{DB: db, In: strings.NewReader(""), Out: &out}
		if err := s.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !strings.Contains(out.String(), "No due cards.") {
			t.Errorf("Expected the empty-inbox message, got %q", out.String())
		}
	})

	t.Run("rating works through the round", func(t *testing.T) {
		db := openTestDB(t)
		dueCard(t, db, "first")
		dueCard(t, db, "second")

		var out bytes.Buffer
		s := &Session{DB: db, In: strings.NewReader("5\n5\n"), Out: &out}
		if err := s.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		due, err := db.GetDueCards(timeutil.Now())
		if err != nil {
			t.Fatalf("GetDueCards failed: %v", err)
		}
		if len(due) != 0 {
			t.Errorf("Expected no cards left due, got %d", len(due))
		}
		if !strings.Contains(out.String(), "QUESTION: first") || !strings.Contains(out.String(), "QUESTION: second") {
			t.Errorf("Expected both cards presented, got %q", out.String())
		}
	})

	t.Run("bad input reprompts without consuming the card", func(t *testing.T) {
		db := openTestDB(t)
		id := dueCard(t, db, "q")

		var out bytes.Buffer
		s := &Session{DB: db, In: strings.NewReader("banana\n9\nd\n"), Out: &out}
		if err := s.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if _, err := db.GetCard(id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected the card deleted after reprompts, got %v", err)
		}
		if strings.Count(out.String(), "Error:") != 2 {
			t.Errorf("Expected two parse errors reported, got %q", out.String())
		}
	})

	t.Run("edit updates the card and moves on", func(t *testing.T) {
		db := openTestDB(t)
		id := dueCard(t, db, "old question")

		var out bytes.Buffer
		s := &Session{DB: db, In: strings.NewReader("e question new question\n"), Out: &out}
		if err := s.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		card, err := db.GetCard(id)
		if err != nil {
			t.Fatalf("GetCard failed: %v", err)
		}
		if card.Question != "new question" {
			t.Errorf("Expected the question edited, got %q", card.Question)
		}
		// An edit does not reschedule; the card stays due, so the next round
		// presents it again. The reader then hits EOF, which ends the session.
		if card.NextDue == nil {
			t.Error("Expected next_due untouched by the edit")
		}
	})

	t.Run("move changes the folder", func(t *testing.T) {
		db := openTestDB(t)
		folderID, err := db.CreateFolder("Archive")
		if err != nil {
			t.Fatalf("CreateFolder failed: %v", err)
		}
		id := dueCard(t, db, "q")

		var out bytes.Buffer
		s := &Session{DB: db, In: strings.NewReader("m Archive\n"), Out: &out}
		if err := s.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		card, err := db.GetCard(id)
		if err != nil {
			t.Fatalf("GetCard failed: %v", err)
		}
		if card.FolderID != folderID {
			t.Errorf("Expected card in folder %d, got %d", folderID, card.FolderID)
		}
	})

	t.Run("move reaches folders with spaces in the name", func(t *testing.T) {
		db := openTestDB(t)
		folderID, err := db.CreateFolder("Study Notes")
		if err != nil {
			t.Fatalf("CreateFolder failed: %v", err)
		}
		id := dueCard(t, db, "q")

		var out bytes.Buffer
		s := &Session{DB: db, In: strings.NewReader("m Study Notes\n"), Out: &out}
		if err := s.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		card, err := db.GetCard(id)
		if err != nil {
			t.Fatalf("GetCard failed: %v", err)
		}
		if card.FolderID != folderID {
			t.Errorf("Expected card in folder %d, got %d", folderID, card.FolderID)
		}
	})

	t.Run("move to a missing folder reprompts", func(t *testing.T) {
		db := openTestDB(t)
		id := dueCard(t, db, "q")

		var out bytes.Buffer
		s := &Session{DB: db, In: strings.NewReader("m Nowhere\nd\n"), Out: &out}
		if err := s.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if _, err := db.GetCard(id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected the card deleted on the second try, got %v", err)
		}
		if !strings.Contains(out.String(), "Error:") {
			t.Errorf("Expected the failed move reported, got %q", out.String())
		}
	})
}
