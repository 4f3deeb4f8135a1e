package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basalt-app/basalt/internal/config"
	"github.com/basalt-app/basalt/internal/domain"
	"github.com/basalt-app/basalt/internal/llm"
	"github.com/basalt-app/basalt/internal/storage"
	"github.com/basalt-app/basalt/internal/timeutil"
)

// fakeGenerator returns a canned response and counts how often it is called.
type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, instruction, content string, cfg llm.ProviderConfig) (string, error) {
	f.calls++
	return f.response, f.err
}

func testSnapshot(t *testing.T) config.Snapshot {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg.Snapshot()
}

func TestValidateFlags(t *testing.T) {
	commands := map[string]string{"n": "Please generate {} flashcards.", "c": "Include detailed explanations."}

	if err := ValidateFlags(map[string]string{"n": "5", "c": ""}, commands); err != nil {
		t.Errorf("Expected known flags to pass, got %v", err)
	}
	if err := ValidateFlags(nil, commands); err != nil {
		t.Errorf("Expected no flags to pass, got %v", err)
	}

	err := ValidateFlags(map[string]string{"z": "", "a": "", "n": "3"}, commands)
	if !errors.Is(err, domain.ErrUnrecognizedOption) {
		t.Fatalf("Expected ErrUnrecognizedOption, got %v", err)
	}
	// Every offender is named, in sorted order.
	if !strings.Contains(err.Error(), "a, z") {
		t.Errorf("Expected the error to list all unknown flags sorted, got %q", err.Error())
	}
}

func TestResolveSource(t *testing.T) {
	t.Run("raw returns the content verbatim", func(t *testing.T) {
		got, err := ResolveSource(SourceRaw, "some text")
		if err != nil {
			t.Fatalf("ResolveSource failed: %v", err)
		}
		if got != "some text" {
			t.Errorf("Expected content back, got %q", got)
		}
	})

	t.Run("raw with blank content is an empty source", func(t *testing.T) {
		if _, err := ResolveSource(SourceRaw, "   "); !errors.Is(err, domain.ErrEmptySource) {
			t.Errorf("Expected ErrEmptySource, got %v", err)
		}
	})

	t.Run("file reads from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "note.txt")
		if err := os.WriteFile(path, []byte("file text"), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := ResolveSource(SourceFile, path)
		if err != nil {
			t.Fatalf("ResolveSource failed: %v", err)
		}
		if got != "file text" {
			t.Errorf("Expected file contents, got %q", got)
		}
	})

	t.Run("missing file is not found", func(t *testing.T) {
		_, err := ResolveSource(SourceFile, filepath.Join(t.TempDir(), "nope.txt"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		if _, err := ResolveSource(SourceKind("telepathy"), "x"); err == nil {
			t.Error("Expected an error for an unknown source kind")
		}
	})
}

func TestBuildInstruction(t *testing.T) {
	commands := map[string]string{
		"n": "Please generate {} flashcards.",
		"c": "Include detailed explanations.",
	}

	t.Run("bare instruction is just the template", func(t *testing.T) {
		got := BuildInstruction("", commands, nil)
		if !strings.HasPrefix(got, "You are a flashcard generator") {
			t.Errorf("Expected the template, got %q", got)
		}
		if strings.Contains(got, "custom instructions") {
			t.Error("Expected no custom-instruction section without prompt or flags")
		}
	})

	t.Run("valued flag substitutes the placeholder", func(t *testing.T) {
		got := BuildInstruction("", commands, map[string]string{"n": "7"})
		if !strings.Contains(got, "Please generate 7 flashcards.") {
			t.Errorf("Expected the placeholder replaced, got %q", got)
		}
	})

	t.Run("bare flag inserts its command verbatim", func(t *testing.T) {
		got := BuildInstruction("", commands, map[string]string{"c": ""})
		if !strings.Contains(got, "Include detailed explanations.") {
			t.Errorf("Expected the command text, got %q", got)
		}
	})

	t.Run("custom prompt precedes flag expansions", func(t *testing.T) {
		got := BuildInstruction("Prefer terse answers.", commands, map[string]string{"n": "3"})
		promptAt := strings.Index(got, "Prefer terse answers.")
		flagAt := strings.Index(got, "Please generate 3 flashcards.")
		if promptAt == -1 || flagAt == -1 || promptAt > flagAt {
			t.Errorf("Expected prompt before flags, got %q", got)
		}
	})
}

func TestExtractCards(t *testing.T) {
	t.Run("decodes a plain array", func(t *testing.T) {
		drafts, err := ExtractCards(`[{"question":"q1","answer":"a1"},{"question":"q2","answer":"a2","hint":"h"}]`)
		if err != nil {
			t.Fatalf("ExtractCards failed: %v", err)
		}
		if len(drafts) != 2 {
			t.Fatalf("Expected 2 drafts, got %d", len(drafts))
		}
		if drafts[1].Other["hint"] != "h" {
			t.Errorf("Expected extra fields in Other, got %v", drafts[1].Other)
		}
	})

	t.Run("strips prose around the array", func(t *testing.T) {
		drafts, err := ExtractCards("Here you go:\n```json\n[{\"question\":\"q\",\"answer\":\"a\"}]\n```\nEnjoy!")
		if err != nil {
			t.Fatalf("ExtractCards failed: %v", err)
		}
		if len(drafts) != 1 || drafts[0].Question != "q" {
			t.Errorf("Unexpected drafts: %+v", drafts)
		}
	})

	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"no brackets", "sorry, I cannot help with that"},
		{"invalid json", "[{question: q}]"},
		{"empty array", "[]"},
		{"missing answer", `[{"question":"q"}]`},
		{"blank question", `[{"question":"","answer":"a"}]`},
	} {
		t.Run(tc.name+" is malformed", func(t *testing.T) {
			if _, err := ExtractCards(tc.raw); !errors.Is(err, domain.ErrMalformedResponse) {
				t.Errorf("Expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestPipelineRun(t *testing.T) {
	t.Run("persists generated cards with a due date", func(t *testing.T) {
		gen := &fakeGenerator{response: `[{"question":"q1","answer":"a1"},{"question":"q2","answer":"a2"}]`}
		p := &Pipeline{Gen: gen, Timeout: time.Second}
		snap := testSnapshot(t)

		err := p.Run(context.Background(), Job{Kind: SourceRaw, Content: "study this", Config: snap})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if gen.calls != 1 {
			t.Errorf("Expected one generation call, got %d", gen.calls)
		}

		db, err := storage.Open(config.Config{DataDir: snap.DataDir}.DBPath())
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer db.Close()

		batch, err := db.GetBatch(1)
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		if batch.SourceText != "study this" {
			t.Errorf("Expected batch to keep the source text, got %q", batch.SourceText)
		}

		cards, err := db.GetCardsInBatch(batch.ID)
		if err != nil {
			t.Fatalf("GetCardsInBatch failed: %v", err)
		}
		if len(cards) != 2 {
			t.Fatalf("Expected 2 cards, got %d", len(cards))
		}
		for _, card := range cards {
			if card.NextDue == nil {
				t.Fatalf("Expected a due date on card %d", card.ID)
			}
			// Default schedule: first review one day after creation.
			want := timeutil.Now().Add(24 * time.Hour)
			if diff := card.NextDue.Sub(want); diff < -time.Minute || diff > time.Minute {
				t.Errorf("Expected next_due near %v, got %v", want, *card.NextDue)
			}
			if len(card.RepData.History) != 0 {
				t.Errorf("Expected empty history on a fresh card, got %v", card.RepData.History)
			}
		}
	})

	t.Run("unknown flag fails before generation", func(t *testing.T) {
		gen := &fakeGenerator{response: `[{"question":"q","answer":"a"}]`}
		p := &Pipeline{Gen: gen}

		err := p.Run(context.Background(), Job{
			Kind:    SourceRaw,
			Content: "text",
			Flags:   map[string]string{"bogus": ""},
			Config:  testSnapshot(t),
		})
		if !errors.Is(err, domain.ErrUnrecognizedOption) {
			t.Fatalf("Expected ErrUnrecognizedOption, got %v", err)
		}
		if gen.calls != 0 {
			t.Errorf("Expected no generation call, got %d", gen.calls)
		}
	})

	t.Run("empty source fails before generation", func(t *testing.T) {
		gen := &fakeGenerator{response: `[{"question":"q","answer":"a"}]`}
		p := &Pipeline{Gen: gen}

		err := p.Run(context.Background(), Job{Kind: SourceRaw, Content: "", Config: testSnapshot(t)})
		if !errors.Is(err, domain.ErrEmptySource) {
			t.Fatalf("Expected ErrEmptySource, got %v", err)
		}
		if gen.calls != 0 {
			t.Errorf("Expected no generation call, got %d", gen.calls)
		}
	})

	t.Run("generator failure surfaces and persists nothing", func(t *testing.T) {
		gen := &fakeGenerator{err: domain.ErrNetworkFailure}
		p := &Pipeline{Gen: gen}
		snap := testSnapshot(t)

		err := p.Run(context.Background(), Job{Kind: SourceRaw, Content: "text", Config: snap})
		if !errors.Is(err, domain.ErrNetworkFailure) {
			t.Fatalf("Expected ErrNetworkFailure, got %v", err)
		}

		db, err := storage.Open(config.Config{DataDir: snap.DataDir}.DBPath())
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer db.Close()
		if _, err := db.GetBatch(1); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected no batch stored, got %v", err)
		}
	})
}
