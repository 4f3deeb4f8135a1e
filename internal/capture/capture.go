// Package capture turns a piece of content into persisted flashcards: it
// resolves the content source, validates the caller's flags against the
// configured custom-command vocabulary, asks the generation provider for
// question/answer records, and stores them as one batch.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/basalt-app/basalt/internal/config"
	"github.com/basalt-app/basalt/internal/domain"
	"github.com/basalt-app/basalt/internal/llm"
	"github.com/basalt-app/basalt/internal/sm2"
	"github.com/basalt-app/basalt/internal/storage"
	"github.com/basalt-app/basalt/internal/timeutil"
)

// SourceKind names where capture content comes from.
type SourceKind string

const (
	SourceRaw  SourceKind = "raw"
	SourceClip SourceKind = "clip"
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// Job is one unit of capture work. Content holds the text itself for raw
// captures and a locator (path or URL) for file and url captures.
type Job struct {
	Kind    SourceKind        `json:"kind" validate:"required,oneof=raw clip file url"`
	Content string            `json:"content"`
	Flags   map[string]string `json:"flags"`
	Config  config.Snapshot   `json:"config"`
}

// Generator is the external text-generation capability.
type Generator interface {
	Generate(ctx context.Context, instruction, content string, cfg llm.ProviderConfig) (string, error)
}

// Pipeline executes capture jobs. The store is opened per job under the
// job's own data directory.
type Pipeline struct {
	Gen     Generator
	Timeout time.Duration
}

// Run executes one capture job end to end. Flag and source validation happen
// before any call to the generation provider.
func (p *Pipeline) Run(ctx context.Context, job Job) error {
	if err := ValidateFlags(job.Flags, job.Config.CustomCommands); err != nil {
		return err
	}

	text, err := ResolveSource(job.Kind, job.Content)
	if err != nil {
		return err
	}

	instruction := BuildInstruction(job.Config.CustomPrompt, job.Config.CustomCommands, job.Flags)

	callCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	raw, err := p.Gen.Generate(callCtx, instruction, text, llm.ProviderConfig{
		Provider: job.Config.Provider,
		Model:    job.Config.Model,
		APIKey:   job.Config.APIKey,
	})
	if err != nil {
		return err
	}

	drafts, err := ExtractCards(raw)
	if err != nil {
		return err
	}

	db, err := storage.Open(config.Config{DataDir: job.Config.DataDir}.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	// New cards are due after the first interval of the root folder's
	// schedule; creation itself counts as the implicit first pass.
	settings, err := db.GetFolderSettings(domain.RootFolderID)
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
	hours, err := sm2.NextInterval(nil, params)
	if err != nil {
		return err
	}
	due := timeutil.Now().Add(time.Duration(hours * float64(time.Hour)))
	for i := range drafts {
		drafts[i].NextDue = &due
	}

	if _, _, err := db.StoreBatch(text, drafts); err != nil {
		return err
	}
	return nil
}

// ValidateFlags rejects any flag outside the custom-command vocabulary,
// naming every offender rather than just the first.
func ValidateFlags(flags, commands map[string]string) error {
	var unknown []string
	for flag := range flags {
		if _, ok := commands[flag]; !ok {
			unknown = append(unknown, flag)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", domain.ErrUnrecognizedOption, strings.Join(unknown, ", "))
	}
	return nil
}

// ResolveSource produces the text to capture from a source kind and its
// content or locator.
func ResolveSource(kind SourceKind, content string) (string, error) {
	switch kind {
	case SourceRaw:
		if strings.TrimSpace(content) == "" {
			return "", fmt.Errorf("%w: no text provided", domain.ErrEmptySource)
		}
		return content, nil

	case SourceClip:
		text, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("%w: clipboard could not be accessed: %v", domain.ErrSourceUnavailable, err)
		}
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%w: clipboard is empty", domain.ErrEmptySource)
		}
		return text, nil

	case SourceFile:
		if content == "" {
			return "", fmt.Errorf("%w: no file path provided", domain.ErrEmptySource)
		}
		data, err := os.ReadFile(content)
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file %s: %w", content, domain.ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("%w: reading %s: %v", domain.ErrSourceUnavailable, content, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("%w: %s is empty", domain.ErrEmptySource, content)
		}
		return string(data), nil

	case SourceURL:
		if content == "" {
			return "", fmt.Errorf("%w: no url provided", domain.ErrEmptySource)
		}
		resp, err := http.Get(content)
		if err != nil {
			return "", fmt.Errorf("%w: fetching %s: %v", domain.ErrSourceUnavailable, content, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("url %s: %w", content, domain.ErrNotFound)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", fmt.Errorf("%w: %s returned %s", domain.ErrSourceUnavailable, content, resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("%w: reading %s: %v", domain.ErrSourceUnavailable, content, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("%w: %s returned no content", domain.ErrEmptySource, content)
		}
		return string(data), nil

	default:
		return "", fmt.Errorf("%w: unknown source kind %q", domain.ErrSourceUnavailable, kind)
	}
}

const systemTemplate = `You are a flashcard generator for a spaced repetition app.

Given this piece of text, extract a key idea (or ideas) that would help the user learn and remember the knowledge contained in the text. Assume they've read the text already; your aim should be to jog their mind, and do not over-explain. Represent each as a flashcard object in JSON format with "question" and "answer" fields, and possibly more, if the user specifies. Return a single JSON array of such flashcards.

Use clear, concise phrasing. Each fact should form its own flashcard.
Only output valid JSON; no other text.`

// BuildInstruction assembles the system instruction: fixed template, the
// user's standing custom prompt, then each flag's expansion. A bare flag
// inserts its command text verbatim; a valued flag substitutes the value for
// the {} placeholder. Flags expand in sorted order so the instruction is
// deterministic.
func BuildInstruction(customPrompt string, commands, flags map[string]string) string {
	var b strings.Builder
	b.WriteString(systemTemplate)

	if strings.TrimSpace(customPrompt) != "" || len(flags) > 0 {
		b.WriteString("\n\nHere are the user's custom instructions:\n")
	}
	if strings.TrimSpace(customPrompt) != "" {
		b.WriteString(customPrompt)
	}

	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(" ")
		expansion := commands[name]
		if value := flags[name]; value != "" {
			expansion = strings.ReplaceAll(expansion, "{}", value)
		}
		b.WriteString(expansion)
	}

	return b.String()
}

// ExtractCards pulls the JSON array out of the assistant text (everything
// between the first '[' and the last ']') and decodes it into card drafts.
// Every record must carry non-empty question and answer strings; any other
// fields fold into other_data.
func ExtractCards(raw string) ([]domain.CardDraft, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: response not wrapped in square brackets", domain.ErrMalformedResponse)
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: response contained no flashcards", domain.ErrMalformedResponse)
	}

	drafts := make([]domain.CardDraft, 0, len(records))
	for i, record := range records {
		question, _ := record["question"].(string)
		answer, _ := record["answer"].(string)
		if question == "" || answer == "" {
			return nil, fmt.Errorf("%w: flashcard %d is missing question or answer", domain.ErrMalformedResponse, i)
		}

		other := make(map[string]any)
		for k, v := range record {
			if k != "question" && k != "answer" {
				other[k] = v
			}
		}
		drafts = append(drafts, domain.CardDraft{Question: question, Answer: answer, Other: other})
	}
	return drafts, nil
}
