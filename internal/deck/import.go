package deck

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/basalt-app/basalt/internal/domain"
	"github.com/basalt-app/basalt/internal/sm2"
	"github.com/basalt-app/basalt/internal/storage"
	"github.com/basalt-app/basalt/internal/timeutil"
)

// Result summarizes one deck import.
type Result struct {
	BatchID    int64
	Imported   int
	Duplicates int
	ParseErrs  []error
}

// Import walks source (a local directory, or a git remote cloned under
// cacheDir) for .md deck files and stores the parsed cards as one batch in
// the named folder (root when folderName is empty). Cards already present in
// the folder, by content fingerprint, are skipped. New cards follow the
// creation schedule of the folder's effective settings.
func Import(db *storage.DB, source, folderName, cacheDir string) (*Result, error) {
	dir := source
	if IsGitSource(source) {
		var err error
		dir, err = syncGitSource(filepath.Join(cacheDir, "repos"), source)
		if err != nil {
			return nil, err
		}
	}

	folderID := domain.RootFolderID
	if folderName != "" {
		var err error
		folderID, err = db.GetFolderIDFromName(folderName)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{}
	var parsed []Card
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		cards, parseErr := ParseFile(path)
		if parseErr != nil {
			result.ParseErrs = append(result.ParseErrs, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		parsed = append(parsed, cards...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	existing, err := existingFingerprints(db, folderID)
	if err != nil {
		return nil, err
	}

	due, err := creationDue(db, folderID)
	if err != nil {
		return nil, err
	}

	var drafts []domain.CardDraft
	for _, card := range parsed {
		fp := Fingerprint(card.Question, card.Answer, card.Context)
		if existing[fp] {
			result.Duplicates++
			continue
		}
		existing[fp] = true

		other := map[string]any{}
		if card.Context != "" {
			other["context"] = card.Context
		}
		dueCopy := due
		fid := folderID
		drafts = append(drafts, domain.CardDraft{
			Question: card.Question,
			Answer:   card.Answer,
			Other:    other,
			NextDue:  &dueCopy,
			FolderID: &fid,
		})
	}

	if len(drafts) == 0 {
		slog.Info("deck import found nothing new", "source", source, "duplicates", result.Duplicates)
		return result, nil
	}

	batchID, _, err := db.StoreBatch("deck import: "+source, drafts)
	if err != nil {
		return nil, err
	}
	result.BatchID = batchID
	result.Imported = len(drafts)

	slog.Info("deck import complete",
		"source", source,
		"imported", result.Imported,
		"duplicates", result.Duplicates,
		"errors", len(result.ParseErrs),
	)
	return result, nil
}

func existingFingerprints(db *storage.DB, folderID int64) (map[string]bool, error) {
	cards, err := db.GetCardsInFolder(folderID)
	if err != nil {
		return nil, err
	}
	fps := make(map[string]bool, len(cards))
	for _, card := range cards {
		context, _ := card.OtherData["context"].(string)
		fps[Fingerprint(card.Question, card.Answer, context)] = true
	}
	return fps, nil
}

// creationDue computes the first due date for cards created now in the given
// folder, using the folder's effective settings.
func creationDue(db *storage.DB, folderID int64) (time.Time, error) {
	settings, err := db.GetFolderSettings(folderID)
	if err != nil {
		return time.Time{}, err
	}
	if settings.Algorithm != sm2.Algorithm {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, settings.Algorithm)
	}
	params, err := sm2.DecodeSettings(settings.SM2Settings)
	if err != nil {
		return time.Time{}, err
	}
	hours, err := sm2.NextInterval(nil, params)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.Now().Add(time.Duration(hours * float64(time.Hour))), nil
}
