// Package storage is the persistent store for folders, flashcards, and
// batches, backed by a single sqlite file. Every exported operation is a
// single atomic unit of work; structural-constraint violations leave prior
// state untouched, and an update or delete matching zero rows reports
// domain.ErrNotFound rather than silently succeeding.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite driver

	"github.com/basalt-app/basalt/internal/domain"
	"github.com/basalt-app/basalt/internal/timeutil"
)

// DB wraps the sqlite connection. Open one per logical operation or client
// invocation; writes are serialized by sqlite's own transaction semantics.
type DB struct {
	conn *sql.DB
}

// Open creates the parent directory if needed, opens the database, applies
// the schema idempotently, and seeds the root folder with default settings.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// The pragmas ride on the DSN so they apply to every connection in the
	// database/sql pool, not just the one a conn.Exec happens to land on.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// Daemon workers open this file concurrently; wait out writer contention
	// instead of surfacing SQLITE_BUSY as a job failure.
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := conn.Exec(
		`INSERT OR IGNORE INTO folders (id, name, parent_id, folder_settings) VALUES (?, ?, NULL, ?)`,
		domain.RootFolderID, domain.RootFolderName, defaultRootSettings,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to seed root folder: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateBatch inserts a batch recording the captured source text.
func (db *DB) CreateBatch(sourceText string) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO batches (source_text, created_at) VALUES (?, ?)`,
		sourceText, timeutil.ToSQL(timeutil.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	return res.LastInsertId()
}

// CreateFlashcard inserts a card into the root folder with an empty review
// history. Fields beyond question/answer live in other_data.
func (db *DB) CreateFlashcard(draft domain.CardDraft, batchID *int64) (int64, error) {
	return createFlashcard(db.conn, draft, batchID)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func createFlashcard(ex execer, draft domain.CardDraft, batchID *int64) (int64, error) {
	otherData, err := json.Marshal(draft.Other)
	if err != nil {
		return 0, fmt.Errorf("failed to encode other_data: %w", err)
	}
	repData, err := json.Marshal(domain.RepData{History: []domain.ReviewEntry{}})
	if err != nil {
		return 0, fmt.Errorf("failed to encode rep_data: %w", err)
	}

	var nextDue any
	if draft.NextDue != nil {
		nextDue = timeutil.ToSQL(*draft.NextDue)
	}
	var batch any
	if batchID != nil {
		batch = *batchID
	}
	folderID := domain.RootFolderID
	if draft.FolderID != nil {
		folderID = *draft.FolderID
	}

	res, err := ex.Exec(`
		INSERT INTO flashcards (folder_id, question, answer, other_data, rep_data, batch_id, next_due, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		folderID, draft.Question, draft.Answer, string(otherData), string(repData),
		batch, nextDue, timeutil.ToSQL(timeutil.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert flashcard: %w", err)
	}
	return res.LastInsertId()
}

// StoreBatch persists one batch plus one flashcard per draft in a single
// transaction. Returns the new batch id and the card ids in draft order.
func (db *DB) StoreBatch(sourceText string, drafts []domain.CardDraft) (int64, []int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO batches (source_text, created_at) VALUES (?, ?)`,
		sourceText, timeutil.ToSQL(timeutil.Now()),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to insert batch: %w", err)
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, err
	}

	cardIDs := make([]int64, 0, len(drafts))
	for _, draft := range drafts {
		id, err := createFlashcard(tx, draft, &batchID)
		if err != nil {
			return 0, nil, err
		}
		cardIDs = append(cardIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return batchID, cardIDs, nil
}

// flashcardColumns whitelists the columns UpdateFlashcardFields may touch.
var flashcardColumns = map[string]bool{
	"question":   true,
	"answer":     true,
	"folder_id":  true,
	"batch_id":   true,
	"other_data": true,
	"rep_data":   true,
	"next_due":   true,
}

// UpdateFlashcardFields applies a partial update. Map keys are column names;
// other_data and rep_data values are JSON-encoded, next_due accepts a
// time.Time or nil.
func (db *DB) UpdateFlashcardFields(id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !flashcardColumns[col] {
			return fmt.Errorf("cannot update flashcard column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for _, col := range cols {
		v, err := toColumnValue(col, fields[col])
		if err != nil {
			return err
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	args = append(args, id)

	res, err := db.conn.Exec(
		"UPDATE flashcards SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update flashcard %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("flashcard %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// toColumnValue converts API-level values into their stored representation.
func toColumnValue(col string, v any) (any, error) {
	switch col {
	case "other_data", "rep_data", "folder_settings":
		switch tv := v.(type) {
		case nil:
			return nil, nil
		case string:
			return tv, nil
		default:
			b, err := json.Marshal(tv)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s: %w", col, err)
			}
			return string(b), nil
		}
	case "next_due":
		switch tv := v.(type) {
		case nil:
			return nil, nil
		case time.Time:
			return timeutil.ToSQL(tv), nil
		case *time.Time:
			if tv == nil {
				return nil, nil
			}
			return timeutil.ToSQL(*tv), nil
		case string:
			return tv, nil
		default:
			return nil, fmt.Errorf("next_due must be a time.Time or nil, got %T", v)
		}
	default:
		return v, nil
	}
}

// DeleteFlashcard removes a card by id.
func (db *DB) DeleteFlashcard(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM flashcards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete flashcard %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("flashcard %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteBatch removes a batch and every card that references it.
func (db *DB) DeleteBatch(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM flashcards WHERE batch_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cards in batch %d: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete batch %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %d: %w", id, domain.ErrNotFound)
	}
	return tx.Commit()
}

const cardColumns = `id, folder_id, batch_id, question, answer, other_data, rep_data, next_due, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*domain.Flashcard, error) {
	var (
		card      domain.Flashcard
		batchID   sql.NullInt64
		otherData sql.NullString
		repData   sql.NullString
		nextDue   sql.NullString
		createdAt string
	)
	err := row.Scan(
		&card.ID, &card.FolderID, &batchID, &card.Question, &card.Answer,
		&otherData, &repData, &nextDue, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if batchID.Valid {
		card.BatchID = &batchID.Int64
	}
	if otherData.Valid && otherData.String != "" {
		if err := json.Unmarshal([]byte(otherData.String), &card.OtherData); err != nil {
			return nil, fmt.Errorf("invalid other_data for card %d: %w", card.ID, err)
		}
	}
	if repData.Valid && repData.String != "" {
		if err := json.Unmarshal([]byte(repData.String), &card.RepData); err != nil {
			return nil, fmt.Errorf("invalid rep_data for card %d: %w", card.ID, err)
		}
	}
	if nextDue.Valid {
		t, err := timeutil.FromSQL(nextDue.String)
		if err != nil {
			return nil, fmt.Errorf("invalid next_due for card %d: %w", card.ID, err)
		}
		card.NextDue = &t
	}
	card.CreatedAt, err = timeutil.FromSQL(createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at for card %d: %w", card.ID, err)
	}
	return &card, nil
}

// GetCard retrieves a flashcard by id.
func (db *DB) GetCard(id int64) (*domain.Flashcard, error) {
	row := db.conn.QueryRow(`SELECT `+cardColumns+` FROM flashcards WHERE id = ?`, id)
	card, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flashcard %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard %d: %w", id, err)
	}
	return card, nil
}

func (db *DB) queryCards(query string, args ...any) ([]*domain.Flashcard, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*domain.Flashcard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// GetDueCards returns every card whose next_due has passed, ordered ascending
// by next_due. Cards with no due date never appear. The ordering is a hard
// contract: the review driver presents cards oldest-due first.
func (db *DB) GetDueCards(now time.Time) ([]*domain.Flashcard, error) {
	cards, err := db.queryCards(
		`SELECT `+cardColumns+` FROM flashcards
		 WHERE next_due IS NOT NULL AND next_due <= ?
		 ORDER BY next_due ASC`,
		timeutil.ToSQL(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards: %w", err)
	}
	return cards, nil
}

// GetCardsInFolder returns the cards directly inside a folder.
func (db *DB) GetCardsInFolder(folderID int64) ([]*domain.Flashcard, error) {
	cards, err := db.queryCards(
		`SELECT `+cardColumns+` FROM flashcards WHERE folder_id = ? ORDER BY id ASC`, folderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards in folder %d: %w", folderID, err)
	}
	return cards, nil
}

// GetCardsInBatch returns the cards created with a batch.
func (db *DB) GetCardsInBatch(batchID int64) ([]*domain.Flashcard, error) {
	cards, err := db.queryCards(
		`SELECT `+cardColumns+` FROM flashcards WHERE batch_id = ? ORDER BY id ASC`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards in batch %d: %w", batchID, err)
	}
	return cards, nil
}

// GetBatch retrieves a batch by id.
func (db *DB) GetBatch(id int64) (*domain.Batch, error) {
	var (
		batch      domain.Batch
		sourceText sql.NullString
		createdAt  string
	)
	row := db.conn.QueryRow(`SELECT id, source_text, created_at FROM batches WHERE id = ?`, id)
	err := row.Scan(&batch.ID, &sourceText, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %d: %w", id, err)
	}
	batch.SourceText = sourceText.String
	batch.CreatedAt, err = timeutil.FromSQL(createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at for batch %d: %w", id, err)
	}
	return &batch, nil
}
