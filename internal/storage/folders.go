package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/basalt-app/basalt/internal/domain"
)

// CreateFolder inserts a folder under the root. Folder names are globally
// unique; a clash reports domain.ErrDuplicateName.
func (db *DB) CreateFolder(name string) (int64, error) {
	root := domain.RootFolderID
	res, err := db.conn.Exec(
		`INSERT INTO folders (name, parent_id) VALUES (?, ?)`, name, root,
	)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("folder %q: %w", name, domain.ErrDuplicateName)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert folder %q: %w", name, err)
	}
	return res.LastInsertId()
}

// folderColumns whitelists the columns UpdateFolderFields may touch.
var folderColumns = map[string]bool{
	"name":            true,
	"parent_id":       true,
	"folder_settings": true,
}

// UpdateFolderFields applies a partial update to a folder. Renaming or
// reparenting the root is rejected unconditionally; a parent_id change is
// checked against the ancestor chain so no cycle can be written.
func (db *DB) UpdateFolderFields(id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, col := range []string{"folder_settings", "name", "parent_id"} {
		v, ok := fields[col]
		if !ok {
			continue
		}
		if id == domain.RootFolderID && col != "folder_settings" {
			return fmt.Errorf("folder %d: %w", id, domain.ErrRootImmutable)
		}
		if col == "parent_id" {
			parentID, ok := toInt64(v)
			if !ok {
				return fmt.Errorf("parent_id must be a folder id, got %T", v)
			}
			if err := db.checkReparent(id, parentID); err != nil {
				return err
			}
			v = parentID
		}
		cv, err := toColumnValue(col, v)
		if err != nil {
			return err
		}
		sets = append(sets, col+" = ?")
		args = append(args, cv)
	}
	if len(sets) != len(fields) {
		for col := range fields {
			if !folderColumns[col] {
				return fmt.Errorf("cannot update folder column %q", col)
			}
		}
	}
	args = append(args, id)

	res, err := db.conn.Exec(
		"UPDATE folders SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("folder %d: %w", id, domain.ErrDuplicateName)
	}
	if err != nil {
		return fmt.Errorf("failed to update folder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("folder %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch tv := v.(type) {
	case int64:
		return tv, true
	case int:
		return int64(tv), true
	case float64:
		return int64(tv), true
	default:
		return 0, false
	}
}

// checkReparent verifies the new parent exists and is not the folder itself
// or one of its descendants. Walking up from the new parent must reach the
// root without passing through the folder being moved.
func (db *DB) checkReparent(id, newParent int64) error {
	if newParent == id {
		return fmt.Errorf("folder %d cannot be its own parent: %w", id, domain.ErrCycle)
	}
	if _, err := db.GetFolder(newParent); err != nil {
		return err
	}

	seen := map[int64]bool{}
	current := newParent
	for {
		if current == id {
			return fmt.Errorf("folder %d is a descendant of folder %d: %w", newParent, id, domain.ErrCycle)
		}
		if seen[current] {
			return fmt.Errorf("ancestor chain of folder %d loops: %w", newParent, domain.ErrCycle)
		}
		seen[current] = true

		var parent sql.NullInt64
		err := db.conn.QueryRow(`SELECT parent_id FROM folders WHERE id = ?`, current).Scan(&parent)
		if err == sql.ErrNoRows {
			return fmt.Errorf("folder %d: %w", current, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to walk ancestors of folder %d: %w", newParent, err)
		}
		if !parent.Valid {
			return nil
		}
		current = parent.Int64
	}
}

// DeleteFolder removes a folder. With recursive set, descendant folders and
// all their cards go too; without it, deleting a folder that still holds
// cards or sub-folders fails with domain.ErrFolderNotEmpty.
func (db *DB) DeleteFolder(id int64, recursive bool) error {
	if id == domain.RootFolderID {
		return fmt.Errorf("folder %d: %w", id, domain.ErrRootImmutable)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if recursive {
		if err := deleteFolderRecursive(tx, id); err != nil {
			return err
		}
		return tx.Commit()
	}

	var cards, children int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM flashcards WHERE folder_id = ?`, id).Scan(&cards); err != nil {
		return fmt.Errorf("failed to count cards in folder %d: %w", id, err)
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM folders WHERE parent_id = ?`, id).Scan(&children); err != nil {
		return fmt.Errorf("failed to count children of folder %d: %w", id, err)
	}
	if cards > 0 || children > 0 {
		return fmt.Errorf("folder %d has %d cards and %d sub-folders: %w",
			id, cards, children, domain.ErrFolderNotEmpty)
	}

	res, err := tx.Exec(`DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("folder %d: %w", id, domain.ErrNotFound)
	}
	return tx.Commit()
}

func deleteFolderRecursive(tx *sql.Tx, id int64) error {
	rows, err := tx.Query(`SELECT id FROM folders WHERE parent_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to list children of folder %d: %w", id, err)
	}
	var children []int64
	for rows.Next() {
		var child int64
		if err := rows.Scan(&child); err != nil {
			rows.Close()
			return err
		}
		children = append(children, child)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, child := range children {
		if err := deleteFolderRecursive(tx, child); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM flashcards WHERE folder_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cards in folder %d: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("folder %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanFolder(row rowScanner) (*domain.Folder, error) {
	var (
		folder   domain.Folder
		parentID sql.NullInt64
		settings sql.NullString
	)
	if err := row.Scan(&folder.ID, &folder.Name, &parentID, &settings); err != nil {
		return nil, err
	}
	if parentID.Valid {
		folder.ParentID = &parentID.Int64
	}
	if settings.Valid && settings.String != "" {
		var fs domain.FolderSettings
		if err := json.Unmarshal([]byte(settings.String), &fs); err != nil {
			return nil, fmt.Errorf("invalid folder_settings for folder %d: %w", folder.ID, err)
		}
		folder.Settings = &fs
	}
	return &folder, nil
}

// GetFolder retrieves a folder by id.
func (db *DB) GetFolder(id int64) (*domain.Folder, error) {
	row := db.conn.QueryRow(
		`SELECT id, name, parent_id, folder_settings FROM folders WHERE id = ?`, id,
	)
	folder, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("folder %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %d: %w", id, err)
	}
	return folder, nil
}

// GetFolderIDFromName resolves a folder by its exact name.
func (db *DB) GetFolderIDFromName(name string) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`SELECT id FROM folders WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("folder %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve folder %q: %w", name, err)
	}
	return id, nil
}

// GetAllFolders returns every folder ordered by name.
func (db *DB) GetAllFolders() ([]*domain.Folder, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, parent_id, folder_settings FROM folders ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []*domain.Folder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

// GetFolderSettings returns the effective settings for a folder: its own
// settings if present, otherwise the nearest ancestor's. The walk always
// terminates because the root carries settings from first open.
func (db *DB) GetFolderSettings(folderID int64) (*domain.FolderSettings, error) {
	seen := map[int64]bool{}
	current := folderID
	for {
		if seen[current] {
			return nil, fmt.Errorf("ancestor chain of folder %d loops: %w", folderID, domain.ErrCycle)
		}
		seen[current] = true

		folder, err := db.GetFolder(current)
		if err != nil {
			return nil, err
		}
		if folder.Settings != nil {
			return folder.Settings, nil
		}
		if folder.ParentID == nil {
			return nil, fmt.Errorf("no folder with settings above folder %d: %w", folderID, domain.ErrNotFound)
		}
		current = *folder.ParentID
	}
}
