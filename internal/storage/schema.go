package storage

import (
	"fmt"

	"github.com/basalt-app/basalt/internal/domain"
)

// schema is applied idempotently on every Open. other_data, rep_data, and
// folder_settings are JSON text blobs; the store never inspects the first
// two. Root protection is enforced both in code (clean error values) and by
// triggers so raw SQL cannot bypass it.
var schema = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS folders (
    id              INTEGER PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    parent_id       INTEGER,
    folder_settings TEXT,

    FOREIGN KEY (parent_id) REFERENCES folders(id),
    CHECK (parent_id IS NOT NULL OR id = %[1]d)
);

CREATE TABLE IF NOT EXISTS flashcards (
    id         INTEGER PRIMARY KEY,
    folder_id  INTEGER NOT NULL DEFAULT %[1]d,
    batch_id   INTEGER,

    question   TEXT NOT NULL,
    answer     TEXT NOT NULL,
    other_data TEXT,

    rep_data   TEXT,
    next_due   TEXT,
    created_at TEXT NOT NULL,

    FOREIGN KEY (folder_id) REFERENCES folders(id),
    FOREIGN KEY (batch_id) REFERENCES batches(id)
);

CREATE TABLE IF NOT EXISTS batches (
    id          INTEGER PRIMARY KEY,
    source_text TEXT,
    created_at  TEXT NOT NULL
);

CREATE TRIGGER IF NOT EXISTS prevent_root_update
BEFORE UPDATE OF name, parent_id ON folders
WHEN old.id = %[1]d
BEGIN
    SELECT RAISE(ABORT, 'root folder is locked');
END;

CREATE TRIGGER IF NOT EXISTS prevent_root_delete
BEFORE DELETE ON folders
WHEN old.id = %[1]d
BEGIN
    SELECT RAISE(ABORT, 'root folder cannot be deleted');
END;
`, domain.RootFolderID)

// defaultRootSettings is the settings blob seeded onto the root folder so the
// ancestor walk in GetFolderSettings always terminates with a result.
const defaultRootSettings = `{
  "algorithm": "sm2",
  "sm2_settings": {
    "unit_time": 24,
    "initial_intervals": [1, 6],
    "initial_ease": 2.5,
    "min_ease": 1.3,
    "ease_bonus": 0.1,
    "ease_penalty_linear": 0.08,
    "ease_penalty_quadratic": 0.02,
    "pass_threshold": 3
  }
}`
