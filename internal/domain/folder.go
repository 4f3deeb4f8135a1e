package domain

import "encoding/json"

// RootFolderID is the fixed id of the root folder seeded at first store open.
// The root's name and parent are immutable and it cannot be deleted.
const RootFolderID int64 = 0

// RootFolderName is the root folder's display name.
const RootFolderName = "/"

// Folder is a hierarchical container for flashcards and sub-folders.
// Settings is nil when the folder inherits from its nearest ancestor.
type Folder struct {
	ID       int64
	Name     string
	ParentID *int64
	Settings *FolderSettings
}

// FolderSettings names the review algorithm for a folder subtree and carries
// the algorithm's parameter block verbatim. Parameter blocks are opaque here;
// the scheduler for the named algorithm decodes and validates its own block.
type FolderSettings struct {
	Algorithm   string          `json:"algorithm"`
	SM2Settings json.RawMessage `json:"sm2_settings,omitempty"`
}

// FolderTree is the recursive listing shape consumed by external renderers.
// Children are ordered by name for deterministic rendering.
type FolderTree struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	CardIDs  []int64       `json:"cards"`
	Children []*FolderTree `json:"children"`
}
