package storage

import (
	"fmt"
	"sort"

	"github.com/basalt-app/basalt/internal/domain"
)

// GetFolderTree builds the subtree rooted at rootID: each node carries the
// ids of its cards and its children ordered by name. The build uses an
// explicit worklist with a visited guard so a corrupted parent chain surfaces
// as an error instead of looping.
func (db *DB) GetFolderTree(rootID int64) (*domain.FolderTree, error) {
	root, err := db.GetFolder(rootID)
	if err != nil {
		return nil, err
	}

	rootNode := &domain.FolderTree{ID: root.ID, Name: root.Name}
	visited := map[int64]bool{root.ID: true}
	worklist := []*domain.FolderTree{rootNode}

	for len(worklist) > 0 {
		node := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		cardIDs, err := db.folderCardIDs(node.ID)
		if err != nil {
			return nil, err
		}
		node.CardIDs = cardIDs

		children, err := db.childFolders(node.ID)
		if err != nil {
			return nil, err
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

		for _, child := range children {
			if visited[child.ID] {
				return nil, fmt.Errorf("folder %d appears twice in tree %d: %w",
					child.ID, rootID, domain.ErrCycle)
			}
			visited[child.ID] = true
			childNode := &domain.FolderTree{ID: child.ID, Name: child.Name}
			node.Children = append(node.Children, childNode)
			worklist = append(worklist, childNode)
		}
	}

	return rootNode, nil
}

func (db *DB) folderCardIDs(folderID int64) ([]int64, error) {
	rows, err := db.conn.Query(
		`SELECT id FROM flashcards WHERE folder_id = ? ORDER BY id ASC`, folderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards in folder %d: %w", folderID, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) childFolders(parentID int64) ([]*domain.Folder, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, parent_id, folder_settings FROM folders WHERE parent_id = ?`, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of folder %d: %w", parentID, err)
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
