package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EnsureCollection returns the id of the named collection, creating it when absent.
func (s *Store) EnsureCollection(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("collection name required")
	}
	var id string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT id FROM collections WHERE name = ?`, name).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `INSERT INTO collections (id, name, created_at) VALUES (?, ?, ?)`, id, name, nowString())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ensure collection: %w", err)
	}
	return id, nil
}

// LoadFolder fetches a folder by identifier.
func (s *Store) LoadFolder(ctx context.Context, id string) (*Folder, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	folder, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load folder: %w", err)
	}
	return folder, nil
}

// CreateRootFolder creates a folder directly under a collection.
func (s *Store) CreateRootFolder(ctx context.Context, collectionID, name, creator string, reuseExisting bool) (*Folder, error) {
	return s.createFolder(ctx, collectionID, ParentCollection, ParentCollection, collectionID, name, creator, reuseExisting)
}

// CreateFolder creates name under parent. With reuseExisting, a same-named
// sibling is returned instead of failing.
func (s *Store) CreateFolder(ctx context.Context, parent *Folder, name, creator string, reuseExisting bool) (*Folder, error) {
	if parent == nil {
		return nil, errors.New("create folder: parent required")
	}
	return s.createFolder(ctx, parent.ID, ParentFolder, parent.BaseParentType, parent.BaseParentID, name, creator, reuseExisting)
}

func (s *Store) createFolder(ctx context.Context, parentID, parentType, baseType, baseID, name, creator string, reuseExisting bool) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("create folder: name required")
	}
	var folder *Folder
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+folderColumns+` FROM folders WHERE parent_id = ? AND parent_type = ? AND name = ?`,
			parentID, parentType, name)
		existing, err := scanFolder(row)
		switch {
		case err == nil:
			if !reuseExisting {
				return fmt.Errorf("a folder named %q already exists here", name)
			}
			folder = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		now := nowString()
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO folders (id, name, lower_name, parent_id, parent_type, base_parent_type, base_parent_id, creator_id, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, name, lowerName(name), parentID, parentType, baseType, baseID, nullableString(creator), now, now,
		); err != nil {
			return err
		}
		folder, err = scanFolder(tx.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	return folder, nil
}

// ChildFolders lists the direct subfolders of folder ordered by case-folded name.
func (s *Store) ChildFolders(ctx context.Context, folder *Folder) ([]*Folder, error) {
	if folder == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE parent_id = ? AND parent_type = ? ORDER BY lower_name, id`,
		folder.ID, ParentFolder)
	if err != nil {
		return nil, fmt.Errorf("child folders: %w", err)
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// RootFolders lists folders directly under a collection.
func (s *Store) RootFolders(ctx context.Context, collectionID string) ([]*Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE parent_id = ? AND parent_type = ? ORDER BY lower_name, id`,
		collectionID, ParentCollection)
	if err != nil {
		return nil, fmt.Errorf("root folders: %w", err)
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// HasChildren reports whether folder holds any subfolder or item.
func (s *Store) HasChildren(ctx context.Context, folder *Folder) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(1) FROM folders WHERE parent_id = ? AND parent_type = ?)
              + (SELECT COUNT(1) FROM items WHERE folder_id = ?)`,
		folder.ID, ParentFolder, folder.ID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count children: %w", err)
	}
	return count > 0, nil
}

// RemoveFolder deletes an empty folder. Items are never deleted through this
// call, so a folder with children fails with ErrFolderNotEmpty.
func (s *Store) RemoveFolder(ctx context.Context, folder *Folder) error {
	if folder == nil {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(1) FROM folders WHERE parent_id = ? AND parent_type = ?)
                  + (SELECT COUNT(1) FROM items WHERE folder_id = ?)`,
			folder.ID, ParentFolder, folder.ID).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return ErrFolderNotEmpty
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, folder.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove folder %s: %w", folder.ID, err)
	}
	return nil
}
