package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// LoadItem fetches an item by identifier.
func (s *Store) LoadItem(ctx context.Context, id string) (*Item, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	item, err := loadItemTx(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	return item, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadItemTx(ctx context.Context, q queryRower, id string) (*Item, error) {
	return scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
}

// CreateItem creates an empty item in folder.
func (s *Store) CreateItem(ctx context.Context, folder *Folder, name, creator string, meta Metadata) (*Item, error) {
	if folder == nil {
		return nil, errors.New("create item: folder required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("create item: name required")
	}
	metaJSON, err := encodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	now := nowString()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO items (id, name, lower_name, folder_id, base_parent_type, base_parent_id, creator_id, large_image, meta_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		id, name, lowerName(name), folder.ID, folder.BaseParentType, folder.BaseParentID, nullableString(creator), metaJSON, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return s.LoadItem(ctx, id)
}

// MoveItem places item in folder and returns the refreshed item.
func (s *Store) MoveItem(ctx context.Context, item *Item, folder *Folder) (*Item, error) {
	if item == nil || folder == nil {
		return nil, errors.New("move item: item and folder required")
	}
	if _, err := s.execWithRetry(ctx,
		`UPDATE items SET folder_id = ?, base_parent_type = ?, base_parent_id = ?, updated_at = ? WHERE id = ?`,
		folder.ID, folder.BaseParentType, folder.BaseParentID, nowString(), item.ID,
	); err != nil {
		return nil, fmt.Errorf("move item: %w", err)
	}
	return s.mustReload(ctx, item.ID)
}

// RenameItem changes an item's display name.
func (s *Store) RenameItem(ctx context.Context, item *Item, name string) (*Item, error) {
	name = strings.TrimSpace(name)
	if item == nil || name == "" {
		return nil, errors.New("rename item: item and name required")
	}
	if _, err := s.execWithRetry(ctx,
		`UPDATE items SET name = ?, lower_name = ?, updated_at = ? WHERE id = ?`,
		name, lowerName(name), nowString(), item.ID,
	); err != nil {
		return nil, fmt.Errorf("rename item: %w", err)
	}
	return s.mustReload(ctx, item.ID)
}

// SetMetadata merges partial into the item's metadata. A nil value removes
// the key. The read-merge-write runs in one transaction.
func (s *Store) SetMetadata(ctx context.Context, item *Item, partial Metadata) (*Item, error) {
	if item == nil {
		return nil, errors.New("set metadata: item required")
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		if err := tx.QueryRowContext(ctx, `SELECT meta_json FROM items WHERE id = ?`, item.ID).Scan(&raw); err != nil {
			return err
		}
		meta, err := decodeMetadata(raw)
		if err != nil {
			return err
		}
		for key, value := range partial {
			if value == nil {
				delete(meta, key)
				continue
			}
			meta[key] = value
		}
		encoded, err := encodeMetadata(meta)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE items SET meta_json = ?, updated_at = ? WHERE id = ?`, encoded, nowString(), item.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set metadata on %s: %w", item.ID, err)
	}
	return s.mustReload(ctx, item.ID)
}

// CopyItem duplicates item, its metadata, and its files into dest under newName.
func (s *Store) CopyItem(ctx context.Context, item *Item, creator string, dest *Folder, newName string) (*Item, error) {
	if item == nil || dest == nil {
		return nil, errors.New("copy item: item and destination required")
	}
	if strings.TrimSpace(newName) == "" {
		newName = item.Name
	}
	files, err := s.ItemFiles(ctx, item, "")
	if err != nil {
		return nil, err
	}
	copied, err := s.CreateItem(ctx, dest, newName, creator, item.Meta.Clone())
	if err != nil {
		return nil, fmt.Errorf("copy item: %w", err)
	}
	for _, f := range files {
		if _, err := s.copyFile(ctx, f, copied); err != nil {
			return nil, fmt.Errorf("copy item file %s: %w", f.Name, err)
		}
	}
	if item.LargeImage {
		if err := s.setLargeImage(ctx, copied.ID, true); err != nil {
			return nil, err
		}
	}
	return s.mustReload(ctx, copied.ID)
}

// ChildItems lists the items directly inside folder.
func (s *Store) ChildItems(ctx context.Context, folder *Folder, q ItemQuery) ([]*Item, error) {
	if folder == nil {
		return nil, nil
	}
	var (
		where = []string{"folder_id = ?"}
		args  = []any{folder.ID}
	)
	for _, key := range q.MissingMeta {
		where = append(where, "json_type(meta_json, ?) IS NULL")
		args = append(args, jsonKeyPath(key))
	}
	for _, key := range q.HasMeta {
		where = append(where, "json_type(meta_json, ?) IS NOT NULL")
		args = append(args, jsonKeyPath(key))
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE ` + strings.Join(where, " AND ")
	switch q.Sort {
	case SortCreated:
		query += ` ORDER BY created_at, id`
	case SortUpdated:
		query += ` ORDER BY updated_at DESC, id`
	default:
		query += ` ORDER BY lower_name, id`
	}
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	} else if q.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, q.Offset)
	}
	return s.queryItems(ctx, query, args...)
}

// ItemsNamedLike returns items whose name starts with prefix, excluding one id.
func (s *Store) ItemsNamedLike(ctx context.Context, prefix, excludeID string) ([]*Item, error) {
	if prefix == "" {
		return nil, nil
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE substr(name, 1, ?) = ? AND id != ? ORDER BY lower_name, id`,
		len([]rune(prefix)), prefix, excludeID)
}

// ItemsByID loads several items, preserving the requested order and
// skipping identifiers that no longer exist.
func (s *Store) ItemsByID(ctx context.Context, ids []string) ([]*Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}
	ordered := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

// MetaStringValues returns every non-empty string stored under key across all items.
func (s *Store) MetaStringValues(ctx context.Context, key string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT json_extract(meta_json, ?) FROM items WHERE json_type(meta_json, ?) = 'text'`,
		jsonKeyPath(key), jsonKeyPath(key))
	if err != nil {
		return nil, fmt.Errorf("meta values %s: %w", key, err)
	}
	defer rows.Close()

	values := make(map[string]struct{})
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		if value.String != "" {
			values[value.String] = struct{}{}
		}
	}
	return values, rows.Err()
}

// DeleteLargeImage drops the item's pixel-data representation marker.
func (s *Store) DeleteLargeImage(ctx context.Context, item *Item) error {
	if item == nil {
		return nil
	}
	return s.setLargeImage(ctx, item.ID, false)
}

// SetLargeImage marks the item as carrying a viewable pixel representation.
func (s *Store) SetLargeImage(ctx context.Context, item *Item) error {
	if item == nil {
		return nil
	}
	return s.setLargeImage(ctx, item.ID, true)
}

func (s *Store) setLargeImage(ctx context.Context, id string, value bool) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE items SET large_image = ?, updated_at = ? WHERE id = ?`,
		boolToInt(value), nowString(), id,
	); err != nil {
		return fmt.Errorf("update large image: %w", err)
	}
	return nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) mustReload(ctx context.Context, id string) (*Item, error) {
	item, err := s.LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %s disappeared", id)
	}
	return item, nil
}
