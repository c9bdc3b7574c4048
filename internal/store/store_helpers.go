package store

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/text/cases"
)

const folderColumns = "id, name, parent_id, parent_type, base_parent_type, base_parent_id, creator_id, created_at, updated_at"

const itemColumns = "id, name, folder_id, base_parent_type, base_parent_id, creator_id, large_image, meta_json, created_at, updated_at"

const fileColumns = "id, item_id, name, size, mime_type, path, kind, created_at"

type scanner interface{ Scan(dest ...any) error }

func scanFolder(row scanner) (*Folder, error) {
	var (
		f          Folder
		creator    sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&f.ID, &f.Name, &f.ParentID, &f.ParentType, &f.BaseParentType, &f.BaseParentID,
		&creator, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	f.CreatorID = creator.String
	f.CreatedAt, _ = parseTimeString(createdRaw)
	f.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &f, nil
}

func scanItem(row scanner) (*Item, error) {
	var (
		item       Item
		creator    sql.NullString
		largeImage int
		metaRaw    string
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&item.ID, &item.Name, &item.FolderID, &item.BaseParentType, &item.BaseParentID,
		&creator, &largeImage, &metaRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(metaRaw)
	if err != nil {
		return nil, err
	}
	item.Meta = meta
	item.CreatorID = creator.String
	item.LargeImage = largeImage != 0
	item.CreatedAt, _ = parseTimeString(createdRaw)
	item.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &item, nil
}

func scanFile(row scanner) (*File, error) {
	var (
		f          File
		mime       sql.NullString
		createdRaw string
	)
	if err := row.Scan(&f.ID, &f.ItemID, &f.Name, &f.Size, &mime, &f.Path, &f.Kind, &createdRaw); err != nil {
		return nil, err
	}
	f.MimeType = mime.String
	f.CreatedAt, _ = parseTimeString(createdRaw)
	return &f, nil
}

// lowerName case-folds a display name for sorting and lookups.
func lowerName(name string) string {
	return cases.Fold().String(name)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// jsonKeyPath builds a JSON path selecting a top-level key verbatim.
func jsonKeyPath(key string) string {
	escaped := make([]byte, 0, len(key)+4)
	escaped = append(escaped, '$', '.', '"')
	for i := 0; i < len(key); i++ {
		if key[i] == '"' || key[i] == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, key[i])
	}
	escaped = append(escaped, '"')
	return string(escaped)
}
