package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"wsideid/internal/fileutil"
)

// UploadFile streams r into the assetstore as the item's source file.
func (s *Store) UploadFile(ctx context.Context, r io.Reader, size int64, name string, item *Item, mimeType string) (*File, error) {
	return s.upload(ctx, r, size, name, item, mimeType, FileSource)
}

// UploadThumbnail stores a cached thumbnail for the item.
func (s *Store) UploadThumbnail(ctx context.Context, r io.Reader, size int64, name string, item *Item, mimeType string) (*File, error) {
	return s.upload(ctx, r, size, name, item, mimeType, FileThumbnail)
}

func (s *Store) upload(ctx context.Context, r io.Reader, size int64, name string, item *Item, mimeType, kind string) (*File, error) {
	if item == nil {
		return nil, errors.New("upload: item required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("upload: name required")
	}
	id := uuid.NewString()
	rel := filepath.Join(id[:2], id[2:4], id)
	abs := filepath.Join(s.assetDir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("upload: create asset dir: %w", err)
	}
	out, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("upload: create asset: %w", err)
	}
	written, err := io.Copy(out, r)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("size mismatch: expected %d bytes, received %d", size, written)
	}
	if err != nil {
		_ = os.Remove(abs)
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	if _, err := s.execWithRetry(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, item.ID, name, written, nullableString(mimeType), rel, kind, nowString(),
	); err != nil {
		_ = os.Remove(abs)
		return nil, fmt.Errorf("record file: %w", err)
	}
	return &File{ID: id, ItemID: item.ID, Name: name, Size: written, MimeType: mimeType, Path: rel, Kind: kind}, nil
}

// ItemFiles lists an item's files. An empty kind returns every file.
func (s *Store) ItemFiles(ctx context.Context, item *Item, kind string) ([]*File, error) {
	if item == nil {
		return nil, nil
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE item_id = ?`
	args := []any{item.ID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("item files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FilePath resolves a file's location on disk.
func (s *Store) FilePath(f *File) string {
	if f == nil {
		return ""
	}
	return filepath.Join(s.assetDir, f.Path)
}

// SourceFile returns the item's first source file, or nil.
func (s *Store) SourceFile(ctx context.Context, item *Item) (*File, error) {
	files, err := s.ItemFiles(ctx, item, FileSource)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return files[0], nil
}

// RemoveFiles deletes the item's source files and reports their combined
// size. Cached thumbnails are left in place.
func (s *Store) RemoveFiles(ctx context.Context, item *Item) (int64, error) {
	return s.removeFiles(ctx, item, FileSource)
}

// RemoveThumbnails deletes cached thumbnails so they regenerate on demand.
func (s *Store) RemoveThumbnails(ctx context.Context, item *Item) (int64, error) {
	return s.removeFiles(ctx, item, FileThumbnail)
}

func (s *Store) removeFiles(ctx context.Context, item *Item, kind string) (int64, error) {
	files, err := s.ItemFiles(ctx, item, kind)
	if err != nil {
		return 0, err
	}
	var sourceBytes int64
	for _, f := range files {
		if _, err := s.execWithRetry(ctx, `DELETE FROM files WHERE id = ?`, f.ID); err != nil {
			return sourceBytes, fmt.Errorf("remove file %s: %w", f.ID, err)
		}
		if err := os.Remove(s.FilePath(f)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return sourceBytes, fmt.Errorf("remove asset %s: %w", f.Path, err)
		}
		if f.Kind == FileSource {
			sourceBytes += f.Size
		}
	}
	return sourceBytes, nil
}

func (s *Store) copyFile(ctx context.Context, src *File, dest *Item) (*File, error) {
	id := uuid.NewString()
	rel := filepath.Join(id[:2], id[2:4], id)
	abs := filepath.Join(s.assetDir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	if _, err := fileutil.CopyFileVerified(s.FilePath(src), abs); err != nil {
		return nil, err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, dest.ID, src.Name, src.Size, nullableString(src.MimeType), rel, src.Kind, nowString(),
	); err != nil {
		_ = os.Remove(abs)
		return nil, err
	}
	return &File{ID: id, ItemID: dest.ID, Name: src.Name, Size: src.Size, MimeType: src.MimeType, Path: rel, Kind: src.Kind}, nil
}
