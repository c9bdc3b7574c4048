package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Parent types for folders and item base parents.
const (
	ParentFolder     = "folder"
	ParentCollection = "collection"
)

// File kinds.
const (
	FileSource    = "source"
	FileThumbnail = "thumbnail"
)

// Folder is a node in the hierarchy. Root folders have a collection parent.
type Folder struct {
	ID             string
	Name           string
	ParentID       string
	ParentType     string
	BaseParentType string
	BaseParentID   string
	CreatorID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsRoot reports whether the folder sits directly under a collection.
func (f *Folder) IsRoot() bool {
	return f != nil && f.ParentType != ParentFolder
}

// Metadata is an item's free-form metadata map. Numbers decode as
// json.Number so stored values re-encode unchanged.
type Metadata map[string]any

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		out := make(Metadata, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	out, err := decodeMetadata(string(raw))
	if err != nil {
		return Metadata{}
	}
	return out
}

// String returns the string value stored under key.
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Map returns the object stored under key, or nil.
func (m Metadata) Map(key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// List returns the array stored under key, or nil.
func (m Metadata) List(key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Item is a logical image record.
type Item struct {
	ID             string
	Name           string
	FolderID       string
	BaseParentType string
	BaseParentID   string
	CreatorID      string
	LargeImage     bool
	Meta           Metadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// File is one stored file attached to an item.
type File struct {
	ID        string
	ItemID    string
	Name      string
	Size      int64
	MimeType  string
	Path      string
	Kind      string
	CreatedAt time.Time
}

// ItemQuery filters and pages child items of a folder.
type ItemQuery struct {
	// MissingMeta keeps only items lacking every listed metadata key.
	MissingMeta []string
	// HasMeta keeps only items carrying every listed metadata key.
	HasMeta []string
	Sort    SortOrder
	Limit   int
	Offset  int
}

// SortOrder selects child item ordering.
type SortOrder string

const (
	SortLowerName SortOrder = "lowerName"
	SortCreated   SortOrder = "created"
	SortUpdated   SortOrder = "updated"
)

func decodeMetadata(raw string) (Metadata, error) {
	meta := Metadata{}
	if raw == "" {
		return meta, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta == nil {
		meta = Metadata{}
	}
	return meta, nil
}

func encodeMetadata(meta Metadata) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}
