// Package manifest reads upload spreadsheets and converts their rows to and
// from the `wsi_uploadInfo` metadata shape stored on unfiled items.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// TokenOnlyPrefix marks upload-info keys synthesized for rows that name a
// token but no image.
const TokenOnlyPrefix = "__token_only__"

// Record is one manifest row. ImageID may carry TokenOnlyPrefix.
type Record struct {
	ImageID string
	TokenID string
	Fields  map[string]string
}

// TokenOnly reports whether the record was synthesized from a token alone.
func (r Record) TokenOnly() bool {
	return strings.HasPrefix(r.ImageID, TokenOnlyPrefix)
}

// BaseImageID strips TokenOnlyPrefix.
func (r Record) BaseImageID() string {
	return strings.TrimPrefix(r.ImageID, TokenOnlyPrefix)
}

// Records indexes manifest rows by image identifier.
type Records map[string]Record

// Keys returns the image identifiers in sorted order.
func (rs Records) Keys() []string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Meta converts the records into the stored `wsi_uploadInfo` value.
func (rs Records) Meta() map[string]any {
	out := make(map[string]any, len(rs))
	for key, rec := range rs {
		out[key] = rec.meta()
	}
	return out
}

func (r Record) meta() map[string]any {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return map[string]any{
		"TokenID": r.TokenID,
		"ImageID": r.BaseImageID(),
		"fields":  fields,
	}
}

// FieldsMeta returns the record's manifest fields in `deidUpload` form.
func (r Record) FieldsMeta() map[string]any {
	return r.meta()["fields"].(map[string]any)
}

// FromMeta parses a stored `wsi_uploadInfo` value. Malformed entries are
// skipped.
func FromMeta(value map[string]any) Records {
	out := make(Records, len(value))
	for key, raw := range value {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rec := Record{ImageID: key, Fields: map[string]string{}}
		if token, ok := entry["TokenID"].(string); ok {
			rec.TokenID = token
		}
		if fields, ok := entry["fields"].(map[string]any); ok {
			for k, v := range fields {
				rec.Fields[k] = fmt.Sprint(v)
			}
		}
		out[key] = rec
	}
	return out
}

// Columns names the manifest columns carrying identifiers.
type Columns struct {
	Token string
	Image string
}

// ReadFile parses a CSV manifest.
func ReadFile(path string, cols Columns) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	records, err := Read(f, cols)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return records, nil
}

// Read parses CSV rows with a header line. Rows without a token are
// skipped; rows without an image identifier become token-only records.
func Read(r io.Reader, cols Columns) ([]Record, error) {
	if cols.Token == "" {
		cols.Token = "TokenID"
	}
	if cols.Image == "" {
		cols.Image = "ImageID"
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			fields[name] = strings.TrimSpace(row[i])
		}
		token := fields[cols.Token]
		if token == "" {
			continue
		}
		image := fields[cols.Image]
		if image == "" {
			image = TokenOnlyPrefix + token
		}
		records = append(records, Record{ImageID: image, TokenID: token, Fields: fields})
	}
	return records, nil
}

// Index keys records by image identifier; later rows replace earlier ones.
func Index(records []Record) Records {
	out := make(Records, len(records))
	for _, rec := range records {
		out[rec.ImageID] = rec
	}
	return out
}
