package redaction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"wsideid/internal/lifecycle"
	"wsideid/internal/store"
)

// AuditEntry is one element of an item's append-only `redacted` history.
type AuditEntry struct {
	User            *string        `json:"user"`
	Time            string         `json:"time"`
	OriginalSize    int64          `json:"originalSize"`
	RedactedSize    int64          `json:"redactedSize"`
	RedactList      any            `json:"redactList"`
	Details         map[string]any `json:"details"`
	Version         string         `json:"version"`
	PreviousExports map[string]any `json:"previousExports"`
}

func (e AuditEntry) toMeta() (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode audit entry: %w", err)
	}
	out := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode audit entry: %w", err)
	}
	return out, nil
}

// History decodes the item's redaction history, oldest first.
func History(item *store.Item) ([]AuditEntry, error) {
	list := item.Meta.List(lifecycle.MetaRedacted)
	if len(list) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	var entries []AuditEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode redaction history: %w", err)
	}
	return entries, nil
}
