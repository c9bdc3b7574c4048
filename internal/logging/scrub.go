package logging

import (
	"context"
	"fmt"
	"log/slog"
)

// Keys whose values may hold protected health information read off slide
// labels or manifests. Every logger built by New masks them.
const (
	FieldLabelText      = "label_text"
	FieldMacroText      = "macro_text"
	FieldManifestRecord = "manifest_record"
)

var sensitiveKeys = map[string]bool{
	FieldLabelText:      true,
	FieldMacroText:      true,
	FieldManifestRecord: true,
}

// scrubHandler replaces sensitive attribute values with a size marker before
// the record reaches the wrapped handler.
type scrubHandler struct {
	next slog.Handler
}

func newScrubHandler(next slog.Handler) slog.Handler {
	return scrubHandler{next: next}
}

func (h scrubHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h scrubHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(scrubAttr(attr))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h scrubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		clean[i] = scrubAttr(attr)
	}
	return scrubHandler{next: h.next.WithAttrs(clean)}
}

func (h scrubHandler) WithGroup(name string) slog.Handler {
	return scrubHandler{next: h.next.WithGroup(name)}
}

func scrubAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		group := value.Group()
		clean := make([]any, len(group))
		for i, member := range group {
			clean[i] = scrubAttr(member)
		}
		return slog.Group(attr.Key, clean...)
	}
	if !sensitiveKeys[attr.Key] {
		return attr
	}
	return slog.String(attr.Key, mask(value))
}

func mask(value slog.Value) string {
	switch v := value.Any().(type) {
	case []string:
		return fmt.Sprintf("[redacted %d values]", len(v))
	case map[string]string:
		return fmt.Sprintf("[redacted %d fields]", len(v))
	case map[string]any:
		return fmt.Sprintf("[redacted %d fields]", len(v))
	case string:
		return fmt.Sprintf("[redacted %d chars]", len(v))
	default:
		return "[redacted]"
	}
}
