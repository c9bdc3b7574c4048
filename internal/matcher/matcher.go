// Package matcher resolves which manifest record an uploaded image belongs
// to from the number of label words each candidate shares with the record.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/manifest"
	"wsideid/internal/redactspec"
	"wsideid/internal/store"
)

// Candidate pairs an item with the number of words it shares with a record.
type Candidate struct {
	ItemID           string
	MatchedWordCount int
}

// FindBestMatch raises a minimum word-count threshold from 1 until at most
// one candidate survives. Ties that never separate yield no match.
func FindBestMatch(candidates []Candidate) (string, bool) {
	current := append([]Candidate(nil), candidates...)
	minimum := 1
	for len(current) > 1 {
		minimum++
		kept := current[:0]
		for _, c := range current {
			if c.MatchedWordCount >= minimum {
				kept = append(kept, c)
			}
		}
		current = kept
	}
	if len(current) == 1 {
		return current[0].ItemID, true
	}
	return "", false
}

// Progress receives human-readable progress lines, typically a job log.
// It may be called from several goroutines at once.
type Progress func(line string)

// Filed describes one image copied into the ingest tree.
type Filed struct {
	ImageID      string
	TokenID      string
	SourceItemID string
	ItemID       string
	Name         string
}

// Report summarizes one matching pass.
type Report struct {
	Filed     []Filed
	Unmatched []string
	Ambiguous []string
}

// Matcher files matched images into the ingest folder.
type Matcher struct {
	machine *lifecycle.Machine
	logger  *slog.Logger
}

// New constructs a matcher backed by the lifecycle machine's store.
func New(machine *lifecycle.Machine, logger *slog.Logger) *Matcher {
	return &Matcher{machine: machine, logger: logging.NewComponentLogger(logger, "matcher")}
}

// MatchImagesToUploadRecords copies each uniquely matched item into
// ingest/{TokenID} as {ImageID}.{ext} carrying the record's fields and a
// standard redact list. Unmatched and tied image ids are reported and left
// for manual handling.
func (m *Matcher) MatchImagesToUploadRecords(ctx context.Context, imageIDToCandidates map[string][]Candidate, records manifest.Records, user string, progress Progress) (Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	var report Report
	ingest, err := m.machine.RoleFolder(ctx, lifecycle.RoleIngest)
	if err != nil {
		return report, err
	}
	st := m.machine.Store()

	imageIDs := make([]string, 0, len(imageIDToCandidates))
	for id := range imageIDToCandidates {
		imageIDs = append(imageIDs, id)
	}
	sort.Strings(imageIDs)

	for _, imageID := range imageIDs {
		candidates := imageIDToCandidates[imageID]
		record, ok := records[imageID]
		if !ok {
			continue
		}
		best, ok := FindBestMatch(candidates)
		if !ok {
			var line string
			if len(candidates) == 0 {
				line = fmt.Sprintf("No items could be matched via OCR with ImageID %s.", imageID)
				report.Unmatched = append(report.Unmatched, imageID)
			} else {
				line = fmt.Sprintf("More than one item matched via OCR with ImageID %s.", imageID)
				report.Ambiguous = append(report.Ambiguous, imageID)
			}
			progress(line)
			m.logger.Info(line,
				logging.String("image_id", imageID),
				logging.Int("candidates", len(candidates)),
				logging.String(logging.FieldEventType, "match_skipped"),
			)
			continue
		}

		item, err := st.LoadItem(ctx, best)
		if err != nil {
			return report, err
		}
		if item == nil {
			progress(fmt.Sprintf("Matched item %s for ImageID %s no longer exists.", best, imageID))
			report.Unmatched = append(report.Unmatched, imageID)
			continue
		}
		parent, err := st.CreateFolder(ctx, ingest, record.TokenID, user, true)
		if err != nil {
			return report, err
		}
		newName := imageID + "." + extension(item.Name)
		copied, err := st.CopyItem(ctx, item, user, parent, newName)
		if err != nil {
			return report, err
		}
		progress(fmt.Sprintf("Copied item %s to folder %s as %s", item.Name, parent.Name, newName))

		if _, err := st.SetMetadata(ctx, copied, store.Metadata{
			lifecycle.MetaDeidUpload: record.FieldsMeta(),
			lifecycle.MetaRedactList: redactspec.Standard(imageID, newName),
		}); err != nil {
			return report, err
		}
		report.Filed = append(report.Filed, Filed{
			ImageID:      imageID,
			TokenID:      record.TokenID,
			SourceItemID: item.ID,
			ItemID:       copied.ID,
			Name:         newName,
		})
		m.logger.Info("image matched to upload record",
			logging.String("image_id", imageID),
			logging.String("token_id", record.TokenID),
			logging.String(logging.FieldItemID, copied.ID),
			logging.String(logging.FieldEventType, "match_filed"),
		)
	}
	return report, nil
}

// extension mirrors a split on the last dot; names without one are used whole.
func extension(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
