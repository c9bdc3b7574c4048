package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"wsideid/internal/config"
	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/manifest"
	"wsideid/internal/matcher"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

// Label text metadata keys. Only the label is scanned; an item carrying
// either key counts as scanned.
const (
	MetaLabelOCR = "label_ocr"
	MetaMacroOCR = "macro_ocr"
)

var tracer = otel.Tracer("wsideid/ocr")

// Orchestrator runs OCR across items and matches the results to manifests.
type Orchestrator struct {
	cfg      *config.Config
	machine  *lifecycle.Machine
	engine   Engine
	matcher  *matcher.Matcher
	logger   *slog.Logger
	duration prometheus.Observer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithDurationObserver records the wall time of every recognition.
func WithDurationObserver(obs prometheus.Observer) Option {
	return func(o *Orchestrator) {
		o.duration = obs
	}
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(cfg *config.Config, machine *lifecycle.Machine, engine Engine, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		machine: machine,
		engine:  engine,
		matcher: matcher.New(machine, logger),
		logger:  logging.NewComponentLogger(logger, "ocr"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FindLabelText recognizes the label text of item and records it in the
// item's metadata.
func (o *Orchestrator) FindLabelText(ctx context.Context, item *store.Item) ([]string, error) {
	st := o.machine.Store()
	source, err := st.SourceFile(ctx, item)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, services.Wrap(services.ErrNotFound, "ocr", "find label text", "item "+item.Name+" has no image file", nil)
	}

	started := time.Now()
	tokens, err := o.engine.RecognizeText(ctx, Region{ItemID: item.ID, Name: item.Name, Path: st.FilePath(source)})
	if o.duration != nil {
		o.duration.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return nil, err
	}
	if _, err := st.SetMetadata(ctx, item, store.Metadata{MetaLabelOCR: strings.Join(tokens, " ")}); err != nil {
		return tokens, err
	}
	return tokens, nil
}

// RunBatch recognizes every item concurrently and returns the token lists in
// the order of ids. Items that fail yield an empty list.
func (o *Orchestrator) RunBatch(ctx context.Context, ids []string, progress matcher.Progress) [][]string {
	if progress == nil {
		progress = func(string) {}
	}
	ctx, span := tracer.Start(ctx, "ocr.RunBatch")
	span.SetAttributes(attribute.Int("ocr.items", len(ids)))
	defer span.End()

	return iter.Map(ids, func(id *string) []string {
		return o.labelTextForItem(ctx, *id, progress)
	})
}

func (o *Orchestrator) labelTextForItem(ctx context.Context, id string, progress matcher.Progress) []string {
	ctx = services.WithItemID(ctx, id)
	logger := logging.WithContext(ctx, o.logger)

	item, err := o.machine.Store().LoadItem(ctx, id)
	if err != nil || item == nil {
		progress(fmt.Sprintf("Failed to load item %s; %v", id, err))
		logging.WarnWithContext(logger, "ocr item unavailable", "ocr_item_missing", logging.Error(err))
		return nil
	}
	progress(fmt.Sprintf("Finding label text for file: %s.", item.Name))
	tokens, err := o.FindLabelText(ctx, item)
	if err != nil {
		progress(fmt.Sprintf("Failed to process file %s; %v", item.Name, err))
		logging.WarnWithContext(logger, "label text recognition failed", "ocr_failed",
			logging.String("name", item.Name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the OCR command and the image file"),
		)
		return nil
	}
	logger.Debug("label text recognized",
		logging.String("name", item.Name),
		logging.Int("tokens", len(tokens)),
		logging.Strings(logging.FieldLabelText, tokens),
	)
	if len(tokens) > 0 {
		progress(fmt.Sprintf("Found label text for file %s: %s.", item.Name, strings.Join(tokens, " ")))
	} else {
		progress(fmt.Sprintf("Could not find label text for file %s.", item.Name))
	}
	return tokens
}

// FilterTokens drops single-character tokens, which match far too often.
func FilterTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if utf8.RuneCountInString(token) > 1 {
			out = append(out, token)
		}
	}
	return out
}

// AssociateUnfiled recognizes the given unfiled items and files every item
// that uniquely matches a manifest record. The matched-word count for a
// record and an item is the number of distinct values of the configured
// association columns found among the item's filtered tokens. Every item
// stays in the in-flight registry until its copy and metadata are written.
func (o *Orchestrator) AssociateUnfiled(ctx context.Context, ids []string, records manifest.Records, user string, progress matcher.Progress) (matcher.Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	ctx, span := tracer.Start(ctx, "ocr.AssociateUnfiled")
	defer span.End()

	release, err := o.machine.Registry().AcquireAll(ctx, ids)
	if err != nil {
		return matcher.Report{}, err
	}
	defer release()

	candidates := make(map[string][]matcher.Candidate, len(records))
	for key := range records {
		candidates[key] = nil
	}

	labelText := o.RunBatch(ctx, ids, progress)
	columns := o.cfg.Import.TextAssociationColumns
	keys := records.Keys()
	for idx, id := range ids {
		tokens := toSet(FilterTokens(labelText[idx]))
		var matchedRecords []string
		if len(tokens) > 0 {
			for _, key := range keys {
				count := 0
				for value := range matchableText(records[key], columns) {
					if _, ok := tokens[value]; ok {
						count++
					}
				}
				if count > 0 {
					candidates[key] = append(candidates[key], matcher.Candidate{ItemID: id, MatchedWordCount: count})
					matchedRecords = append(matchedRecords, key)
				}
			}
		}
		if len(matchedRecords) > 0 {
			progress(fmt.Sprintf("%s matched to ImageIDs %v.", id, matchedRecords))
		} else {
			progress(fmt.Sprintf("Unable to find a match for %s.", id))
		}
	}

	report, err := o.matcher.MatchImagesToUploadRecords(ctx, candidates, records, user, progress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	span.SetAttributes(
		attribute.Int("ocr.filed", len(report.Filed)),
		attribute.Int("ocr.ambiguous", len(report.Ambiguous)),
	)
	return report, nil
}

func matchableText(rec manifest.Record, columns []string) map[string]struct{} {
	values := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		if v, ok := rec.Fields[column]; ok {
			values[v] = struct{}{}
		}
	}
	return values
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
