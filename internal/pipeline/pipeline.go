package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/alerting"
	"github.com/elite-command/refinery/internal/classify"
	"github.com/elite-command/refinery/internal/confidence"
	"github.com/elite-command/refinery/internal/lineage"
	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/normalize"
	"github.com/elite-command/refinery/internal/template"
)

// EntryResult is everything one processed entry produced. The store commits
// it atomically: records, scores, and lineage events land together or not
// at all.
type EntryResult struct {
	Entry   *model.RawEntry
	Records []model.Record
	Scores  []model.Score
	Events  []model.Event
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	ListPendingEntries(ctx context.Context, limit int) ([]model.RawEntry, error)
	GetEntry(ctx context.Context, id string) (*model.RawEntry, error)
	UpdateEntry(ctx context.Context, e *model.RawEntry) error
	GetThresholdForCompany(ctx context.Context, companyID string) (*model.Threshold, error)
	CommitEntryResult(ctx context.Context, res *EntryResult) error
}

// Pipeline orchestrates classify, resolve, normalize, score, lineage, and
// alert evaluation for raw entries. One value is constructed per run; it
// holds no hidden shared state beyond the resolver's template cache.
type Pipeline struct {
	store      Store
	classifier *classify.Classifier
	resolver   *template.Resolver
	normalizer *normalize.Normalizer
	scorer     *confidence.Scorer
	alerts     *alerting.Engine
}

// New assembles a pipeline from its stages.
func New(store Store, classifier *classify.Classifier, resolver *template.Resolver, normalizer *normalize.Normalizer, scorer *confidence.Scorer, alerts *alerting.Engine) *Pipeline {
	return &Pipeline{
		store:      store,
		classifier: classifier,
		resolver:   resolver,
		normalizer: normalizer,
		scorer:     scorer,
		alerts:     alerts,
	}
}

// BatchSummary reports the outcome of one batch run.
type BatchSummary struct {
	Processed int
	Skipped   int
	Failed    int
}

// ProcessBatch runs every pending entry sequentially. A failure on one entry
// marks it and moves on; the batch never aborts early.
func (p *Pipeline) ProcessBatch(ctx context.Context, limit int) (BatchSummary, error) {
	entries, err := p.store.ListPendingEntries(ctx, limit)
	if err != nil {
		return BatchSummary{}, eris.Wrap(err, "pipeline: list pending entries")
	}

	var sum BatchSummary
	for i := range entries {
		entry := entries[i]
		status, err := p.processOne(ctx, &entry)
		switch {
		case err != nil:
			sum.Failed++
			zap.L().Error("entry processing failed",
				zap.String("entry_id", entry.ID), zap.Error(err))
		case status == model.EntrySkipped:
			sum.Skipped++
		default:
			sum.Processed++
		}
	}

	zap.L().Info("batch complete",
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

// ProcessEntry runs the full pipeline for one entry by id.
func (p *Pipeline) ProcessEntry(ctx context.Context, entryID string) (*model.RawEntry, error) {
	entry, err := p.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load entry")
	}
	if entry == nil {
		return nil, eris.Errorf("pipeline: entry %s not found", entryID)
	}
	if entry.Status != model.EntryPending {
		return nil, eris.Errorf("pipeline: entry %s is %s, not pending", entryID, entry.Status)
	}
	if _, err := p.processOne(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Reprocess resets a terminal entry to pending and runs it again. The rerun
// appends a new lineage event; the old events are never touched.
func (p *Pipeline) Reprocess(ctx context.Context, entryID string) (*model.RawEntry, error) {
	entry, err := p.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load entry")
	}
	if entry == nil {
		return nil, eris.Errorf("pipeline: entry %s not found", entryID)
	}

	entry.Status = model.EntryPending
	entry.Error = ""
	entry.ProcessedAt = nil
	if err := p.store.UpdateEntry(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "pipeline: reset entry")
	}
	if _, err := p.processOne(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// processOne normalizes, scores, and commits a single entry. Panics inside
// normalization are converted to entry errors so one bad payload cannot take
// down a batch.
func (p *Pipeline) processOne(ctx context.Context, entry *model.RawEntry) (status model.ProcessingStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: panic processing entry %s: %v", entry.ID, r)
			p.markError(ctx, entry, fmt.Sprintf("panic: %v", r))
			status = model.EntryError
		}
	}()

	if len(entry.Fields) == 0 {
		entry.Status = model.EntrySkipped
		if uerr := p.store.UpdateEntry(ctx, entry); uerr != nil {
			return model.EntrySkipped, eris.Wrap(uerr, "pipeline: mark skipped")
		}
		return model.EntrySkipped, nil
	}

	if entry.DataType == "" {
		entry.DataType = p.classifier.Classify(entry.Fields)
	}

	tmpl, err := p.resolver.Resolve(ctx, entry.CompanyID)
	if err != nil {
		p.markError(ctx, entry, err.Error())
		return model.EntryError, err
	}

	start := time.Now()
	res, err := p.normalizer.Normalize(entry, tmpl)
	if err != nil {
		p.markError(ctx, entry, err.Error())
		return model.EntryError, err
	}
	elapsed := time.Since(start)

	result, err := p.assemble(ctx, entry, tmpl, res, elapsed)
	if err != nil {
		p.markError(ctx, entry, err.Error())
		return model.EntryError, err
	}

	if err := p.store.CommitEntryResult(ctx, result); err != nil {
		p.markError(ctx, entry, err.Error())
		return model.EntryError, eris.Wrap(err, "pipeline: commit entry result")
	}

	// Alerts are observational; failures log and never fail the entry.
	for i := range result.Scores {
		if _, aerr := p.alerts.Evaluate(ctx, &result.Scores[i]); aerr != nil {
			zap.L().Warn("alert evaluation failed",
				zap.String("score_id", result.Scores[i].ID), zap.Error(aerr))
		}
	}
	return model.EntryProcessed, nil
}

// assemble builds the transactional result: lineage events, scored records,
// and the updated entry.
func (p *Pipeline) assemble(ctx context.Context, entry *model.RawEntry, tmpl *model.Template, res *normalize.Result, elapsed time.Duration) (*EntryResult, error) {
	var events []model.Event

	rootID := entry.LineageID
	if rootID == "" {
		root, err := lineage.NewEvent(lineage.EventSpec{
			CompanyID: entry.CompanyID,
			Type:      model.EventIngestion,
			SourceRef: entry.SourceID,
			OutputRef: entry.ID,
			Method:    entry.SourceID,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, *root)
		rootID = root.ID
		entry.LineageID = rootID
	}

	templateID := ""
	var fieldMap map[string]string
	if tmpl != nil {
		templateID = tmpl.ID
		fieldMap = tmpl.MetricMappings
	}
	normEvent, err := lineage.NewEvent(lineage.EventSpec{
		ParentID:  rootID,
		CompanyID: entry.CompanyID,
		Type:      model.EventNormalization,
		SourceRef: entry.ID,
		Method:    res.Method,
		Params: model.TransformParams{
			Version:    1,
			TemplateID: templateID,
			FieldMap:   fieldMap,
		},
		Duration: elapsed,
	})
	if err != nil {
		return nil, err
	}

	threshold, err := p.threshold(ctx, entry.CompanyID)
	if err != nil {
		return nil, err
	}

	var overrides map[model.FactorType]float64
	if tmpl != nil {
		overrides = tmpl.WeightOverrides
	}

	scores := make([]model.Score, 0, len(res.Records))
	var confSum float64
	for i := range res.Records {
		rec := &res.Records[i]
		rec.LineageID = normEvent.ID

		score, err := p.scorer.Score(ctx, confidence.Inputs{
			TargetID:            rec.ID,
			CompanyID:           entry.CompanyID,
			SourceComponent:     entry.SourceID,
			SourceTimestamp:     entry.SourceTimestamp,
			FieldCount:          len(entry.Fields),
			ExtractedCount:      len(res.Records),
			Method:              rec.Method,
			ProcessingTime:      elapsed,
			TemplateUsed:        tmpl != nil,
			TemplateSpecificity: specificity(tmpl, rec.CanonicalCode),
		}, overrides, threshold)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: score record")
		}
		scores = append(scores, *score)
		confSum += score.Overall
	}
	if len(scores) > 0 {
		normEvent.ConfidenceAfter = confSum / float64(len(scores))
	}
	events = append(events, *normEvent)

	now := time.Now().UTC()
	entry.Status = model.EntryProcessed
	entry.Error = ""
	entry.ProcessedAt = &now

	return &EntryResult{
		Entry:   entry,
		Records: res.Records,
		Scores:  scores,
		Events:  events,
	}, nil
}

func (p *Pipeline) threshold(ctx context.Context, companyID string) (model.Threshold, error) {
	th, err := p.store.GetThresholdForCompany(ctx, companyID)
	if err != nil {
		return model.Threshold{}, eris.Wrap(err, "pipeline: load threshold")
	}
	if th == nil {
		return model.DefaultThreshold(), nil
	}
	return *th, nil
}

// specificity rates how closely a template targets a metric: priority
// metrics score full, expected ones slightly under, anything else lower.
func specificity(tmpl *model.Template, code string) float64 {
	if tmpl == nil {
		return 0
	}
	for _, m := range tmpl.PriorityMetrics {
		if m == code {
			return 1.0
		}
	}
	for _, m := range tmpl.ExpectedMetrics {
		if m == code {
			return 0.95
		}
	}
	return 0.85
}

func (p *Pipeline) markError(ctx context.Context, entry *model.RawEntry, msg string) {
	entry.Status = model.EntryError
	entry.Error = msg
	if err := p.store.UpdateEntry(ctx, entry); err != nil {
		zap.L().Error("failed to mark entry error",
			zap.String("entry_id", entry.ID), zap.Error(err))
	}
}
