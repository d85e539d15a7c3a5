// Package store persists refinery state. Two implementations exist: SQLite
// for single-node CLI use and Postgres for shared deployments. Aggregates
// are stored as JSON payloads alongside the columns queries filter on.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/elite-command/refinery/internal/alerting"
	"github.com/elite-command/refinery/internal/confidence"
	"github.com/elite-command/refinery/internal/correction"
	"github.com/elite-command/refinery/internal/ingest"
	"github.com/elite-command/refinery/internal/lineage"
	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/pipeline"
	"github.com/elite-command/refinery/internal/template"
)

// AlertFilter narrows alert listings.
type AlertFilter struct {
	CompanyID string            `json:"company_id,omitempty"`
	Status    model.AlertStatus `json:"status,omitempty"`
	Level     model.Level       `json:"level,omitempty"`
	Limit     int               `json:"limit,omitempty"`
}

// Store is the full persistence surface. It satisfies the narrow interfaces
// each subsystem declares for itself (pipeline.Store, lineage.Store,
// alerting.Store, correction.Store, template resolution, ingest) plus the
// confidence scorer's evidence provider.
type Store interface {
	// Companies
	SaveCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context) ([]model.Company, error)

	// Templates and assignments
	SaveTemplate(ctx context.Context, t *model.Template) error
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	FindActiveTemplateByModel(ctx context.Context, bm model.BusinessModelType) (*model.Template, error)
	SaveAssignment(ctx context.Context, a *model.TemplateAssignment) error
	GetActiveAssignment(ctx context.Context, companyID string) (*model.TemplateAssignment, error)

	// Raw entries
	SaveEntry(ctx context.Context, e *model.RawEntry) error
	GetEntry(ctx context.Context, id string) (*model.RawEntry, error)
	UpdateEntry(ctx context.Context, e *model.RawEntry) error
	ListPendingEntries(ctx context.Context, limit int) ([]model.RawEntry, error)

	// Records
	SaveRecord(ctx context.Context, rec *model.Record) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	UpdateRecord(ctx context.Context, rec *model.Record) error
	ListRecordsByEntry(ctx context.Context, entryID string) ([]model.Record, error)
	CountDownstreamRecords(ctx context.Context, targetID string) (int, error)

	// Confidence scores
	SaveScore(ctx context.Context, sc *model.Score) error
	GetScore(ctx context.Context, id string) (*model.Score, error)
	LatestScoreForTarget(ctx context.Context, targetID string) (*model.Score, error)

	// Lineage
	AppendEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListChildEvents(ctx context.Context, parentID string) ([]model.Event, error)
	GetCachedGraph(ctx context.Context, rootID string, direction model.GraphDirection, depth int) (*model.Graph, error)
	SaveCachedGraph(ctx context.Context, g *model.Graph) error

	// Thresholds and alerts
	SaveThreshold(ctx context.Context, th *model.Threshold) error
	GetThresholdForCompany(ctx context.Context, companyID string) (*model.Threshold, error)
	ListApplicableThresholds(ctx context.Context, companyID string) ([]model.Threshold, error)
	SaveAlert(ctx context.Context, a *model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	UpdateAlert(ctx context.Context, a *model.Alert) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error)

	// Corrections, workflows, annotations
	SaveCorrection(ctx context.Context, c *model.Correction) error
	GetCorrection(ctx context.Context, id string) (*model.Correction, error)
	UpdateCorrection(ctx context.Context, c *model.Correction) error
	ListCorrections(ctx context.Context, f correction.Filter) ([]model.Correction, error)
	ListCorrectionsSince(ctx context.Context, companyID string, since time.Time) ([]model.Correction, error)
	SaveWorkflow(ctx context.Context, w *model.Workflow) error
	ListWorkflows(ctx context.Context, companyID string) ([]model.Workflow, error)
	SaveAnnotation(ctx context.Context, a *model.Annotation) error
	ListAnnotations(ctx context.Context, targetID string) ([]model.Annotation, error)

	// Pipeline commit: entry, records, scores, and events land atomically.
	CommitEntryResult(ctx context.Context, res *pipeline.EntryResult) error

	// Evidence for the confidence scorer
	ValidationConsensus(ctx context.Context, targetID string) (float64, bool, error)
	HistoricalPerformance(ctx context.Context, companyID, method string) (float64, bool, error)
	CrossValidation(ctx context.Context, targetID string) (float64, bool, error)
	SourceErrorRate(ctx context.Context, companyID, source string) (float64, bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Compile-time checks that both backends satisfy the full surface and that
// the full surface still covers what each subsystem asks for.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)

	_ pipeline.Store              = Store(nil)
	_ correction.Store            = Store(nil)
	_ lineage.Store               = Store(nil)
	_ alerting.Store              = Store(nil)
	_ template.Store              = Store(nil)
	_ ingest.Store                = Store(nil)
	_ confidence.EvidenceProvider = Store(nil)
)

// graphCacheKey builds the lookup key for a materialized lineage graph.
func graphCacheKey(rootID string, direction model.GraphDirection, depth int) string {
	return rootID + "|" + string(direction) + "|" + strconv.Itoa(depth)
}
