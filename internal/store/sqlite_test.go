package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elite-command/refinery/internal/correction"
	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/pipeline"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_CompanyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme", Description: "SaaS platform", BusinessModel: model.ModelSaaS}
	require.NoError(t, s.SaveCompany(ctx, c))
	require.NotEmpty(t, c.ID)

	got, err := s.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, model.ModelSaaS, got.BusinessModel)

	missing, err := s.GetCompany(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_TemplateAndAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tmpl := &model.Template{
		Name: "SaaS", BusinessModel: model.ModelSaaS,
		ExpectedMetrics: []string{"mrr", "arr"},
		MetricMappings:  map[string]string{"monthly_revenue": "mrr"},
		Active:          true, Version: "1",
	}
	require.NoError(t, s.SaveTemplate(ctx, tmpl))

	found, err := s.FindActiveTemplateByModel(ctx, model.ModelSaaS)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tmpl.ID, found.ID)
	assert.Equal(t, "mrr", found.MetricMappings["monthly_revenue"])

	none, err := s.FindActiveTemplateByModel(ctx, model.ModelFintech)
	require.NoError(t, err)
	assert.Nil(t, none)

	// Second assignment deactivates the first.
	a1 := &model.TemplateAssignment{CompanyID: "co-1", TemplateID: tmpl.ID, AssignedBy: "system", Active: true}
	require.NoError(t, s.SaveAssignment(ctx, a1))
	a2 := &model.TemplateAssignment{CompanyID: "co-1", TemplateID: tmpl.ID, AssignedBy: "admin", Active: true}
	require.NoError(t, s.SaveAssignment(ctx, a2))

	active, err := s.GetActiveAssignment(ctx, "co-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, a2.ID, active.ID)
	assert.Equal(t, "admin", active.AssignedBy)
}

func TestSQLite_EntryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &model.RawEntry{
		CompanyID: "co-1", SourceID: "webhook",
		Fields: map[string]any{"mrr": 5000.0},
		Status: model.EntryPending,
	}
	require.NoError(t, s.SaveEntry(ctx, e))

	pending, err := s.ListPendingEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 5000.0, pending[0].Fields["mrr"])

	e.Status = model.EntryProcessed
	require.NoError(t, s.UpdateEntry(ctx, e))

	pending, err = s.ListPendingEntries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryProcessed, got.Status)

	err = s.UpdateEntry(ctx, &model.RawEntry{ID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_RecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &model.Record{
		EntryID: "e-1", CompanyID: "co-1",
		OriginalField: "mrr", OriginalValue: "5000",
		CanonicalCode:   "mrr",
		NormalizedValue: model.NumberValue(5000),
		Method:          "template_saas",
		Confidence:      0.9,
		ValidationStatus: model.ValidationPassed,
	}
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5000.0, got.NormalizedValue.Number)

	got.HumanVerified = true
	got.Confidence = 0.95
	require.NoError(t, s.UpdateRecord(ctx, got))

	again, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, again.HumanVerified)
	assert.InDelta(t, 0.95, again.Confidence, 1e-9)

	byEntry, err := s.ListRecordsByEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Len(t, byEntry, 1)
}

func TestSQLite_ScoreLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &model.Score{TargetID: "r-1", CompanyID: "co-1", Overall: 0.5, Level: model.LevelLow,
		CreatedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, s.SaveScore(ctx, old))
	newer := &model.Score{TargetID: "r-1", CompanyID: "co-1", Overall: 0.8, Level: model.LevelMedium}
	require.NoError(t, s.SaveScore(ctx, newer))

	latest, err := s.LatestScoreForTarget(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 0.8, latest.Overall, 1e-9)

	byID, err := s.GetScore(ctx, old.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, byID.Overall, 1e-9)
}

func testEvent(parentID, companyID string, typ model.EventType) *model.Event {
	return &model.Event{
		ID:        uuid.New().String(),
		ParentID:  parentID,
		CompanyID: companyID,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSQLite_LineageEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root := testEvent("", "co-1", model.EventIngestion)
	require.NoError(t, s.AppendEvent(ctx, root))
	child := testEvent(root.ID, "co-1", model.EventNormalization)
	require.NoError(t, s.AppendEvent(ctx, child))

	// Append-only: re-inserting the same id fails.
	require.Error(t, s.AppendEvent(ctx, root))

	got, err := s.GetEvent(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ParentID)

	children, err := s.ListChildEvents(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestSQLite_GraphCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	g := &model.Graph{RootID: "ev-1", Direction: model.DirectionFull, Depth: 5,
		Version: "v1", GeneratedAt: time.Now().UTC(), ExpiresAt: &future}
	require.NoError(t, s.SaveCachedGraph(ctx, g))

	got, err := s.GetCachedGraph(ctx, "ev-1", model.DirectionFull, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got.Version)

	// Different parameters miss the cache.
	miss, err := s.GetCachedGraph(ctx, "ev-1", model.DirectionForward, 5)
	require.NoError(t, err)
	assert.Nil(t, miss)

	// Expired graphs miss too.
	past := time.Now().UTC().Add(-time.Minute)
	g.ExpiresAt = &past
	require.NoError(t, s.SaveCachedGraph(ctx, g))
	expired, err := s.GetCachedGraph(ctx, "ev-1", model.DirectionFull, 5)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestSQLite_ThresholdScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	global := model.DefaultThreshold()
	global.ID = "th-global"
	require.NoError(t, s.SaveThreshold(ctx, &global))

	company := model.DefaultThreshold()
	company.ID = "th-co"
	company.CompanyID = "co-1"
	company.Medium = 0.75
	require.NoError(t, s.SaveThreshold(ctx, &company))

	got, err := s.GetThresholdForCompany(ctx, "co-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "th-co", got.ID)

	other, err := s.GetThresholdForCompany(ctx, "co-2")
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, "th-global", other.ID)

	applicable, err := s.ListApplicableThresholds(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, applicable, 2)
	assert.Equal(t, "th-co", applicable[0].ID, "company threshold sorts first")
}

func TestSQLite_AlertLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &model.Alert{
		ID: uuid.New().String(), ScoreID: "sc-1", CompanyID: "co-1",
		Level: model.LevelCritical, Status: model.AlertActive,
		Message: "confidence 0.25 breached critical cut", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveAlert(ctx, a))

	active, err := s.ListAlerts(ctx, AlertFilter{CompanyID: "co-1", Status: model.AlertActive})
	require.NoError(t, err)
	require.Len(t, active, 1)

	a.Status = model.AlertAcknowledged
	a.AcknowledgedBy = "analyst"
	require.NoError(t, s.UpdateAlert(ctx, a))

	active, err = s.ListAlerts(ctx, AlertFilter{CompanyID: "co-1", Status: model.AlertActive})
	require.NoError(t, err)
	assert.Empty(t, active)

	got, err := s.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "analyst", got.AcknowledgedBy)
}

func TestSQLite_CorrectionsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(status model.CorrectionStatus, impact model.Impact, age time.Duration) *model.Correction {
		c := &model.Correction{
			ID: uuid.New().String(), TargetID: "r-1", CompanyID: "co-1",
			Type: model.CorrectValue, ProposedValue: "1", Reason: "typo",
			Status: status, BusinessImpact: impact, SubmittedBy: "analyst",
			CreatedAt: time.Now().UTC().Add(-age),
		}
		require.NoError(t, s.SaveCorrection(ctx, c))
		return c
	}
	mk(model.CorrectionPending, model.ImpactHigh, 2*time.Hour)
	mk(model.CorrectionApproved, model.ImpactLow, time.Hour)
	mk(model.CorrectionPending, model.ImpactLow, 0)

	pending, err := s.ListCorrections(ctx, correction.Filter{CompanyID: "co-1", Status: model.CorrectionPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	high, err := s.ListCorrections(ctx, correction.Filter{Impact: model.ImpactHigh})
	require.NoError(t, err)
	assert.Len(t, high, 1)

	recent, err := s.ListCorrectionsSince(ctx, "co-1", time.Now().UTC().Add(-90*time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSQLite_Workflows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w1 := &model.Workflow{Name: "company specific", CompanyID: "co-1", Priority: 2, Active: true}
	w2 := &model.Workflow{Name: "global", Priority: 1, Active: true}
	require.NoError(t, s.SaveWorkflow(ctx, w1))
	require.NoError(t, s.SaveWorkflow(ctx, w2))

	got, err := s.ListWorkflows(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "global", got[0].Name, "ordered by ascending priority")

	other, err := s.ListWorkflows(ctx, "co-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSQLite_Annotations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &model.Annotation{
		ID: uuid.New().String(), TargetID: "r-1", CompanyID: "co-1",
		Type: model.AnnotationExplanation, Content: "spike from annual billing",
		Visibility: model.VisibilityTeam, CreatedBy: "analyst", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveAnnotation(ctx, a))

	got, err := s.ListAnnotations(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "spike from annual billing", got[0].Content)
}

func TestSQLite_CommitEntryResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &model.RawEntry{CompanyID: "co-1", SourceID: "webhook",
		Fields: map[string]any{"mrr": 100.0}, Status: model.EntryPending}
	require.NoError(t, s.SaveEntry(ctx, entry))

	root := testEvent("", "co-1", model.EventIngestion)
	norm := testEvent(root.ID, "co-1", model.EventNormalization)
	now := time.Now().UTC()
	entry.Status = model.EntryProcessed
	entry.ProcessedAt = &now
	entry.LineageID = root.ID

	rec := model.Record{
		ID: uuid.New().String(), EntryID: entry.ID, CompanyID: "co-1",
		CanonicalCode: "mrr", NormalizedValue: model.NumberValue(100),
		Method: "template_saas", Confidence: 0.8, ValidationStatus: model.ValidationPassed,
		LineageID: norm.ID,
	}
	sc := model.Score{TargetID: rec.ID, CompanyID: "co-1", Overall: 0.8, Level: model.LevelMedium}

	res := &pipeline.EntryResult{
		Entry:   entry,
		Records: []model.Record{rec},
		Scores:  []model.Score{sc},
		Events:  []model.Event{*root, *norm},
	}
	require.NoError(t, s.CommitEntryResult(ctx, res))

	gotEntry, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryProcessed, gotEntry.Status)

	gotRec, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, gotRec)

	gotScore, err := s.LatestScoreForTarget(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, gotScore)

	gotRoot, err := s.GetEvent(ctx, root.ID)
	require.NoError(t, err)
	require.NotNil(t, gotRoot)
}

func TestSQLite_CommitEntryResultRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &model.RawEntry{CompanyID: "co-1", SourceID: "webhook",
		Fields: map[string]any{"mrr": 100.0}, Status: model.EntryPending}
	require.NoError(t, s.SaveEntry(ctx, entry))

	dup := testEvent("", "co-1", model.EventIngestion)
	require.NoError(t, s.AppendEvent(ctx, dup))

	rec := model.Record{ID: uuid.New().String(), EntryID: entry.ID, CompanyID: "co-1",
		CanonicalCode: "mrr", Method: "template_saas"}
	entry.Status = model.EntryProcessed

	// The duplicate event id forces the transaction to fail; nothing lands.
	res := &pipeline.EntryResult{
		Entry:   entry,
		Records: []model.Record{rec},
		Events:  []model.Event{*dup},
	}
	require.Error(t, s.CommitEntryResult(ctx, res))

	gotRec, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, gotRec, "record must not survive a failed commit")

	gotEntry, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryPending, gotEntry.Status, "entry update must roll back")
}

func TestSQLite_CountDownstreamRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	norm := testEvent("", "co-1", model.EventNormalization)
	require.NoError(t, s.AppendEvent(ctx, norm))
	agg := testEvent(norm.ID, "co-1", model.EventAggregation)
	require.NoError(t, s.AppendEvent(ctx, agg))

	target := &model.Record{EntryID: "e-1", CompanyID: "co-1", CanonicalCode: "mrr",
		Method: "template_saas", LineageID: norm.ID}
	require.NoError(t, s.SaveRecord(ctx, target))
	sibling := &model.Record{EntryID: "e-1", CompanyID: "co-1", CanonicalCode: "arr",
		Method: "derived_metric", LineageID: norm.ID}
	require.NoError(t, s.SaveRecord(ctx, sibling))
	downstream := &model.Record{EntryID: "e-2", CompanyID: "co-1", CanonicalCode: "arr",
		Method: "derived_metric", LineageID: agg.ID}
	require.NoError(t, s.SaveRecord(ctx, downstream))
	unrelated := &model.Record{EntryID: "e-3", CompanyID: "co-1", CanonicalCode: "ltv",
		Method: "template_saas", LineageID: "other"}
	require.NoError(t, s.SaveRecord(ctx, unrelated))

	n, err := s.CountDownstreamRecords(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "sibling plus descendant, never the target or unrelated records")
}

func TestSQLite_EvidenceQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	save := func(entryID, code string, status model.ValidationStatus, conf float64) *model.Record {
		r := &model.Record{EntryID: entryID, CompanyID: "co-1", CanonicalCode: code,
			Method: "template_saas", ValidationStatus: status, Confidence: conf}
		require.NoError(t, s.SaveRecord(ctx, r))
		return r
	}

	target := save("e-1", "mrr", model.ValidationPassed, 0.9)
	save("e-2", "mrr", model.ValidationPassed, 0.8)
	save("e-3", "mrr", model.ValidationFailed, 0.4)

	// Consensus over the two other mrr records: one passed, one failed.
	score, ok, err := s.ValidationConsensus(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.5, score, 1e-9)

	_, ok, err = s.ValidationConsensus(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// Historical performance averages passed-record confidence per method.
	avg, ok, err := s.HistoricalPerformance(ctx, "co-1", "template_saas")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.85, avg, 1e-9)

	_, ok, err = s.HistoricalPerformance(ctx, "co-1", "manual_entry")
	require.NoError(t, err)
	assert.False(t, ok)

	// Cross validation needs at least two distinct entries.
	cross, ok, err := s.CrossValidation(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, cross, 1e-9)

	lone := save("e-9", "one_off", model.ValidationPassed, 0.9)
	_, ok, err = s.CrossValidation(ctx, lone.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Source error rate over entries.
	for i, st := range []model.ProcessingStatus{model.EntryProcessed, model.EntryError, model.EntryProcessed, model.EntryProcessed} {
		e := &model.RawEntry{CompanyID: "co-1", SourceID: "webhook", Status: st,
			Fields: map[string]any{"n": float64(i)}}
		require.NoError(t, s.SaveEntry(ctx, e))
	}
	rate, ok, err := s.SourceErrorRate(ctx, "co-1", "webhook")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.25, rate, 1e-9)

	_, ok, err = s.SourceErrorRate(ctx, "co-1", "ftp")
	require.NoError(t, err)
	assert.False(t, ok)
}
