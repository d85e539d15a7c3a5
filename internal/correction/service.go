package correction

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/lineage"
	"github.com/elite-command/refinery/internal/model"
)

// Filter narrows correction queue listings.
type Filter struct {
	CompanyID string
	Status    model.CorrectionStatus
	Impact    model.Impact
}

// Store is the persistence surface the correction service needs.
type Store interface {
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	UpdateRecord(ctx context.Context, rec *model.Record) error
	SaveRecord(ctx context.Context, rec *model.Record) error

	SaveCorrection(ctx context.Context, c *model.Correction) error
	GetCorrection(ctx context.Context, id string) (*model.Correction, error)
	UpdateCorrection(ctx context.Context, c *model.Correction) error
	ListCorrections(ctx context.Context, f Filter) ([]model.Correction, error)
	ListCorrectionsSince(ctx context.Context, companyID string, since time.Time) ([]model.Correction, error)

	ListWorkflows(ctx context.Context, companyID string) ([]model.Workflow, error)
	CountDownstreamRecords(ctx context.Context, targetID string) (int, error)

	SaveAnnotation(ctx context.Context, a *model.Annotation) error
	ListAnnotations(ctx context.Context, targetID string) ([]model.Annotation, error)
}

// Rescorer recomputes a record's confidence after a correction lands.
type Rescorer interface {
	Rescore(ctx context.Context, rec *model.Record) (float64, error)
}

// EventRecorder appends correction events to the lineage log.
type EventRecorder interface {
	Record(ctx context.Context, spec lineage.EventSpec) (*model.Event, error)
}

// Service runs the human correction and annotation workflow.
type Service struct {
	store    Store
	rescorer Rescorer
	events   EventRecorder
}

// NewService returns a correction service. rescorer and events may be nil in
// contexts that only route and approve.
func NewService(store Store, rescorer Rescorer, events EventRecorder) *Service {
	return &Service{store: store, rescorer: rescorer, events: events}
}

// Submission carries the caller-supplied parts of a new correction.
type Submission struct {
	TargetID      string
	Field         string
	Type          model.CorrectionType
	ProposedValue string
	Reason        string
	SubmittedBy   string
	// CompanyID scopes the correction when the target record does not exist
	// yet (additions); the record's company wins when it does.
	CompanyID string
	// BusinessImpact overrides the derived tier when set.
	BusinessImpact model.Impact
	DataType       model.DataCategory
}

// Submit estimates impact, routes the correction through the most specific
// matching workflow, and auto-approves when the workflow allows it. The
// returned correction is pending or approved, never anything later.
func (s *Service) Submit(ctx context.Context, sub Submission) (*model.Correction, error) {
	if !sub.Type.Valid() {
		return nil, eris.Errorf("correction: invalid type %q", sub.Type)
	}
	if sub.TargetID == "" {
		return nil, eris.New("correction: missing target id")
	}
	if sub.SubmittedBy == "" {
		return nil, eris.New("correction: missing submitter")
	}

	rec, err := s.store.GetRecord(ctx, sub.TargetID)
	if err != nil {
		return nil, eris.Wrap(err, "correction: load target")
	}
	if rec == nil && sub.Type != model.CorrectAddition {
		return nil, eris.Errorf("correction: target %s not found", sub.TargetID)
	}

	impact := sub.Type.ConfidenceImpact()
	business := sub.BusinessImpact
	if business == "" {
		business = model.ImpactFor(impact)
	}

	companyID := sub.CompanyID
	original := ""
	if rec != nil {
		companyID = rec.CompanyID
		original = rec.OriginalValue
	}

	wf, err := s.resolveWorkflow(ctx, companyID, sub.DataType, sub.Type, business)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &model.Correction{
		ID:               uuid.New().String(),
		TargetID:         sub.TargetID,
		CompanyID:        companyID,
		Field:            sub.Field,
		Type:             sub.Type,
		OriginalValue:    original,
		ProposedValue:    sub.ProposedValue,
		Reason:           sub.Reason,
		ConfidenceImpact: impact,
		BusinessImpact:   business,
		Status:           model.CorrectionPending,
		WorkflowID:       wf.ID,
		SubmittedBy:      sub.SubmittedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	autoApprove := !wf.RequiresApproval ||
		(wf.AutoApproveThreshold > 0 && impact <= wf.AutoApproveThreshold)
	if autoApprove {
		c.Status = model.CorrectionApproved
		c.ApprovedBy = sub.SubmittedBy
		c.ApprovedAt = &now
	}

	if err := s.store.SaveCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "correction: save")
	}

	zap.L().Info("correction submitted",
		zap.String("correction_id", c.ID),
		zap.String("type", string(c.Type)),
		zap.String("status", string(c.Status)),
		zap.String("business_impact", string(business)))
	return c, nil
}

// resolveWorkflow picks the most specific active workflow, falling back to
// the built-in tier for the business impact.
func (s *Service) resolveWorkflow(ctx context.Context, companyID string, dataType model.DataCategory, ct model.CorrectionType, impact model.Impact) (model.Workflow, error) {
	workflows, err := s.store.ListWorkflows(ctx, companyID)
	if err != nil {
		return model.Workflow{}, eris.Wrap(err, "correction: list workflows")
	}

	var matches []model.Workflow
	for _, wf := range workflows {
		if wf.Matches(companyID, dataType, ct) {
			matches = append(matches, wf)
		}
	}
	if len(matches) == 0 {
		return model.DefaultWorkflow(impact), nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority < matches[j].Priority
	})
	return matches[0], nil
}

// Approve moves a pending correction to approved.
func (s *Service) Approve(ctx context.Context, id, actor string) (*model.Correction, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CorrectionPending {
		return nil, eris.Errorf("correction: cannot approve in status %q", c.Status)
	}

	now := time.Now().UTC()
	c.Status = model.CorrectionApproved
	c.ApprovedBy = actor
	c.ApprovedAt = &now
	c.UpdatedAt = now
	if err := s.store.UpdateCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "correction: update")
	}
	return c, nil
}

// Reject moves a pending correction to rejected with a reason.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*model.Correction, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CorrectionPending {
		return nil, eris.Errorf("correction: cannot reject in status %q", c.Status)
	}

	now := time.Now().UTC()
	c.Status = model.CorrectionRejected
	c.RejectedBy = actor
	c.RejectedAt = &now
	c.RejectionReason = reason
	c.UpdatedAt = now
	if err := s.store.UpdateCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "correction: update")
	}
	return c, nil
}

// Implement applies an approved correction: snapshot first, then apply, then
// measure before/after confidence and affected downstream records. Any
// failure leaves the correction approved so implementation can retry.
func (s *Service) Implement(ctx context.Context, id, actor string) (*model.Correction, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CorrectionApproved {
		return nil, eris.Errorf("correction: cannot implement in status %q", c.Status)
	}

	rec, snapshot, before, err := s.apply(ctx, c)
	if err != nil {
		// Status stays approved for retry.
		return nil, eris.Wrap(err, "correction: implement")
	}

	after := rec.Confidence
	if s.rescorer != nil {
		rescored, err := s.rescorer.Rescore(ctx, rec)
		if err != nil {
			zap.L().Warn("rescore after correction failed",
				zap.String("correction_id", c.ID), zap.Error(err))
		} else {
			after = rescored
			rec.Confidence = rescored
			if err := s.store.UpdateRecord(ctx, rec); err != nil {
				return nil, eris.Wrap(err, "correction: persist rescored record")
			}
		}
	}

	affected, err := s.store.CountDownstreamRecords(ctx, c.TargetID)
	if err != nil {
		zap.L().Warn("downstream count failed", zap.Error(err))
		affected = 0
	}

	now := time.Now().UTC()
	c.Status = model.CorrectionImplemented
	c.Rollback = snapshot
	c.Result = &model.ImplementationResult{
		Version:          1,
		ConfidenceBefore: before,
		ConfidenceAfter:  after,
		AffectedRecords:  affected,
		ImplementedAt:    now,
	}
	c.UpdatedAt = now
	if err := s.store.UpdateCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "correction: update")
	}

	s.recordLineage(ctx, c, rec, before, after, actor)
	return c, nil
}

// apply mutates the target record per the correction type, returning the
// updated record and the pre-change snapshot.
func (s *Service) apply(ctx context.Context, c *model.Correction) (*model.Record, *model.RollbackSnapshot, float64, error) {
	rec, err := s.store.GetRecord(ctx, c.TargetID)
	if err != nil {
		return nil, nil, 0, eris.Wrap(err, "load target")
	}

	if rec == nil {
		if c.Type != model.CorrectAddition {
			return nil, nil, 0, eris.Errorf("target %s not found", c.TargetID)
		}
		rec, err = s.applyAddition(ctx, c)
		if err != nil {
			return nil, nil, 0, err
		}
		snapshot := &model.RollbackSnapshot{
			Version:    1,
			TargetID:   rec.ID,
			CapturedAt: time.Now().UTC(),
		}
		return rec, snapshot, 0, nil
	}

	before := rec.Confidence
	snapshot := &model.RollbackSnapshot{
		Version:     1,
		TargetID:    rec.ID,
		Field:       rec.OriginalField,
		PriorValue:  rec.NormalizedValue,
		PriorCode:   rec.CanonicalCode,
		PriorStatus: rec.ValidationStatus,
		CapturedAt:  time.Now().UTC(),
	}

	switch c.Type {
	case model.CorrectValue, model.CorrectAddition:
		rec.NormalizedValue = parseProposed(c.ProposedValue)
		rec.HumanVerified = true
		rec.ValidationStatus = model.ValidationPassed
	case model.CorrectClassification:
		rec.CanonicalCode = c.ProposedValue
		rec.HumanVerified = true
	case model.CorrectRelationship:
		rec.LineageID = c.ProposedValue
	case model.CorrectMetadata:
		rec.OriginalField = c.ProposedValue
	case model.CorrectDeletion:
		rec.NormalizedValue = model.MetricValue{}
		rec.ValidationStatus = model.ValidationFailed
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return nil, nil, 0, eris.Wrap(err, "apply change")
	}
	return rec, snapshot, before, nil
}

// applyAddition creates a new manually-entered record for the target id.
func (s *Service) applyAddition(ctx context.Context, c *model.Correction) (*model.Record, error) {
	now := time.Now().UTC()
	rec := &model.Record{
		ID:               c.TargetID,
		CompanyID:        c.CompanyID,
		OriginalField:    c.Field,
		OriginalValue:    c.ProposedValue,
		CanonicalCode:    c.Field,
		NormalizedValue:  parseProposed(c.ProposedValue),
		Method:           model.MethodManualEntry,
		ValidationStatus: model.ValidationPassed,
		HumanVerified:    true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "create added record")
	}
	return rec, nil
}

// Revert restores an implemented correction's rollback snapshot exactly.
func (s *Service) Revert(ctx context.Context, id, actor string) (*model.Correction, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CorrectionImplemented {
		return nil, eris.Errorf("correction: cannot revert in status %q", c.Status)
	}
	if c.Rollback == nil {
		return nil, eris.New("correction: no rollback snapshot")
	}

	rec, err := s.store.GetRecord(ctx, c.Rollback.TargetID)
	if err != nil {
		return nil, eris.Wrap(err, "correction: load target for revert")
	}
	if rec == nil {
		return nil, eris.Errorf("correction: revert target %s not found", c.Rollback.TargetID)
	}

	rec.NormalizedValue = c.Rollback.PriorValue
	if c.Rollback.PriorCode != "" {
		rec.CanonicalCode = c.Rollback.PriorCode
	}
	if c.Rollback.Field != "" {
		rec.OriginalField = c.Rollback.Field
	}
	if c.Rollback.PriorStatus != "" {
		rec.ValidationStatus = c.Rollback.PriorStatus
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "correction: restore snapshot")
	}

	now := time.Now().UTC()
	c.Status = model.CorrectionReverted
	c.UpdatedAt = now
	if err := s.store.UpdateCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "correction: update")
	}

	zap.L().Info("correction reverted",
		zap.String("correction_id", c.ID), zap.String("actor", actor))
	return c, nil
}

// Queue lists corrections matching the filter, most urgent first: high
// business impact, then oldest submission.
func (s *Service) Queue(ctx context.Context, f Filter) ([]model.Correction, error) {
	items, err := s.store.ListCorrections(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "correction: list queue")
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].BusinessImpact != items[j].BusinessImpact {
			return impactRank(items[i].BusinessImpact) > impactRank(items[j].BusinessImpact)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func impactRank(i model.Impact) int {
	switch i {
	case model.ImpactHigh:
		return 3
	case model.ImpactMedium:
		return 2
	default:
		return 1
	}
}

// TypeStats aggregates corrections of one type inside an analysis window.
type TypeStats struct {
	Count              int     `json:"count"`
	Implemented        int     `json:"implemented"`
	MeanImpact         float64 `json:"mean_impact"`
	MeanConfidenceLift float64 `json:"mean_confidence_lift"`
}

// ImpactReport summarizes correction activity for a company over a window.
type ImpactReport struct {
	CompanyID string                             `json:"company_id"`
	Since     time.Time                          `json:"since"`
	Total     int                                `json:"total"`
	ByType    map[model.CorrectionType]TypeStats `json:"by_type"`
}

// ImpactAnalysis groups a company's corrections within the window by type.
func (s *Service) ImpactAnalysis(ctx context.Context, companyID string, window time.Duration) (*ImpactReport, error) {
	since := time.Now().UTC().Add(-window)
	items, err := s.store.ListCorrectionsSince(ctx, companyID, since)
	if err != nil {
		return nil, eris.Wrap(err, "correction: list for analysis")
	}

	report := &ImpactReport{
		CompanyID: companyID,
		Since:     since,
		Total:     len(items),
		ByType:    make(map[model.CorrectionType]TypeStats),
	}
	sums := make(map[model.CorrectionType]float64)
	lifts := make(map[model.CorrectionType]float64)
	liftCounts := make(map[model.CorrectionType]int)

	for _, c := range items {
		st := report.ByType[c.Type]
		st.Count++
		sums[c.Type] += c.ConfidenceImpact
		if c.Status == model.CorrectionImplemented || c.Status == model.CorrectionReverted {
			st.Implemented++
		}
		if c.Result != nil {
			lifts[c.Type] += c.Result.ConfidenceAfter - c.Result.ConfidenceBefore
			liftCounts[c.Type]++
		}
		report.ByType[c.Type] = st
	}
	for ct, st := range report.ByType {
		st.MeanImpact = sums[ct] / float64(st.Count)
		if liftCounts[ct] > 0 {
			st.MeanConfidenceLift = lifts[ct] / float64(liftCounts[ct])
		}
		report.ByType[ct] = st
	}
	return report, nil
}

func (s *Service) recordLineage(ctx context.Context, c *model.Correction, rec *model.Record, before, after float64, actor string) {
	if s.events == nil {
		return
	}
	_, err := s.events.Record(ctx, lineage.EventSpec{
		ParentID:         rec.LineageID,
		CompanyID:        c.CompanyID,
		Type:             model.EventCorrection,
		SourceRef:        c.ID,
		OutputRef:        rec.ID,
		Method:           string(c.Type),
		Params:           model.TransformParams{Version: 1, Notes: map[string]string{"actor": actor}},
		ConfidenceBefore: before,
		ConfidenceAfter:  after,
	})
	if err != nil {
		zap.L().Warn("correction lineage write failed",
			zap.String("correction_id", c.ID), zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context, id string) (*model.Correction, error) {
	c, err := s.store.GetCorrection(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "correction: load")
	}
	if c == nil {
		return nil, eris.Errorf("correction: %s not found", id)
	}
	return c, nil
}

// parseProposed interprets a proposed value as a number when possible.
func parseProposed(s string) model.MetricValue {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return model.NumberValue(f)
	}
	return model.TextValue(s)
}
