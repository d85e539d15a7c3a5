package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/model"
)

// Store is the persistence surface the engine needs.
type Store interface {
	// ListApplicableThresholds returns active thresholds for a company,
	// company-specific ones first, then global.
	ListApplicableThresholds(ctx context.Context, companyID string) ([]model.Threshold, error)
	SaveAlert(ctx context.Context, a *model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	UpdateAlert(ctx context.Context, a *model.Alert) error
}

// Engine evaluates confidence scores against thresholds and manages the
// alert lifecycle. Alerts are observational and never block the pipeline.
type Engine struct {
	store Store
}

// NewEngine returns an engine over store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Evaluate checks score against every applicable threshold in severity order
// and raises at most one alert per threshold, at the first breached cut.
// When no threshold is configured the built-in default applies.
func (e *Engine) Evaluate(ctx context.Context, score *model.Score) ([]model.Alert, error) {
	if score == nil {
		return nil, eris.New("alerting: nil score")
	}

	thresholds, err := e.store.ListApplicableThresholds(ctx, score.CompanyID)
	if err != nil {
		return nil, eris.Wrap(err, "alerting: list thresholds")
	}
	if len(thresholds) == 0 {
		def := model.DefaultThreshold()
		thresholds = []model.Threshold{def}
	}

	var raised []model.Alert
	for _, th := range thresholds {
		level, breached := breachedLevel(th, score.Overall)
		if !breached {
			continue
		}

		alert := model.Alert{
			ID:                uuid.New().String(),
			ScoreID:           score.ID,
			ThresholdID:       th.ID,
			CompanyID:         score.CompanyID,
			Level:             level,
			Message:           fmt.Sprintf("confidence %.2f breached %s cut", score.Overall, level),
			RecommendedAction: th.ActionFor(level),
			Status:            model.AlertActive,
			CreatedAt:         time.Now().UTC(),
		}
		if err := e.store.SaveAlert(ctx, &alert); err != nil {
			return raised, eris.Wrap(err, "alerting: save alert")
		}
		raised = append(raised, alert)

		zap.L().Info("alert raised",
			zap.String("alert_id", alert.ID),
			zap.String("company_id", alert.CompanyID),
			zap.String("level", string(level)),
			zap.Float64("overall", score.Overall))
	}
	return raised, nil
}

// breachedLevel returns the first cut, severity order critical then low then
// medium, that overall falls at or below.
func breachedLevel(th model.Threshold, overall float64) (model.Level, bool) {
	switch {
	case overall <= th.Critical:
		return model.LevelCritical, true
	case overall <= th.Low:
		return model.LevelLow, true
	case overall <= th.Medium:
		return model.LevelMedium, true
	default:
		return "", false
	}
}

// Acknowledge moves an active alert to acknowledged, recording the actor.
func (e *Engine) Acknowledge(ctx context.Context, alertID, actor string) (*model.Alert, error) {
	alert, err := e.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != model.AlertActive {
		return nil, eris.Errorf("alerting: cannot acknowledge alert in status %q", alert.Status)
	}

	now := time.Now().UTC()
	alert.Status = model.AlertAcknowledged
	alert.AcknowledgedBy = actor
	alert.AcknowledgedAt = &now
	if err := e.store.UpdateAlert(ctx, alert); err != nil {
		return nil, eris.Wrap(err, "alerting: update alert")
	}
	return alert, nil
}

// Resolve moves an acknowledged alert to resolved with free-text notes.
// Transitions are forward only; resolved alerts never reopen.
func (e *Engine) Resolve(ctx context.Context, alertID, actor, notes string) (*model.Alert, error) {
	alert, err := e.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != model.AlertAcknowledged {
		return nil, eris.Errorf("alerting: cannot resolve alert in status %q", alert.Status)
	}

	now := time.Now().UTC()
	alert.Status = model.AlertResolved
	alert.ResolvedBy = actor
	alert.ResolvedAt = &now
	alert.ResolutionNotes = notes
	if err := e.store.UpdateAlert(ctx, alert); err != nil {
		return nil, eris.Wrap(err, "alerting: update alert")
	}
	return alert, nil
}

func (e *Engine) load(ctx context.Context, id string) (*model.Alert, error) {
	alert, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "alerting: load alert")
	}
	if alert == nil {
		return nil, eris.Errorf("alerting: alert %s not found", id)
	}
	return alert, nil
}
