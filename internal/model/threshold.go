package model

import "time"

// Threshold holds the ordered confidence cut points for one scope. A company
// threshold overrides the global one; business-model scoping narrows further.
// Cut points are compared with inclusive lower bounds: a score at exactly a
// cut belongs to that cut's level.
type Threshold struct {
	ID             string            `json:"id"`
	CompanyID      string            `json:"company_id,omitempty"`
	BusinessModel  BusinessModelType `json:"business_model,omitempty"`
	Critical       float64           `json:"critical"`
	Low            float64           `json:"low"`
	Medium         float64           `json:"medium"`
	High           float64           `json:"high"`
	CriticalAction string            `json:"critical_action,omitempty"`
	LowAction      string            `json:"low_action,omitempty"`
	MediumAction   string            `json:"medium_action,omitempty"`
	HighAction     string            `json:"high_action,omitempty"`
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"created_at"`
}

// DefaultThreshold returns the global default cut points and actions.
func DefaultThreshold() Threshold {
	return Threshold{
		Critical:       0.3,
		Low:            0.5,
		Medium:         0.7,
		High:           0.85,
		CriticalAction: "halt automated use and require immediate human review",
		LowAction:      "queue for human validation before downstream use",
		MediumAction:   "flag for spot-check review",
		HighAction:     "accept",
		Active:         true,
	}
}

// LevelFor buckets an overall score against t's cut points.
func (t Threshold) LevelFor(overall float64) Level {
	switch {
	case overall >= t.High:
		return LevelHigh
	case overall >= t.Medium:
		return LevelMedium
	case overall >= t.Low:
		return LevelLow
	default:
		return LevelCritical
	}
}

// ActionFor returns the recommended action for a level.
func (t Threshold) ActionFor(level Level) string {
	switch level {
	case LevelCritical:
		return t.CriticalAction
	case LevelLow:
		return t.LowAction
	case LevelMedium:
		return t.MediumAction
	default:
		return t.HighAction
	}
}

// AlertStatus tracks an alert's forward-only lifecycle.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertAcknowledged, AlertResolved:
		return true
	}
	return false
}

// Alert records a confidence score breaching a threshold cut. Alerts are
// observational: they never block the pipeline.
type Alert struct {
	ID                string      `json:"id"`
	ScoreID           string      `json:"score_id"`
	ThresholdID       string      `json:"threshold_id"`
	CompanyID         string      `json:"company_id"`
	Level             Level       `json:"level"`
	Message           string      `json:"message"`
	RecommendedAction string      `json:"recommended_action"`
	Status            AlertStatus `json:"status"`
	AcknowledgedBy    string      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt    *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedBy        string      `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty"`
	ResolutionNotes   string      `json:"resolution_notes,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}
