package model

import "time"

// BusinessModelType identifies the business model a template targets.
type BusinessModelType string

const (
	ModelSaaS      BusinessModelType = "saas"
	ModelEcommerce BusinessModelType = "ecommerce"
	ModelFintech   BusinessModelType = "fintech"
	ModelGeneric   BusinessModelType = "generic"
)

// Valid reports whether t is a known business model type.
func (t BusinessModelType) Valid() bool {
	switch t {
	case ModelSaaS, ModelEcommerce, ModelFintech, ModelGeneric:
		return true
	}
	return false
}

// Template describes how to normalize reports for one business model:
// which metrics to expect, how reported names map to canonical codes, and
// which confidence-factor weights to override. Templates are immutable once
// referenced by a normalization; edits bump Version and never rewrite
// historical records.
type Template struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	BusinessModel   BusinessModelType      `json:"business_model"`
	Description     string                 `json:"description,omitempty"`
	ExpectedMetrics []string               `json:"expected_metrics"`
	MetricMappings  map[string]string      `json:"metric_mappings"` // reported name -> canonical code
	WeightOverrides map[FactorType]float64 `json:"weight_overrides,omitempty"`
	PriorityMetrics []string               `json:"priority_metrics,omitempty"`
	Active          bool                   `json:"active"`
	Version         string                 `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// TemplateAssignment binds a company to its active template. Automatic
// assignments carry the fixed inference confidence.
type TemplateAssignment struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	TemplateID string    `json:"template_id"`
	AssignedBy string    `json:"assigned_by"`
	Automatic  bool      `json:"automatic"`
	Confidence float64   `json:"confidence"`
	Active     bool      `json:"active"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AutoAssignConfidence is recorded on assignments inferred from company
// name/description keywords rather than chosen by a human.
const AutoAssignConfidence = 0.7
