package model

import "time"

// Workflow routes a correction to its approval requirements. Matching is by
// company, data-type pattern, and correction type; lower Priority wins among
// matches. Zero-value match fields act as wildcards.
type Workflow struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	CompanyID            string           `json:"company_id,omitempty"`
	DataTypePattern      string           `json:"data_type_pattern,omitempty"`
	CorrectionTypes      []CorrectionType `json:"correction_types,omitempty"`
	Priority             int              `json:"priority"`
	RequiresApproval     bool             `json:"requires_approval"`
	AutoApproveThreshold float64          `json:"auto_approve_threshold"`
	AutoImplement        bool             `json:"auto_implement"`
	ImplementationDelay  time.Duration    `json:"implementation_delay"`
	RequiredRoles        []string         `json:"required_roles,omitempty"`
	Active               bool             `json:"active"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Matches reports whether w applies to a correction of type t for the given
// company and data type.
func (w Workflow) Matches(companyID string, dataType DataCategory, t CorrectionType) bool {
	if !w.Active {
		return false
	}
	if w.CompanyID != "" && w.CompanyID != companyID {
		return false
	}
	if w.DataTypePattern != "" && w.DataTypePattern != string(dataType) {
		return false
	}
	if len(w.CorrectionTypes) == 0 {
		return true
	}
	for _, ct := range w.CorrectionTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// DefaultWorkflow returns the built-in routing tier for a business impact.
// High impact requires approval with a 24h implementation delay and no
// auto-approval; medium allows auto-approval up to 0.1 impact with a 4h
// delay; low skips approval and auto-approves up to 0.05.
func DefaultWorkflow(impact Impact) Workflow {
	switch impact {
	case ImpactHigh:
		return Workflow{
			Name:                 "default_high_impact",
			RequiresApproval:     true,
			AutoApproveThreshold: 0,
			ImplementationDelay:  24 * time.Hour,
			RequiredRoles:        []string{"admin"},
			Active:               true,
		}
	case ImpactMedium:
		return Workflow{
			Name:                 "default_medium_impact",
			RequiresApproval:     true,
			AutoApproveThreshold: 0.1,
			ImplementationDelay:  4 * time.Hour,
			RequiredRoles:        []string{"analyst", "admin"},
			Active:               true,
		}
	default:
		return Workflow{
			Name:                 "default_low_impact",
			RequiresApproval:     false,
			AutoApproveThreshold: 0.05,
			AutoImplement:        true,
			Active:               true,
		}
	}
}
