package model

import "time"

// CorrectionType names the kind of human override being proposed.
type CorrectionType string

const (
	CorrectValue          CorrectionType = "value_correction"
	CorrectClassification CorrectionType = "classification_correction"
	CorrectRelationship   CorrectionType = "relationship_correction"
	CorrectMetadata       CorrectionType = "metadata_correction"
	CorrectDeletion       CorrectionType = "deletion"
	CorrectAddition       CorrectionType = "addition"
)

// Valid reports whether t is a known correction type.
func (t CorrectionType) Valid() bool {
	switch t {
	case CorrectValue, CorrectClassification, CorrectRelationship,
		CorrectMetadata, CorrectDeletion, CorrectAddition:
		return true
	}
	return false
}

// ConfidenceImpact returns the estimated confidence impact for a correction
// of type t, from the static impact table.
func (t CorrectionType) ConfidenceImpact() float64 {
	switch t {
	case CorrectValue:
		return 0.15
	case CorrectClassification:
		return 0.25
	case CorrectRelationship:
		return 0.20
	case CorrectMetadata:
		return 0.10
	case CorrectDeletion:
		return 0.30
	case CorrectAddition:
		return 0.20
	default:
		return 0.15
	}
}

// CorrectionStatus tracks a correction's lifecycle.
type CorrectionStatus string

const (
	CorrectionPending     CorrectionStatus = "pending"
	CorrectionApproved    CorrectionStatus = "approved"
	CorrectionRejected    CorrectionStatus = "rejected"
	CorrectionImplemented CorrectionStatus = "implemented"
	CorrectionReverted    CorrectionStatus = "reverted"
)

// Valid reports whether s is a known correction status.
func (s CorrectionStatus) Valid() bool {
	switch s {
	case CorrectionPending, CorrectionApproved, CorrectionRejected,
		CorrectionImplemented, CorrectionReverted:
		return true
	}
	return false
}

// Impact is the business-impact tier of a correction.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// ImpactFor derives the business-impact tier from an estimated confidence
// impact: >=0.30 high, >=0.15 medium, else low.
func ImpactFor(confidenceImpact float64) Impact {
	switch {
	case confidenceImpact >= 0.30:
		return ImpactHigh
	case confidenceImpact >= 0.15:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// RollbackSnapshot captures the state needed to revert an implemented
// correction exactly.
type RollbackSnapshot struct {
	Version     int              `json:"version"`
	TargetID    string           `json:"target_id"`
	Field       string           `json:"field,omitempty"`
	PriorValue  MetricValue      `json:"prior_value"`
	PriorCode   string           `json:"prior_code,omitempty"`
	PriorStatus ValidationStatus `json:"prior_status,omitempty"`
	CapturedAt  time.Time        `json:"captured_at"`
}

// ImplementationResult records what an implementation changed.
type ImplementationResult struct {
	Version          int       `json:"version"`
	ConfidenceBefore float64   `json:"confidence_before"`
	ConfidenceAfter  float64   `json:"confidence_after"`
	AffectedRecords  int       `json:"affected_records"`
	ImplementedAt    time.Time `json:"implemented_at"`
}

// Correction is a proposed human override to one data point.
type Correction struct {
	ID               string                `json:"id"`
	TargetID         string                `json:"target_id"`
	CompanyID        string                `json:"company_id"`
	Field            string                `json:"field,omitempty"`
	Type             CorrectionType        `json:"type"`
	OriginalValue    string                `json:"original_value,omitempty"`
	ProposedValue    string                `json:"proposed_value"`
	Reason           string                `json:"reason"`
	ConfidenceImpact float64               `json:"confidence_impact"`
	BusinessImpact   Impact                `json:"business_impact"`
	Status           CorrectionStatus      `json:"status"`
	WorkflowID       string                `json:"workflow_id,omitempty"`
	SubmittedBy      string                `json:"submitted_by"`
	ApprovedBy       string                `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time            `json:"approved_at,omitempty"`
	RejectedBy       string                `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time            `json:"rejected_at,omitempty"`
	RejectionReason  string                `json:"rejection_reason,omitempty"`
	Rollback         *RollbackSnapshot     `json:"rollback_snapshot,omitempty"`
	Result           *ImplementationResult `json:"implementation_result,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}
