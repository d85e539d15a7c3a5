package model

import "time"

// FactorType names one of the eight confidence evidence factors.
type FactorType string

const (
	FactorDataQuality            FactorType = "data_quality"
	FactorSourceReliability      FactorType = "source_reliability"
	FactorTransformationAccuracy FactorType = "transformation_accuracy"
	FactorTemplateSpecificity    FactorType = "template_specificity"
	FactorValidationConsensus    FactorType = "validation_consensus"
	FactorHistoricalPerformance  FactorType = "historical_performance"
	FactorHumanVerification      FactorType = "human_verification"
	FactorCrossValidation        FactorType = "cross_validation"
)

// FactorTypes returns all factor types in canonical scoring order.
func FactorTypes() []FactorType {
	return []FactorType{
		FactorDataQuality,
		FactorSourceReliability,
		FactorTransformationAccuracy,
		FactorTemplateSpecificity,
		FactorValidationConsensus,
		FactorHistoricalPerformance,
		FactorHumanVerification,
		FactorCrossValidation,
	}
}

// DefaultWeights returns the default factor weights. They sum to 1.0.
func DefaultWeights() map[FactorType]float64 {
	return map[FactorType]float64{
		FactorDataQuality:            0.25,
		FactorSourceReliability:      0.20,
		FactorTransformationAccuracy: 0.20,
		FactorTemplateSpecificity:    0.15,
		FactorValidationConsensus:    0.10,
		FactorHistoricalPerformance:  0.05,
		FactorHumanVerification:      0.03,
		FactorCrossValidation:        0.02,
	}
}

// Level buckets an overall confidence score.
type Level string

const (
	LevelCritical Level = "critical"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
)

// FactorEvidence carries the supporting detail behind one factor score.
// Error is set when factor computation failed and a neutral default was used.
type FactorEvidence struct {
	Version      int                `json:"version"`
	Descriptions []string           `json:"descriptions,omitempty"`
	Measures     map[string]float64 `json:"measures,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Factor is one weighted piece of evidence in a confidence score.
type Factor struct {
	Type         FactorType     `json:"type"`
	Score        float64        `json:"score"`
	Weight       float64        `json:"weight"`
	Contribution float64        `json:"weighted_contribution"`
	Evidence     FactorEvidence `json:"evidence"`
}

// Score is the full confidence assessment of one data point.
// Invariant: sum of factor contributions divided by total weight equals
// Overall within floating-point tolerance.
type Score struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id"`
	CompanyID string    `json:"company_id"`
	Overall   float64   `json:"overall"`
	Level     Level     `json:"level"`
	Factors   []Factor  `json:"factors"`
	CreatedAt time.Time `json:"created_at"`
}
