package model

import "time"

// ValidationStatus tracks whether a normalized value passed its constraints.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
)

// Valid reports whether s is a known validation status.
func (s ValidationStatus) Valid() bool {
	switch s {
	case ValidationPending, ValidationPassed, ValidationFailed:
		return true
	}
	return false
}

// ValueKind discriminates the payload of a MetricValue.
type ValueKind string

const (
	ValueNumber ValueKind = "number"
	ValueText   ValueKind = "text"
)

// MetricValue is a normalized value. Most metrics normalize to numbers;
// fallback normalization passes short strings through untouched.
type MetricValue struct {
	Kind   ValueKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// NumberValue wraps f as a numeric metric value.
func NumberValue(f float64) MetricValue {
	return MetricValue{Kind: ValueNumber, Number: f}
}

// TextValue wraps s as a passthrough text value.
func TextValue(s string) MetricValue {
	return MetricValue{Kind: ValueText, Text: s}
}

// Record is one normalized metric extracted from a raw entry field.
// Method tags identify the normalization path (template_saas,
// basic_normalization, manual_entry, ...) and feed confidence scoring.
type Record struct {
	ID               string           `json:"id"`
	EntryID          string           `json:"entry_id"`
	CompanyID        string           `json:"company_id"`
	TemplateID       string           `json:"template_id,omitempty"`
	OriginalField    string           `json:"original_field"`
	OriginalValue    string           `json:"original_value"`
	CanonicalCode    string           `json:"canonical_code"`
	NormalizedValue  MetricValue      `json:"normalized_value"`
	Method           string           `json:"method"`
	Confidence       float64          `json:"confidence"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	LineageID        string           `json:"lineage_id,omitempty"`
	HumanVerified    bool             `json:"human_verified"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Normalization method tags produced by the pipeline.
const (
	MethodTemplatePrefix     = "template_"
	MethodBasicNormalization = "basic_normalization"
	MethodManualEntry        = "manual_entry"
	MethodDerived            = "derived_metric"
)

// FallbackConfidence is assigned to values normalized without a template.
const FallbackConfidence = 0.3
