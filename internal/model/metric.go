package model

import "time"

// MetricType is the declared value type of a canonical metric.
type MetricType string

const (
	TypeCurrency   MetricType = "currency"
	TypePercentage MetricType = "percentage"
	TypeCount      MetricType = "count"
	TypeRatio      MetricType = "ratio"
)

// Valid reports whether t is a known metric type.
func (t MetricType) Valid() bool {
	switch t {
	case TypeCurrency, TypePercentage, TypeCount, TypeRatio:
		return true
	}
	return false
}

// ConversionRules holds the typed conversion configuration for a metric.
// Zero values mean "no conversion of that kind".
type ConversionRules struct {
	Version      int     `json:"version"`
	CurrencyRate float64 `json:"currency_rate,omitempty"` // exchange rate to the canonical currency
	CurrencyCode string  `json:"currency_code,omitempty"` // ISO 4217 code of the canonical currency
	UnitFactor   float64 `json:"unit_factor,omitempty"`   // e.g. 0.01 for cents -> dollars
	ToDecimal    bool    `json:"to_decimal,omitempty"`    // rescale percentages >1.0 to decimals
}

// RequiredType constrains the shape of a validated value.
type RequiredType string

const (
	RequirePositive RequiredType = "positive"
	RequireInteger  RequiredType = "integer"
)

// ValidationConstraints bounds a normalized value. Nil bounds are unchecked.
type ValidationConstraints struct {
	Version  int          `json:"version"`
	MinValue *float64     `json:"min_value,omitempty"`
	MaxValue *float64     `json:"max_value,omitempty"`
	Required RequiredType `json:"required_type,omitempty"`
}

// MetricDefinition is the canonical description of one business metric,
// shared across templates.
type MetricDefinition struct {
	Code             string                `json:"code"`
	Name             string                `json:"name"`
	Category         DataCategory          `json:"category"`
	Type             MetricType            `json:"type"`
	Unit             string                `json:"unit,omitempty"`
	ApplicableModels []BusinessModelType   `json:"applicable_models,omitempty"`
	Synonyms         []string              `json:"synonyms,omitempty"`
	Conversion       ConversionRules       `json:"conversion"`
	Constraints      ValidationConstraints `json:"constraints"`
	Core             bool                  `json:"core"`
	CreatedAt        time.Time             `json:"created_at"`
}
