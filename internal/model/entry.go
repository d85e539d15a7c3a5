package model

import "time"

// ProcessingStatus tracks a raw entry through the normalization pipeline.
type ProcessingStatus string

const (
	EntryPending   ProcessingStatus = "pending"
	EntryProcessed ProcessingStatus = "processed"
	EntryError     ProcessingStatus = "error"
	EntrySkipped   ProcessingStatus = "skipped"
)

// Valid reports whether s is a known processing status.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case EntryPending, EntryProcessed, EntryError, EntrySkipped:
		return true
	}
	return false
}

// DataCategory classifies the business content of a raw payload.
// Declaration order matters: classifier ties break toward earlier categories.
type DataCategory string

const (
	CategoryFinancial   DataCategory = "financial"
	CategoryOperational DataCategory = "operational"
	CategoryCustomer    DataCategory = "customer"
	CategoryTeam        DataCategory = "team"
	CategoryGeneral     DataCategory = "general"
)

// Categories returns all data categories in classifier precedence order.
func Categories() []DataCategory {
	return []DataCategory{
		CategoryFinancial,
		CategoryOperational,
		CategoryCustomer,
		CategoryTeam,
		CategoryGeneral,
	}
}

// RawEntry is one unprocessed metric report payload handed to the pipeline
// by an ingestion collaborator (webhook, file import, email, OAuth sync).
type RawEntry struct {
	ID              string           `json:"id"`
	CompanyID       string           `json:"company_id"`
	SourceID        string           `json:"source_id"`
	Fields          map[string]any   `json:"fields"`
	DataType        DataCategory     `json:"data_type,omitempty"`
	Status          ProcessingStatus `json:"status"`
	Error           string           `json:"error,omitempty"`
	LineageID       string           `json:"lineage_id,omitempty"`
	SourceTimestamp *time.Time       `json:"source_timestamp,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

// Company identifies the business a payload belongs to. Name and description
// feed business-model inference when no template is assigned.
type Company struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	BusinessModel BusinessModelType `json:"business_model,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
