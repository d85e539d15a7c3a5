package model

import "time"

// EventType names one lineage transformation step.
type EventType string

const (
	EventIngestion      EventType = "data_ingestion"
	EventNormalization  EventType = "normalization"
	EventValidation     EventType = "validation"
	EventTransformation EventType = "transformation"
	EventEnrichment     EventType = "enrichment"
	EventAggregation    EventType = "aggregation"
	EventExport         EventType = "export"
	EventCorrection     EventType = "correction"
)

// Valid reports whether t is a known lineage event type.
func (t EventType) Valid() bool {
	switch t {
	case EventIngestion, EventNormalization, EventValidation,
		EventTransformation, EventEnrichment, EventAggregation,
		EventExport, EventCorrection:
		return true
	}
	return false
}

// TransformParams describes the configuration a transformation ran with.
type TransformParams struct {
	Version    int               `json:"version"`
	TemplateID string            `json:"template_id,omitempty"`
	FieldMap   map[string]string `json:"field_map,omitempty"`
	Notes      map[string]string `json:"notes,omitempty"`
}

// Event is one append-only lineage record. ParentID links to the event that
// produced this event's input; events with no parent are ingestion roots.
// Events are never mutated after creation.
type Event struct {
	ID               string          `json:"id"`
	ParentID         string          `json:"parent_id,omitempty"`
	CompanyID        string          `json:"company_id"`
	Type             EventType       `json:"event_type"`
	SourceRef        string          `json:"source_ref,omitempty"`
	OutputRef        string          `json:"output_ref,omitempty"`
	Method           string          `json:"method"`
	Params           TransformParams `json:"parameters"`
	ConfidenceBefore float64         `json:"confidence_before"`
	ConfidenceAfter  float64         `json:"confidence_after"`
	DurationMS       int64           `json:"duration_ms,omitempty"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// GraphDirection selects which part of a lineage DAG to materialize.
type GraphDirection string

const (
	DirectionForward  GraphDirection = "forward"
	DirectionBackward GraphDirection = "backward"
	DirectionFull     GraphDirection = "full"
)

// Valid reports whether d is a known traversal direction.
func (d GraphDirection) Valid() bool {
	switch d {
	case DirectionForward, DirectionBackward, DirectionFull:
		return true
	}
	return false
}

// GraphEdge links a parent event to a child event by id.
type GraphEdge struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
}

// GraphSummary aggregates confidence over the materialized events.
type GraphSummary struct {
	MinConfidence  float64 `json:"min_confidence"`
	MaxConfidence  float64 `json:"max_confidence"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// Graph is a materialized lineage traversal, cacheable with an expiry.
// Nodes is an arena keyed by event id; edges reference ids only.
type Graph struct {
	RootID      string           `json:"root_id"`
	Direction   GraphDirection   `json:"direction"`
	Depth       int              `json:"depth"`
	Nodes       map[string]Event `json:"nodes"`
	Edges       []GraphEdge      `json:"edges"`
	Summary     GraphSummary     `json:"summary"`
	Version     string           `json:"version"`
	GeneratedAt time.Time        `json:"generated_at"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
}
