package lineage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/model"
)

// Store is the persistence surface the recorder and graph builder need.
type Store interface {
	AppendEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListChildEvents(ctx context.Context, parentID string) ([]model.Event, error)
	GetCachedGraph(ctx context.Context, rootID string, direction model.GraphDirection, depth int) (*model.Graph, error)
	SaveCachedGraph(ctx context.Context, g *model.Graph) error
}

// Recorder writes append-only lineage events and materializes graphs.
type Recorder struct {
	store    Store
	version  string
	cacheTTL time.Duration
}

// NewRecorder returns a recorder over store. version tags materialized
// graphs; cacheTTL of zero disables graph caching.
func NewRecorder(store Store, version string, cacheTTL time.Duration) *Recorder {
	if version == "" {
		version = "v1"
	}
	return &Recorder{store: store, version: version, cacheTTL: cacheTTL}
}

// EventSpec carries the caller-supplied parts of a lineage event.
type EventSpec struct {
	ParentID         string
	CompanyID        string
	Type             model.EventType
	SourceRef        string
	OutputRef        string
	Method           string
	Params           model.TransformParams
	ConfidenceBefore float64
	ConfidenceAfter  float64
	Duration         time.Duration
	Error            string
}

// NewEvent builds an event from spec without persisting it. Callers that
// commit events transactionally alongside records use this and write the
// batch themselves.
func NewEvent(spec EventSpec) (*model.Event, error) {
	if !spec.Type.Valid() {
		return nil, eris.Errorf("lineage: invalid event type %q", spec.Type)
	}
	return &model.Event{
		ID:               uuid.New().String(),
		ParentID:         spec.ParentID,
		CompanyID:        spec.CompanyID,
		Type:             spec.Type,
		SourceRef:        spec.SourceRef,
		OutputRef:        spec.OutputRef,
		Method:           spec.Method,
		Params:           spec.Params,
		ConfidenceBefore: spec.ConfidenceBefore,
		ConfidenceAfter:  spec.ConfidenceAfter,
		DurationMS:       spec.Duration.Milliseconds(),
		Error:            spec.Error,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// Record appends one immutable event. A non-empty ParentID must reference an
// existing event; the DAG never gains a forward edge to a missing node.
func (r *Recorder) Record(ctx context.Context, spec EventSpec) (*model.Event, error) {
	e, err := NewEvent(spec)
	if err != nil {
		return nil, err
	}
	if spec.ParentID != "" {
		parent, err := r.store.GetEvent(ctx, spec.ParentID)
		if err != nil {
			return nil, eris.Wrap(err, "lineage: load parent event")
		}
		if parent == nil {
			return nil, eris.Errorf("lineage: parent event %s not found", spec.ParentID)
		}
	}
	if err := r.store.AppendEvent(ctx, e); err != nil {
		return nil, eris.Wrap(err, "lineage: append event")
	}

	zap.L().Debug("lineage event recorded",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("parent_id", e.ParentID))
	return e, nil
}

// Trace walks parent pointers from id to the root, returning events from the
// given event up to and including the root ingestion event.
func (r *Recorder) Trace(ctx context.Context, id string) ([]model.Event, error) {
	var chain []model.Event
	seen := make(map[string]bool)
	cur := id
	for cur != "" {
		if seen[cur] {
			return nil, eris.Errorf("lineage: cycle detected at event %s", cur)
		}
		seen[cur] = true

		e, err := r.store.GetEvent(ctx, cur)
		if err != nil {
			return nil, eris.Wrap(err, "lineage: load event")
		}
		if e == nil {
			return nil, eris.Errorf("lineage: event %s not found", cur)
		}
		chain = append(chain, *e)
		cur = e.ParentID
	}
	return chain, nil
}
