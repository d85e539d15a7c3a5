package lineage

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/model"
)

// Graph materializes a lineage traversal rooted at rootID, serving a cached
// copy when one is fresh. Depth bounds the number of edges walked from the
// root; zero or negative depth means unbounded.
func (r *Recorder) Graph(ctx context.Context, rootID string, direction model.GraphDirection, depth int) (*model.Graph, error) {
	if !direction.Valid() {
		return nil, eris.Errorf("lineage: invalid direction %q", direction)
	}

	if r.cacheTTL > 0 {
		cached, err := r.store.GetCachedGraph(ctx, rootID, direction, depth)
		if err != nil {
			zap.L().Warn("lineage graph cache read failed", zap.Error(err))
		} else if cached != nil && (cached.ExpiresAt == nil || time.Now().UTC().Before(*cached.ExpiresAt)) {
			return cached, nil
		}
	}

	g, err := r.buildGraph(ctx, rootID, direction, depth)
	if err != nil {
		return nil, err
	}

	if r.cacheTTL > 0 {
		if err := r.store.SaveCachedGraph(ctx, g); err != nil {
			zap.L().Warn("lineage graph cache write failed", zap.Error(err))
		}
	}
	return g, nil
}

func (r *Recorder) buildGraph(ctx context.Context, rootID string, direction model.GraphDirection, depth int) (*model.Graph, error) {
	root, err := r.store.GetEvent(ctx, rootID)
	if err != nil {
		return nil, eris.Wrap(err, "lineage: load root event")
	}
	if root == nil {
		return nil, eris.Errorf("lineage: event %s not found", rootID)
	}

	nodes := map[string]model.Event{root.ID: *root}
	var edges []model.GraphEdge

	if direction == model.DirectionBackward || direction == model.DirectionFull {
		if err := r.walkAncestors(ctx, root, depth, nodes, &edges); err != nil {
			return nil, err
		}
	}
	if direction == model.DirectionForward || direction == model.DirectionFull {
		if err := r.walkDescendants(ctx, root, depth, nodes, &edges); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	g := &model.Graph{
		RootID:      rootID,
		Direction:   direction,
		Depth:       depth,
		Nodes:       nodes,
		Edges:       edges,
		Summary:     summarize(nodes),
		Version:     r.version,
		GeneratedAt: now,
	}
	if r.cacheTTL > 0 {
		exp := now.Add(r.cacheTTL)
		g.ExpiresAt = &exp
	}
	return g, nil
}

// walkAncestors follows parent pointers up from e.
func (r *Recorder) walkAncestors(ctx context.Context, e *model.Event, depth int, nodes map[string]model.Event, edges *[]model.GraphEdge) error {
	cur := e
	steps := 0
	for cur.ParentID != "" {
		if depth > 0 && steps >= depth {
			return nil
		}
		if _, seen := nodes[cur.ParentID]; seen {
			return eris.Errorf("lineage: cycle detected at event %s", cur.ParentID)
		}
		parent, err := r.store.GetEvent(ctx, cur.ParentID)
		if err != nil {
			return eris.Wrap(err, "lineage: load ancestor")
		}
		if parent == nil {
			return eris.Errorf("lineage: dangling parent %s", cur.ParentID)
		}
		nodes[parent.ID] = *parent
		*edges = append(*edges, model.GraphEdge{ParentID: parent.ID, ChildID: cur.ID})
		cur = parent
		steps++
	}
	return nil
}

// walkDescendants breadth-first expands children of e.
func (r *Recorder) walkDescendants(ctx context.Context, e *model.Event, depth int, nodes map[string]model.Event, edges *[]model.GraphEdge) error {
	type frontier struct {
		id    string
		level int
	}
	queue := []frontier{{id: e.ID, level: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if depth > 0 && cur.level >= depth {
			continue
		}

		children, err := r.store.ListChildEvents(ctx, cur.id)
		if err != nil {
			return eris.Wrap(err, "lineage: list children")
		}
		for _, child := range children {
			*edges = append(*edges, model.GraphEdge{ParentID: cur.id, ChildID: child.ID})
			if _, seen := nodes[child.ID]; seen {
				continue
			}
			nodes[child.ID] = child
			queue = append(queue, frontier{id: child.ID, level: cur.level + 1})
		}
	}
	return nil
}

func summarize(nodes map[string]model.Event) model.GraphSummary {
	if len(nodes) == 0 {
		return model.GraphSummary{}
	}
	min, max, sum := 1.0, 0.0, 0.0
	for _, e := range nodes {
		c := e.ConfidenceAfter
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
		sum += c
	}
	return model.GraphSummary{
		MinConfidence:  min,
		MaxConfidence:  max,
		MeanConfidence: sum / float64(len(nodes)),
	}
}
