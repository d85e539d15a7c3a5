package correction

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/elite-command/refinery/internal/model"
)

// AnnotationSpec carries the caller-supplied parts of a new annotation.
type AnnotationSpec struct {
	TargetID   string
	CompanyID  string
	Type       model.AnnotationType
	Title      string
	Content    string
	Visibility model.Visibility
	Priority   int
	Pinned     bool
	CreatedBy  string
	ExpiresAt  *time.Time
}

// Annotate attaches a note to a data point. Annotations are independent of
// the correction lifecycle and never gate processing.
func (s *Service) Annotate(ctx context.Context, spec AnnotationSpec) (*model.Annotation, error) {
	if spec.TargetID == "" {
		return nil, eris.New("annotation: missing target id")
	}
	if !spec.Type.Valid() {
		return nil, eris.Errorf("annotation: invalid type %q", spec.Type)
	}
	if spec.Visibility == "" {
		spec.Visibility = model.VisibilityTeam
	}
	if !spec.Visibility.Valid() {
		return nil, eris.Errorf("annotation: invalid visibility %q", spec.Visibility)
	}
	if spec.Content == "" {
		return nil, eris.New("annotation: empty content")
	}

	a := &model.Annotation{
		ID:         uuid.New().String(),
		TargetID:   spec.TargetID,
		CompanyID:  spec.CompanyID,
		Type:       spec.Type,
		Title:      spec.Title,
		Content:    spec.Content,
		Visibility: spec.Visibility,
		Priority:   spec.Priority,
		Pinned:     spec.Pinned,
		CreatedBy:  spec.CreatedBy,
		ExpiresAt:  spec.ExpiresAt,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveAnnotation(ctx, a); err != nil {
		return nil, eris.Wrap(err, "annotation: save")
	}
	return a, nil
}

// Annotations lists a target's live annotations, pinned first, then by
// descending priority. Expired annotations are filtered out.
func (s *Service) Annotations(ctx context.Context, targetID string) ([]model.Annotation, error) {
	all, err := s.store.ListAnnotations(ctx, targetID)
	if err != nil {
		return nil, eris.Wrap(err, "annotation: list")
	}

	now := time.Now().UTC()
	live := all[:0]
	for _, a := range all {
		if !a.Expired(now) {
			live = append(live, a)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		a, b := live[i], live[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return live, nil
}
