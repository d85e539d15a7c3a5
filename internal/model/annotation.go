package model

import "time"

// AnnotationType names the intent of a human note.
type AnnotationType string

const (
	AnnotationExplanation    AnnotationType = "explanation"
	AnnotationContext        AnnotationType = "context"
	AnnotationWarning        AnnotationType = "warning"
	AnnotationRecommendation AnnotationType = "recommendation"
	AnnotationBusinessRule   AnnotationType = "business_rule"
	AnnotationQualityNote    AnnotationType = "quality_note"
)

// Valid reports whether t is a known annotation type.
func (t AnnotationType) Valid() bool {
	switch t {
	case AnnotationExplanation, AnnotationContext, AnnotationWarning,
		AnnotationRecommendation, AnnotationBusinessRule, AnnotationQualityNote:
		return true
	}
	return false
}

// Visibility scopes who can see an annotation.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityTeam    Visibility = "team"
	VisibilityCompany Visibility = "company"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityTeam, VisibilityCompany:
		return true
	}
	return false
}

// Annotation is a free-text note attached to a data point. Annotations are
// independent of the correction lifecycle and never block processing.
type Annotation struct {
	ID         string         `json:"id"`
	TargetID   string         `json:"target_id"`
	CompanyID  string         `json:"company_id"`
	Type       AnnotationType `json:"type"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Visibility Visibility     `json:"visibility"`
	Priority   int            `json:"priority"`
	Pinned     bool           `json:"pinned"`
	CreatedBy  string         `json:"created_by"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Expired reports whether the annotation has passed its expiry at now.
func (a Annotation) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}
