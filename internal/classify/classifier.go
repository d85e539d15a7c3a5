package classify

import (
	"fmt"
	"strings"

	"github.com/elite-command/refinery/internal/model"
)

// Classifier scores raw payloads against per-category keyword sets.
// It is a pure function over its rules and safe for concurrent use.
type Classifier struct {
	rules Rules
}

// New returns a classifier using the given rules.
func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Classify picks the category with the most keyword hits across the
// serialized payload. Ties break toward earlier categories in declaration
// order; zero hits returns general.
func (c *Classifier) Classify(fields map[string]any) model.DataCategory {
	content := serialize(fields)

	best := model.CategoryGeneral
	bestHits := 0
	for _, cat := range model.Categories() {
		hits := 0
		for _, kw := range c.rules.Keywords[cat] {
			hits += strings.Count(content, kw)
		}
		if hits > bestHits {
			best = cat
			bestHits = hits
		}
	}
	return best
}

// serialize flattens field names and values into one lowercase string.
func serialize(fields map[string]any) string {
	var b strings.Builder
	for name, value := range fields {
		b.WriteString(strings.ToLower(name))
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(fmt.Sprintf("%v", value)))
		b.WriteByte(' ')
	}
	return b.String()
}
