package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCatalog_UniqueCodes(t *testing.T) {
	seen := make(map[string]bool)
	for _, def := range DefaultCatalog() {
		assert.False(t, seen[def.Code], "duplicate metric code %q", def.Code)
		seen[def.Code] = true
	}
}

func TestDefaultCatalog_SynonymsDoNotCollide(t *testing.T) {
	owner := make(map[string]string) // synonym -> code
	for _, def := range DefaultCatalog() {
		for _, syn := range def.Synonyms {
			prev, ok := owner[syn]
			assert.False(t, ok, "synonym %q claimed by both %s and %s", syn, prev, def.Code)
			owner[syn] = def.Code
		}
	}
}

func TestDefaultCatalog_CoreMetrics(t *testing.T) {
	byCode := make(map[string]bool)
	for _, def := range DefaultCatalog() {
		if def.Core {
			byCode[def.Code] = true
		}
	}
	for _, code := range []string{"revenue", "customers"} {
		assert.True(t, byCode[code], "core metric %q missing", code)
	}
}

func TestDefaultCatalog_ConstraintsSane(t *testing.T) {
	for _, def := range DefaultCatalog() {
		c := def.Constraints
		if c.MinValue != nil && c.MaxValue != nil {
			assert.LessOrEqual(t, *c.MinValue, *c.MaxValue, "metric %s", def.Code)
		}
	}
}
