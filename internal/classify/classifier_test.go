package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elite-command/refinery/internal/model"
)

func TestClassifyFinancial(t *testing.T) {
	c := New(DefaultRules())
	got := c.Classify(map[string]any{
		"monthly_revenue": 125000,
		"operating_cost":  40000,
	})
	assert.Equal(t, model.CategoryFinancial, got)
}

func TestClassifyOperational(t *testing.T) {
	c := New(DefaultRules())
	got := c.Classify(map[string]any{
		"active_users":    15000,
		"sessions":        98000,
		"conversion_rate": "2.4%",
	})
	assert.Equal(t, model.CategoryOperational, got)
}

func TestClassifyCustomer(t *testing.T) {
	c := New(DefaultRules())
	got := c.Classify(map[string]any{
		"churn_rate":       "3.2%",
		"retention":        "92%",
		"subscriber_count": 4200,
	})
	assert.Equal(t, model.CategoryCustomer, got)
}

func TestClassifyTeam(t *testing.T) {
	c := New(DefaultRules())
	got := c.Classify(map[string]any{
		"headcount":   45,
		"hiring_plan": "Q3 expansion",
	})
	assert.Equal(t, model.CategoryTeam, got)
}

func TestClassifyNoHitsReturnsGeneral(t *testing.T) {
	c := New(DefaultRules())
	got := c.Classify(map[string]any{
		"widget_color": "blue",
		"zip":          "30301",
	})
	assert.Equal(t, model.CategoryGeneral, got)
}

func TestClassifyEmptyPayload(t *testing.T) {
	c := New(DefaultRules())
	assert.Equal(t, model.CategoryGeneral, c.Classify(nil))
	assert.Equal(t, model.CategoryGeneral, c.Classify(map[string]any{}))
}

func TestClassifyTieBreaksByDeclarationOrder(t *testing.T) {
	c := New(DefaultRules())
	// One financial hit and one customer hit: financial comes first.
	got := c.Classify(map[string]any{
		"revenue": 100,
		"churn":   0.02,
	})
	assert.Equal(t, model.CategoryFinancial, got)
}

func TestClassifyMatchesValuesNotJustNames(t *testing.T) {
	c := New(DefaultRules())
	got := c.Classify(map[string]any{
		"note": "quarterly revenue grew along with profit margins",
	})
	assert.Equal(t, model.CategoryFinancial, got)
}

func TestLoadRulesOverridesCategory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	yaml := `
keywords:
  financial: [ebitda, topline]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ebitda", "topline"}, rules.Keywords[model.CategoryFinancial])
	// Untouched categories keep their defaults.
	assert.Contains(t, rules.Keywords[model.CategoryCustomer], "churn")

	c := New(rules)
	assert.Equal(t, model.CategoryFinancial, c.Classify(map[string]any{"ebitda": 5}))
	assert.Equal(t, model.CategoryGeneral, c.Classify(map[string]any{"revenue": 5}))
}

func TestLoadRulesUnknownCategory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords:\n  bogus: [x]\n"), 0644))

	_, err := LoadRules(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules("/nonexistent/rules.yaml")
	assert.Error(t, err)
}
