package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elite-command/refinery/internal/model"
)

func extract(t *testing.T, cat model.DataCategory, text, code string) ExtractedMetric {
	t.Helper()
	for _, m := range ExtractFromText(cat, text) {
		if m.Code == code {
			return m
		}
	}
	t.Fatalf("no extraction for %q in %q", code, text)
	return ExtractedMetric{}
}

func TestExtractFinancialMetrics(t *testing.T) {
	text := "Q2 update: MRR $48,000, ARR 576k, burn rate $120,000, runway: 14 months"

	mrr := extract(t, model.CategoryFinancial, text, "mrr")
	assert.InDelta(t, 48000, mrr.Value, 1e-9)

	arr := extract(t, model.CategoryFinancial, text, "arr")
	assert.InDelta(t, 576000, arr.Value, 1e-9)

	runway := extract(t, model.CategoryFinancial, text, "runway_months")
	assert.InDelta(t, 14, runway.Value, 1e-9)
	assert.Equal(t, model.TypeCount, runway.Type)
}

func TestExtractMagnitudeSuffixes(t *testing.T) {
	assert.InDelta(t, 2_000_000,
		extract(t, model.CategoryFinancial, "revenue: 2M", "revenue").Value, 1e-9)
	assert.InDelta(t, 1_500_000_000,
		extract(t, model.CategoryFinancial, "revenue 1.5b", "revenue").Value, 1e-9)
}

func TestExtractOperationalAndCustomer(t *testing.T) {
	users := extract(t, model.CategoryOperational, "active users: 15,000", "active_users")
	assert.InDelta(t, 15000, users.Value, 1e-9)

	churn := extract(t, model.CategoryCustomer, "churn rate 3.2%", "churn_rate")
	assert.InDelta(t, 3.2, churn.Value, 1e-9)
	assert.Equal(t, model.TypePercentage, churn.Type)
}

func TestExtractFirstMatchPerCode(t *testing.T) {
	out := ExtractFromText(model.CategoryFinancial, "revenue: 100 revenue: 200")
	count := 0
	for _, m := range out {
		if m.Code == "revenue" {
			count++
			assert.InDelta(t, 100, m.Value, 1e-9)
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractNoMatches(t *testing.T) {
	assert.Empty(t, ExtractFromText(model.CategoryGeneral, "nothing to see"))
	assert.Empty(t, ExtractFromText(model.CategoryTeam, "the weather is nice"))
}

func TestPatternsTableCoversCategories(t *testing.T) {
	require.NotEmpty(t, Patterns(model.CategoryFinancial))
	require.NotEmpty(t, Patterns(model.CategoryOperational))
	require.NotEmpty(t, Patterns(model.CategoryCustomer))
	require.NotEmpty(t, Patterns(model.CategoryTeam))
	assert.Nil(t, Patterns(model.CategoryGeneral))
}
