package template

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/elite-command/refinery/internal/model"
)

// SeedStore is the persistence surface needed to install stock templates.
type SeedStore interface {
	FindActiveTemplateByModel(ctx context.Context, bm model.BusinessModelType) (*model.Template, error)
	SaveTemplate(ctx context.Context, t *model.Template) error
}

// Defaults returns the stock templates, one per business model. Metric codes
// reference the default catalog.
func Defaults() []model.Template {
	now := time.Now().UTC()
	return []model.Template{
		{
			Name:          "SaaS Metrics",
			BusinessModel: model.ModelSaaS,
			Description:   "Subscription software: recurring revenue, churn, usage.",
			ExpectedMetrics: []string{
				"mrr", "arr", "revenue", "churn_rate", "customers",
				"active_users", "cac", "ltv", "burn_rate", "gross_margin",
			},
			MetricMappings: map[string]string{
				"monthly_revenue":           "mrr",
				"monthly_recurring_revenue": "mrr",
				"annual_revenue":            "arr",
				"logo_churn":                "churn_rate",
				"paying_customers":          "customers",
			},
			PriorityMetrics: []string{"mrr", "arr", "churn_rate"},
			Active:          true,
			Version:         "1",
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		{
			Name:          "E-commerce Metrics",
			BusinessModel: model.ModelEcommerce,
			Description:   "Online retail: merchandise volume, order economics, conversion.",
			ExpectedMetrics: []string{
				"revenue", "gmv", "aov", "conversion_rate", "customers",
				"retention_rate", "cac", "gross_margin",
			},
			MetricMappings: map[string]string{
				"total_sales":     "revenue",
				"order_value":     "aov",
				"repeat_rate":     "retention_rate",
				"store_customers": "customers",
			},
			PriorityMetrics: []string{"gmv", "aov", "conversion_rate"},
			Active:          true,
			Version:         "1",
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		{
			Name:          "Fintech Metrics",
			BusinessModel: model.ModelFintech,
			Description:   "Payments and financial services: volume, take rate, compliance.",
			ExpectedMetrics: []string{
				"revenue", "transaction_volume", "take_rate", "customers",
				"churn_rate", "active_users", "cac",
			},
			MetricMappings: map[string]string{
				"payment_volume": "transaction_volume",
				"tpv":            "transaction_volume",
				"net_take_rate":  "take_rate",
			},
			PriorityMetrics: []string{"transaction_volume", "take_rate"},
			Active:          true,
			Version:         "1",
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		{
			Name:          "Generic Metrics",
			BusinessModel: model.ModelGeneric,
			Description:   "Business-model-agnostic core metrics.",
			ExpectedMetrics: []string{
				"revenue", "customers", "active_users", "churn_rate",
				"headcount", "gross_margin",
			},
			MetricMappings:  map[string]string{},
			PriorityMetrics: []string{"revenue"},
			Active:          true,
			Version:         "1",
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

// Seed installs the stock templates, skipping business models that already
// have an active template. Returns the number installed.
func Seed(ctx context.Context, store SeedStore) (int, error) {
	installed := 0
	for _, tmpl := range Defaults() {
		existing, err := store.FindActiveTemplateByModel(ctx, tmpl.BusinessModel)
		if err != nil {
			return installed, eris.Wrapf(err, "template: check existing %s", tmpl.BusinessModel)
		}
		if existing != nil {
			continue
		}
		t := tmpl
		t.ID = uuid.New().String()
		if err := store.SaveTemplate(ctx, &t); err != nil {
			return installed, eris.Wrapf(err, "template: seed %s", tmpl.BusinessModel)
		}
		installed++
	}
	return installed, nil
}
