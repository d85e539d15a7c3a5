package normalize

import "github.com/elite-command/refinery/internal/model"

func fptr(f float64) *float64 { return &f }

// DefaultCatalog returns the built-in canonical metric definitions shared by
// the stock templates. Callers that manage their own catalogs pass their
// definitions to New directly.
func DefaultCatalog() []model.MetricDefinition {
	return []model.MetricDefinition{
		{
			Code: "revenue", Name: "Revenue", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD", Core: true,
			Synonyms:    []string{"total_revenue", "monthly_revenue", "sales"},
			Conversion:  model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "mrr", Name: "Monthly Recurring Revenue", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD", Core: true,
			ApplicableModels: []model.BusinessModelType{model.ModelSaaS},
			Synonyms:         []string{"monthly_recurring_revenue", "recurring_revenue"},
			Conversion:       model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints:      model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "arr", Name: "Annual Recurring Revenue", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD", Core: true,
			ApplicableModels: []model.BusinessModelType{model.ModelSaaS},
			Synonyms:         []string{"annual_recurring_revenue"},
			Conversion:       model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints:      model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "gross_margin", Name: "Gross Margin", Category: model.CategoryFinancial,
			Type:        model.TypePercentage,
			Synonyms:    []string{"margin"},
			Conversion:  model.ConversionRules{Version: 1, ToDecimal: true},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(-1), MaxValue: fptr(1)},
		},
		{
			Code: "burn_rate", Name: "Burn Rate", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD",
			Synonyms:    []string{"monthly_burn", "burn"},
			Conversion:  model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "cac", Name: "Customer Acquisition Cost", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD",
			Synonyms:    []string{"customer_acquisition_cost", "acquisition_cost"},
			Conversion:  model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "gmv", Name: "Gross Merchandise Value", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD",
			ApplicableModels: []model.BusinessModelType{model.ModelEcommerce},
			Synonyms:         []string{"gross_merchandise_value", "merchandise_value"},
			Conversion:       model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints:      model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "aov", Name: "Average Order Value", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD",
			ApplicableModels: []model.BusinessModelType{model.ModelEcommerce},
			Synonyms:         []string{"average_order_value", "order_value"},
			Conversion:       model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints:      model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "transaction_volume", Name: "Transaction Volume", Category: model.CategoryFinancial,
			Type: model.TypeCurrency, Unit: "USD",
			ApplicableModels: []model.BusinessModelType{model.ModelFintech},
			Synonyms:         []string{"tx_volume", "payment_volume"},
			Conversion:       model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints:      model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "take_rate", Name: "Take Rate", Category: model.CategoryFinancial,
			Type:             model.TypePercentage,
			ApplicableModels: []model.BusinessModelType{model.ModelFintech},
			Conversion:       model.ConversionRules{Version: 1, ToDecimal: true},
			Constraints:      model.ValidationConstraints{Version: 1, MinValue: fptr(0), MaxValue: fptr(1)},
		},
		{
			Code: "active_users", Name: "Active Users", Category: model.CategoryOperational,
			Type: model.TypeCount, Core: true,
			Synonyms:    []string{"users", "mau", "monthly_active_users", "dau"},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0), Required: model.RequireInteger},
		},
		{
			Code: "conversion_rate", Name: "Conversion Rate", Category: model.CategoryOperational,
			Type:        model.TypePercentage,
			Synonyms:    []string{"conversion"},
			Conversion:  model.ConversionRules{Version: 1, ToDecimal: true},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0), MaxValue: fptr(1)},
		},
		{
			Code: "uptime", Name: "Uptime", Category: model.CategoryOperational,
			Type:        model.TypePercentage,
			Synonyms:    []string{"availability"},
			Conversion:  model.ConversionRules{Version: 1, ToDecimal: true},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0), MaxValue: fptr(1)},
		},
		{
			Code: "customers", Name: "Customers", Category: model.CategoryCustomer,
			Type: model.TypeCount, Core: true,
			Synonyms:    []string{"total_customers", "accounts", "subscribers"},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0), Required: model.RequireInteger},
		},
		{
			Code: "churn_rate", Name: "Churn Rate", Category: model.CategoryCustomer,
			Type: model.TypePercentage, Core: true,
			Synonyms:    []string{"churn", "customer_churn"},
			Conversion:  model.ConversionRules{Version: 1, ToDecimal: true},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0), MaxValue: fptr(1)},
		},
		{
			Code: "retention_rate", Name: "Retention Rate", Category: model.CategoryCustomer,
			Type:        model.TypePercentage,
			Synonyms:    []string{"retention"},
			Conversion:  model.ConversionRules{Version: 1, ToDecimal: true},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0), MaxValue: fptr(1)},
		},
		{
			Code: "ltv", Name: "Customer Lifetime Value", Category: model.CategoryCustomer,
			Type: model.TypeCurrency, Unit: "USD",
			Synonyms:    []string{"lifetime_value", "customer_lifetime_value", "clv"},
			Conversion:  model.ConversionRules{Version: 1, CurrencyCode: "USD"},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0)},
		},
		{
			Code: "headcount", Name: "Headcount", Category: model.CategoryTeam,
			Type: model.TypeCount,
			Synonyms:    []string{"employees", "team_size", "staff"},
			Constraints: model.ValidationConstraints{Version: 1, MinValue: fptr(0), Required: model.RequireInteger},
		},
	}
}
