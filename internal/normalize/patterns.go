package normalize

import (
	"regexp"
	"strings"

	"github.com/elite-command/refinery/internal/model"
)

// Pattern maps loose textual mentions of one metric to its canonical code.
// Patterns are declarative data; the extraction engine below is generic.
type Pattern struct {
	Code    string
	Type    model.MetricType
	Regexps []*regexp.Regexp
}

// numberGroup matches a currency/number token with optional magnitude suffix.
const numberGroup = `\$?([0-9][0-9,.]*)\s*([kKmMbB])?`

func pat(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// patternTable holds the per-category extraction rules used to pre-shape
// loose text payloads into field/value pairs.
var patternTable = map[model.DataCategory][]Pattern{
	model.CategoryFinancial: {
		{Code: "arr", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`\barr\b[:\s]*` + numberGroup),
			pat(`annual\s+recurring\s+revenue[:\s]*` + numberGroup),
		}},
		{Code: "mrr", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`\bmrr\b[:\s]*` + numberGroup),
			pat(`monthly\s+recurring\s+revenue[:\s]*` + numberGroup),
		}},
		{Code: "revenue", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`\brevenue\b[:\s]*` + numberGroup),
			pat(`\bsales\b[:\s]*` + numberGroup),
		}},
		{Code: "revenue_growth", Type: model.TypePercentage, Regexps: []*regexp.Regexp{
			pat(`growth(?:\s+rate)?[:\s]*` + numberGroup + `%?`),
		}},
		{Code: "cac", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`\bcac\b[:\s]*` + numberGroup),
			pat(`customer\s+acquisition\s+cost[:\s]*` + numberGroup),
		}},
		{Code: "operating_expenses", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`\bopex\b[:\s]*` + numberGroup),
			pat(`operating\s+expenses?[:\s]*` + numberGroup),
		}},
		{Code: "gross_margin", Type: model.TypePercentage, Regexps: []*regexp.Regexp{
			pat(`gross\s+margin[:\s]*` + numberGroup + `%?`),
		}},
		{Code: "ebitda", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`\bebitda\b[:\s]*` + numberGroup),
		}},
		{Code: "burn_rate", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`burn(?:\s+rate)?[:\s]*` + numberGroup),
		}},
		{Code: "runway_months", Type: model.TypeCount, Regexps: []*regexp.Regexp{
			pat(`runway[:\s]*` + numberGroup + `\s*months?`),
		}},
	},
	model.CategoryOperational: {
		{Code: "active_users", Type: model.TypeCount, Regexps: []*regexp.Regexp{
			pat(`(?:active\s+)?users[:\s]*` + numberGroup),
		}},
		{Code: "sessions", Type: model.TypeCount, Regexps: []*regexp.Regexp{
			pat(`sessions?[:\s]*` + numberGroup),
		}},
		{Code: "conversion_rate", Type: model.TypePercentage, Regexps: []*regexp.Regexp{
			pat(`conversion(?:\s+rate)?[:\s]*` + numberGroup + `%?`),
		}},
		{Code: "response_time_ms", Type: model.TypeCount, Regexps: []*regexp.Regexp{
			pat(`response\s+time[:\s]*` + numberGroup + `\s*ms`),
		}},
		{Code: "uptime", Type: model.TypePercentage, Regexps: []*regexp.Regexp{
			pat(`uptime[:\s]*` + numberGroup + `%?`),
		}},
	},
	model.CategoryCustomer: {
		{Code: "customer_count", Type: model.TypeCount, Regexps: []*regexp.Regexp{
			pat(`customers?[:\s]*` + numberGroup),
		}},
		{Code: "churn_rate", Type: model.TypePercentage, Regexps: []*regexp.Regexp{
			pat(`churn(?:\s+rate)?[:\s]*` + numberGroup + `%?`),
		}},
		{Code: "retention_rate", Type: model.TypePercentage, Regexps: []*regexp.Regexp{
			pat(`retention(?:\s+rate)?[:\s]*` + numberGroup + `%?`),
		}},
		{Code: "ltv", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`\bltv\b[:\s]*` + numberGroup),
			pat(`lifetime\s+value[:\s]*` + numberGroup),
		}},
	},
	model.CategoryTeam: {
		{Code: "headcount", Type: model.TypeCount, Regexps: []*regexp.Regexp{
			pat(`headcount[:\s]*` + numberGroup),
			pat(`employees?[:\s]*` + numberGroup),
		}},
		{Code: "revenue_per_employee", Type: model.TypeCurrency, Regexps: []*regexp.Regexp{
			pat(`revenue\s+per\s+employee[:\s]*` + numberGroup),
		}},
	},
}

// Patterns returns the extraction rules for a category; nil for general.
func Patterns(cat model.DataCategory) []Pattern {
	return patternTable[cat]
}

// ExtractedMetric is one metric pulled out of loose text by ExtractFromText.
type ExtractedMetric struct {
	Code  string
	Type  model.MetricType
	Value float64
	Match string
}

// ExtractFromText applies the category's pattern table to free text,
// returning the first match per metric code.
func ExtractFromText(cat model.DataCategory, text string) []ExtractedMetric {
	var out []ExtractedMetric
	for _, p := range Patterns(cat) {
		for _, re := range p.Regexps {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			raw := strings.ReplaceAll(m[1], ",", "")
			f, ok := parseNumber(raw)
			if !ok {
				continue
			}
			if len(m) > 2 {
				switch strings.ToLower(m[2]) {
				case "k":
					f *= 1_000
				case "m":
					f *= 1_000_000
				case "b":
					f *= 1_000_000_000
				}
			}
			out = append(out, ExtractedMetric{Code: p.Code, Type: p.Type, Value: f, Match: m[0]})
			break
		}
	}
	return out
}
