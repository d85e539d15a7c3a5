package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/elite-command/refinery/internal/model"
)

// abbreviations folds common shorthand onto canonical metric codes during
// fuzzy field matching.
var abbreviations = map[string]string{
	"arr":  "annual_recurring_revenue",
	"mrr":  "monthly_recurring_revenue",
	"ltv":  "lifetime_value",
	"cac":  "customer_acquisition_cost",
	"arpu": "average_revenue_per_user",
}

// matchKind records how a field name was resolved to a metric, and feeds the
// per-metric confidence breakdown.
type matchKind int

const (
	matchNone matchKind = iota
	matchExact
	matchSynonym
	matchFuzzy
)

func (k matchKind) score() float64 {
	switch k {
	case matchExact:
		return 1.0
	case matchSynonym:
		return 0.9
	case matchFuzzy:
		return 0.7
	default:
		return 0
	}
}

// maxFallbackStringLen bounds which string fields the no-template path
// passes through.
const maxFallbackStringLen = 64

// Normalizer converts raw payload fields into canonical metric records using
// a template and the shared metric catalog.
type Normalizer struct {
	defs map[string]model.MetricDefinition // canonical code -> definition
}

// New returns a normalizer over the given metric definitions.
func New(defs []model.MetricDefinition) *Normalizer {
	m := make(map[string]model.MetricDefinition, len(defs))
	for _, d := range defs {
		m[d.Code] = d
	}
	return &Normalizer{defs: m}
}

// Result is the output of normalizing one raw entry.
type Result struct {
	Records []model.Record
	Skipped []string // field names that matched nothing
	Method  string
}

// Normalize extracts canonical metrics from entry's fields using tmpl. A nil
// template takes the fallback path. Records are fully populated except for
// lineage linkage, which the pipeline fills in.
func (n *Normalizer) Normalize(entry *model.RawEntry, tmpl *model.Template) (*Result, error) {
	if entry == nil || len(entry.Fields) == 0 {
		return nil, eris.New("normalize: empty payload")
	}
	if tmpl == nil {
		return n.fallback(entry), nil
	}

	method := model.MethodTemplatePrefix + string(tmpl.BusinessModel)
	res := &Result{Method: method}

	for field, raw := range entry.Fields {
		code, kind := n.matchField(field, tmpl)
		if kind == matchNone {
			res.Skipped = append(res.Skipped, field)
			continue
		}
		def, ok := n.defs[code]
		if !ok {
			zap.L().Warn("template maps field to unknown metric",
				zap.String("field", field), zap.String("code", code),
				zap.String("template_id", tmpl.ID))
			res.Skipped = append(res.Skipped, field)
			continue
		}

		rec, err := n.normalizeField(entry, tmpl, field, raw, def, kind, method)
		if err != nil {
			zap.L().Debug("field normalization failed",
				zap.String("field", field), zap.Error(err))
			res.Skipped = append(res.Skipped, field)
			continue
		}
		res.Records = append(res.Records, rec)
	}

	n.deriveMetrics(entry, tmpl, res)
	return res, nil
}

// normalizeField cleans, converts, and validates a single field.
func (n *Normalizer) normalizeField(entry *model.RawEntry, tmpl *model.Template, field string, raw any, def model.MetricDefinition, kind matchKind, method string) (model.Record, error) {
	c, err := cleanValue(raw)
	if err != nil {
		return model.Record{}, err
	}

	value, err := convert(c, def.Type, def.Conversion)
	if err != nil {
		return model.Record{}, err
	}

	status := model.ValidationPassed
	validationScore := 1.0
	if !validate(value, def.Constraints) {
		status = model.ValidationFailed
		validationScore = 0.5
	}

	breakdown := []float64{kind.score(), 1.0, validationScore}
	conf := metricConfidence(breakdown, conversionRatio(c.Value, value.Number), def.Code)

	now := time.Now().UTC()
	return model.Record{
		ID:               uuid.New().String(),
		EntryID:          entry.ID,
		CompanyID:        entry.CompanyID,
		TemplateID:       tmpl.ID,
		OriginalField:    field,
		OriginalValue:    fmt.Sprintf("%v", raw),
		CanonicalCode:    def.Code,
		NormalizedValue:  value,
		Method:           method,
		Confidence:       conf,
		ValidationStatus: status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// matchField resolves a reported field name to a canonical code: exact match
// against expected metrics, then the template synonym map, then fuzzy
// alnum-folded comparison with abbreviation expansion.
func (n *Normalizer) matchField(field string, tmpl *model.Template) (string, matchKind) {
	for _, code := range tmpl.ExpectedMetrics {
		if field == code {
			return code, matchExact
		}
	}
	if code, ok := tmpl.MetricMappings[field]; ok {
		return code, matchSynonym
	}

	folded := fold(field)
	if long, ok := abbreviations[folded]; ok {
		for _, code := range tmpl.ExpectedMetrics {
			if fold(code) == folded || fold(code) == fold(long) {
				return code, matchFuzzy
			}
		}
	}
	for _, code := range tmpl.ExpectedMetrics {
		fc := fold(code)
		if fc == folded || strings.Contains(fc, folded) || strings.Contains(folded, fc) {
			return code, matchFuzzy
		}
		if long, ok := abbreviations[fc]; ok && fold(long) == folded {
			return code, matchFuzzy
		}
	}
	return "", matchNone
}

// fold lowercases and strips non-alphanumeric characters.
func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validate checks a converted value against its constraints.
func validate(v model.MetricValue, c model.ValidationConstraints) bool {
	if v.Kind != model.ValueNumber {
		return true
	}
	if c.MinValue != nil && v.Number < *c.MinValue {
		return false
	}
	if c.MaxValue != nil && v.Number > *c.MaxValue {
		return false
	}
	switch c.Required {
	case model.RequirePositive:
		if v.Number <= 0 {
			return false
		}
	case model.RequireInteger:
		if v.Number != float64(int64(v.Number)) {
			return false
		}
	}
	return true
}

// metricConfidence combines the breakdown mean with consistency and
// name-clarity penalties, clamped to [0, 1].
func metricConfidence(breakdown []float64, convRatio float64, code string) float64 {
	if len(breakdown) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range breakdown {
		sum += s
	}
	conf := sum / float64(len(breakdown))

	if convRatio > 1000 || convRatio < 0.001 {
		conf *= 0.5
	}
	if len(code) < 3 || !isIdentifier(code) {
		conf *= 0.8
	}

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// deriveMetrics appends metrics computable from already-normalized ones.
// Annual recurring revenue derives from monthly when absent.
func (n *Normalizer) deriveMetrics(entry *model.RawEntry, tmpl *model.Template, res *Result) {
	var mrr *model.Record
	hasARR := false
	for i := range res.Records {
		switch res.Records[i].CanonicalCode {
		case "mrr", "monthly_recurring_revenue":
			mrr = &res.Records[i]
		case "arr", "annual_recurring_revenue":
			hasARR = true
		}
	}
	if mrr == nil || hasARR || mrr.NormalizedValue.Kind != model.ValueNumber {
		return
	}

	code := "arr"
	if _, ok := n.defs[code]; !ok {
		if _, ok := n.defs["annual_recurring_revenue"]; ok {
			code = "annual_recurring_revenue"
		}
	}

	now := time.Now().UTC()
	res.Records = append(res.Records, model.Record{
		ID:               uuid.New().String(),
		EntryID:          entry.ID,
		CompanyID:        entry.CompanyID,
		TemplateID:       tmpl.ID,
		OriginalField:    mrr.OriginalField,
		OriginalValue:    mrr.OriginalValue,
		CanonicalCode:    code,
		NormalizedValue:  model.NumberValue(mrr.NormalizedValue.Number * 12),
		Method:           model.MethodDerived,
		Confidence:       mrr.Confidence,
		ValidationStatus: mrr.ValidationStatus,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

// fallback passes numeric and short string fields through 1:1 at fixed low
// confidence, flagged for human validation.
func (n *Normalizer) fallback(entry *model.RawEntry) *Result {
	res := &Result{Method: model.MethodBasicNormalization}
	now := time.Now().UTC()

	for field, raw := range entry.Fields {
		var value model.MetricValue
		if f, ok := parseNumber(raw); ok {
			value = model.NumberValue(f)
		} else if s, ok := raw.(string); ok && len(s) <= maxFallbackStringLen {
			value = model.TextValue(s)
		} else {
			res.Skipped = append(res.Skipped, field)
			continue
		}

		res.Records = append(res.Records, model.Record{
			ID:               uuid.New().String(),
			EntryID:          entry.ID,
			CompanyID:        entry.CompanyID,
			OriginalField:    field,
			OriginalValue:    fmt.Sprintf("%v", raw),
			CanonicalCode:    fold(field),
			NormalizedValue:  value,
			Method:           model.MethodBasicNormalization,
			Confidence:       model.FallbackConfidence,
			ValidationStatus: model.ValidationPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return res
}

// ValidateConversionRules rejects rules with malformed ISO 4217 currency
// codes. Used when metric definitions are created or imported.
func ValidateConversionRules(rules model.ConversionRules) error {
	if rules.CurrencyCode == "" {
		return nil
	}
	if _, err := currency.ParseISO(rules.CurrencyCode); err != nil {
		return eris.Wrapf(err, "normalize: invalid currency code %q", rules.CurrencyCode)
	}
	return nil
}
