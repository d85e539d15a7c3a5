package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/elite-command/refinery/internal/model"
)

// cleaned is the result of stripping formatting from a raw value before
// type conversion.
type cleaned struct {
	Value      decimal.Decimal
	HadPercent bool
	WasRatio   bool
}

var currencySymbols = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "", ",", "", " ", "",
)

// cleanValue strips currency symbols, thousands separators, and percent
// signs, and resolves "a:b" ratio notation by division.
func cleanValue(raw any) (cleaned, error) {
	switch v := raw.(type) {
	case float64:
		return cleaned{Value: decimal.NewFromFloat(v)}, nil
	case float32:
		return cleaned{Value: decimal.NewFromFloat(float64(v))}, nil
	case int:
		return cleaned{Value: decimal.NewFromInt(int64(v))}, nil
	case int64:
		return cleaned{Value: decimal.NewFromInt(v)}, nil
	case string:
		return cleanString(v)
	default:
		return cleanString(fmt.Sprintf("%v", raw))
	}
}

func cleanString(s string) (cleaned, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return cleaned{}, eris.New("normalize: empty value")
	}

	if num, den, ok := strings.Cut(s, ":"); ok {
		n, errN := decimal.NewFromString(strings.TrimSpace(num))
		d, errD := decimal.NewFromString(strings.TrimSpace(den))
		if errN != nil || errD != nil {
			return cleaned{}, eris.Errorf("normalize: malformed ratio %q", s)
		}
		if d.IsZero() {
			return cleaned{}, eris.Errorf("normalize: ratio %q divides by zero", s)
		}
		return cleaned{Value: n.Div(d), WasRatio: true}, nil
	}

	hadPercent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	s = currencySymbols.Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return cleaned{}, eris.Wrapf(err, "normalize: unparseable value %q", s)
	}
	return cleaned{Value: d, HadPercent: hadPercent}, nil
}

// convert applies type-specific conversion rules to a cleaned value.
func convert(c cleaned, mt model.MetricType, rules model.ConversionRules) (model.MetricValue, error) {
	switch mt {
	case model.TypeCurrency:
		v := c.Value
		if rules.CurrencyRate != 0 {
			v = v.Mul(decimal.NewFromFloat(rules.CurrencyRate))
		}
		if rules.UnitFactor != 0 {
			v = v.Mul(decimal.NewFromFloat(rules.UnitFactor))
		}
		f, _ := v.Round(2).Float64()
		return model.NumberValue(f), nil

	case model.TypePercentage:
		v := c.Value
		if c.HadPercent || (rules.ToDecimal && v.GreaterThan(decimal.NewFromInt(1))) {
			v = v.Div(decimal.NewFromInt(100))
		}
		f, _ := v.Round(4).Float64()
		return model.NumberValue(f), nil

	case model.TypeCount:
		return model.NumberValue(float64(c.Value.IntPart())), nil

	case model.TypeRatio:
		f, _ := c.Value.Round(4).Float64()
		return model.NumberValue(f), nil

	default:
		return model.MetricValue{}, eris.Errorf("normalize: unknown metric type %q", mt)
	}
}

// conversionRatio reports how far a conversion moved a value, for the
// consistency check. Returns 1 when either side is zero.
func conversionRatio(before decimal.Decimal, after float64) float64 {
	b, _ := before.Float64()
	if b == 0 || after == 0 {
		return 1
	}
	r := after / b
	if r < 0 {
		r = -r
	}
	return r
}

// isIdentifier reports whether a field name looks like a code identifier
// (letters, digits, underscores, starting with a letter).
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	first := name[0]
	return (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')
}

// parseNumber is a loose numeric parse used by the fallback path.
func parseNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
