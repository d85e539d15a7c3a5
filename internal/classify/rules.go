package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/elite-command/refinery/internal/model"
)

// Rules holds the keyword sets the classifier scores payloads against.
// Keyword matching is case-insensitive substring over the serialized payload.
type Rules struct {
	Keywords map[model.DataCategory][]string `yaml:"keywords"`
}

// DefaultRules returns the built-in keyword sets.
func DefaultRules() Rules {
	return Rules{
		Keywords: map[model.DataCategory][]string{
			model.CategoryFinancial:   {"revenue", "arr", "mrr", "profit", "loss", "expense", "cost"},
			model.CategoryOperational: {"users", "sessions", "conversion", "engagement", "performance"},
			model.CategoryCustomer:    {"customer", "subscriber", "account", "churn", "retention"},
			model.CategoryTeam:        {"employee", "team", "headcount", "hiring", "staff"},
		},
	}
}

// LoadRules reads keyword rules from a YAML file. Categories absent from the
// file keep their built-in keyword sets.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrap(err, "classify: read rules file")
	}

	var loaded Rules
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Rules{}, eris.Wrap(err, "classify: parse rules file")
	}

	rules := DefaultRules()
	for cat, words := range loaded.Keywords {
		if !isKnownCategory(cat) {
			return Rules{}, eris.Errorf("classify: unknown category %q in rules file", cat)
		}
		rules.Keywords[cat] = words
	}
	return rules, nil
}

func isKnownCategory(cat model.DataCategory) bool {
	for _, c := range model.Categories() {
		if c == cat {
			return true
		}
	}
	return false
}
