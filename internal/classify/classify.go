// Package classify assigns a category/subcategory to a transaction
// description via ordered keyword matching.
package classify

import (
	_ "embed"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// Rule maps one lowercase keyword to a category pair. Rules are matched
// in definition order and the first match wins, so relative ordering is
// part of the contract.
type Rule struct {
	Keyword     string `yaml:"keyword"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
}

// Match is the outcome of a successful classification.
type Match struct {
	Category    string
	Subcategory string
}

// Classifier holds the immutable ordered ruleset.
type Classifier struct {
	rules []Rule
}

// New loads the built-in ruleset. The ruleset is embedded in the binary
// and never changes at runtime.
func New() (*Classifier, error) {
	return NewFromRules(rulesYAML)
}

// NewFromRules builds a classifier from a YAML rule list, preserving
// sequence order.
func NewFromRules(data []byte) (*Classifier, error) {
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, eris.Wrap(err, "classify: parse rules")
	}
	if len(rules) == 0 {
		return nil, eris.New("classify: empty ruleset")
	}
	for i := range rules {
		rules[i].Keyword = strings.ToLower(rules[i].Keyword)
	}
	return &Classifier{rules: rules}, nil
}

// Classify returns the category pair for the first keyword contained in
// the description. A miss is a valid outcome (the row stays
// uncategorized for manual review), not an error.
func (c *Classifier) Classify(description string) (Match, bool) {
	desc := Fold(strings.ToLower(description))
	for _, r := range c.rules {
		if strings.Contains(desc, r.Keyword) {
			return Match{Category: r.Category, Subcategory: r.Subcategory}, true
		}
	}
	return Match{}, false
}

// Rules returns a copy of the ruleset in match order, used to seed the
// category tables.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Fold strips diacritics so that "FARMÁCIA" matches the "farmacia"
// keyword. Bank exports are inconsistent about accents.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
