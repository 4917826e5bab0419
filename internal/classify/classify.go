// Package classify maps entity display names to categorical types using
// ordered keyword rules.
package classify

import (
	"strings"
	"unicode"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// RuleTable holds the ordered keyword groups used for classification.
// Evaluation order matters: categories overlap by keyword, so groups are
// checked in a fixed priority and the first match wins.
type RuleTable struct {
	// NonProfitSuffixes are checked first (whole-word match).
	NonProfitSuffixes []string

	// ShellSuffixes are checked second (whole-word match).
	ShellSuffixes []string

	// CorporateSuffixes are checked third (whole-word match, trailing
	// period tolerated, e.g. "Inc." and "Inc").
	CorporateSuffixes []string

	// GovernmentKeywords are checked fourth (substring match).
	GovernmentKeywords []string

	// FinancialKeywords are checked fifth (substring match).
	FinancialKeywords []string
}

// DefaultRules returns the extraction-time rule table. This is the canonical
// table used when classifying entities found in transaction text.
func DefaultRules() RuleTable {
	return RuleTable{
		NonProfitSuffixes: []string{
			"foundation", "charity", "ngo", "non-profit", "nonprofit",
			"association", "society", "trust",
		},
		ShellSuffixes: []string{
			"holdings", "investments", "group", "capital", "partners",
			"management", "consulting", "advisory",
		},
		CorporateSuffixes: []string{
			"inc", "corp", "corporation", "ltd", "limited",
			"llc", "gmbh", "s.a.", "s.p.a.", "plc",
		},
		GovernmentKeywords: []string{
			"government", "ministry", "department", "agency",
		},
		FinancialKeywords: []string{
			"bank", "financial", "investment", "fund",
		},
	}
}

// Classifier classifies entity names. Pure and deterministic: the same name
// always yields the same type.
type Classifier struct {
	rules RuleTable
}

// NewClassifier creates a classifier with the given rule table.
func NewClassifier(rules RuleTable) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the entity type for a display name. Matching is
// case-insensitive. Indicator groups use whole-word matching so that a
// high-priority indicator anywhere in the name outranks a lower-priority
// suffix ("Example Foundation Inc" is a non-profit, not a corporation).
func (c *Classifier) Classify(name string) domain.EntityType {
	words := tokenize(name)
	lower := strings.ToLower(name)

	if hasAnyWord(words, c.rules.NonProfitSuffixes) {
		return domain.TypeNonProfit
	}
	if hasAnyWord(words, c.rules.ShellSuffixes) {
		return domain.TypeShellCompany
	}
	if hasAnyWord(words, c.rules.CorporateSuffixes) {
		return domain.TypeCorporation
	}
	if containsAny(lower, c.rules.GovernmentKeywords) {
		return domain.TypeGovernmentAgency
	}
	if containsAny(lower, c.rules.FinancialKeywords) {
		return domain.TypeFinancialIntermediary
	}

	return domain.TypeUnknown
}

// Confidence scores how confident the classification is, based on the name
// structure and whether a type was assigned. Always in [0,1].
func (c *Classifier) Confidence(name string, t domain.EntityType) float64 {
	score := 0.5

	if t != domain.TypeUnknown {
		score += 0.3
	}
	if strings.IndexFunc(name, unicode.IsUpper) >= 0 {
		score += 0.1
	}
	if strings.IndexFunc(name, unicode.IsDigit) >= 0 {
		score += 0.1
	}

	return domain.Clamp01(score)
}

// tokenize lowercases the name and splits it into words, trimming trailing
// punctuation so "Inc." and "Inc" compare equal.
func tokenize(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	for i, f := range fields {
		fields[i] = strings.TrimRight(f, ".,")
	}
	return fields
}

func hasAnyWord(words []string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.TrimRight(kw, ".")
		for _, w := range words {
			if w == kw {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
