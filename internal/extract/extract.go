// Package extract finds organization names in free-text transaction
// descriptions using pattern matching over capitalized word sequences.
package extract

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// EvidencePatternMatching tags entities discovered by the extractor.
const EvidencePatternMatching = "Pattern Matching"

// candidatePattern matches a run of capitalized words, allowing lowercase
// connectors inside the run ("Bank of Example Ltd").
var candidatePattern = regexp.MustCompile(`[A-Z][A-Za-z&.'-]*(?:\s+(?:of|and|the|&|[A-Z][A-Za-z&.'-]*))*`)

// suffixTokens are the organization suffix words that terminate a name.
// A candidate run only becomes an entity if it ends in one of these.
var suffixTokens = map[string]bool{
	// corporate
	"inc": true, "corp": true, "corporation": true, "ltd": true,
	"limited": true, "llc": true, "gmbh": true, "s.a": true,
	"s.p.a": true, "plc": true,
	// shell indicators
	"holdings": true, "investments": true, "group": true, "capital": true,
	"partners": true, "management": true, "consulting": true, "advisory": true,
	// non-profit indicators
	"foundation": true, "charity": true, "ngo": true, "non-profit": true,
	"nonprofit": true, "association": true, "society": true, "trust": true,
	// common name terminators seen in synthetic data
	"associates": true, "industries": true, "bank": true, "fund": true,
}

var connectorTokens = map[string]bool{
	"of": true, "and": true, "the": true, "&": true,
}

// Extractor implements domain.EntitySource over free text.
type Extractor struct {
	classifier *classify.Classifier
}

// New creates an extractor backed by the given classifier.
func New(classifier *classify.Classifier) *Extractor {
	return &Extractor{classifier: classifier}
}

// Extract returns the entities named in text, in order of first occurrence,
// deduplicated by exact name. Each entity carries its classified type, a
// confidence score and the pattern-matching evidence tag.
func (x *Extractor) Extract(text string) []*domain.Entity {
	var entities []*domain.Entity
	seen := make(map[string]bool)

	for _, candidate := range candidatePattern.FindAllString(text, -1) {
		for _, name := range splitOnSuffix(candidate) {
			if seen[name] {
				continue
			}
			seen[name] = true

			entityType := x.classifier.Classify(name)
			entities = append(entities, &domain.Entity{
				Name:            name,
				Type:            entityType,
				ConfidenceScore: x.classifier.Confidence(name, entityType),
				EvidenceSources: []string{EvidencePatternMatching},
			})
		}
	}

	return entities
}

// splitOnSuffix cuts a capitalized run into entity names, ending each name
// at a suffix token. Consecutive suffix tokens extend the name ("Open
// Society Foundation"); tokens after the last suffix are dropped, so
// "Acme Inc and Beta Ltd" yields two names and "Quarterly Payment" none.
func splitOnSuffix(candidate string) []string {
	tokens := strings.Fields(candidate)

	var names []string
	start := 0
	for i := 0; i < len(tokens); i++ {
		if i == start && connectorTokens[normalizeToken(tokens[i])] {
			start = i + 1
			continue
		}
		if suffixTokens[normalizeToken(tokens[i])] && i > start {
			for i+1 < len(tokens) && suffixTokens[normalizeToken(tokens[i+1])] {
				i++
			}
			names = append(names, strings.Join(tokens[start:i+1], " "))
			start = i + 1
		}
	}
	return names
}

func normalizeToken(tok string) string {
	return strings.TrimRight(strings.ToLower(tok), ".,")
}
