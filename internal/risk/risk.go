// Package risk computes weighted composite risk scores for entities and
// produces human-readable explanations for them.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Weights assigns the relative contribution of each risk factor. The five
// weights must sum to 1.0.
type Weights struct {
	EntityType float64 `json:"entityType"`
	Sanctions  float64 `json:"sanctions"`
	Reputation float64 `json:"reputation"`
	Anomalies  float64 `json:"anomalies"`
	Geographic float64 `json:"geographic"`
}

// Config holds the scoring tables. All values are fixed at construction.
type Config struct {
	Weights Weights

	// TypeRisk maps entity types to their baseline risk.
	TypeRisk map[domain.EntityType]float64

	// JurisdictionRisk maps lowercase country codes to geographic risk.
	// Codes not listed score neutral (0.5).
	JurisdictionRisk map[string]float64
}

// DefaultConfig returns the standard scoring tables.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			EntityType: 0.30,
			Sanctions:  0.25,
			Reputation: 0.20,
			Anomalies:  0.15,
			Geographic: 0.10,
		},
		TypeRisk: map[domain.EntityType]float64{
			domain.TypeShellCompany:          0.8,
			domain.TypeFinancialIntermediary: 0.6,
			domain.TypeCorporation:           0.4,
			domain.TypeNonProfit:             0.3,
			domain.TypeGovernmentAgency:      0.2,
			domain.TypeUnknown:               0.5,
		},
		JurisdictionRisk: map[string]float64{
			"ru": 0.8,
			"cn": 0.7,
			"ir": 0.9,
			"kp": 0.9,
			"sy": 0.8,
			"ve": 0.7,
			"mm": 0.7,
			"zw": 0.6,
		},
	}
}

const (
	neutralRisk    = 0.5
	sanctionedRisk = 0.8

	// poorReputationCeiling: reputation below this adds an explanation clause.
	poorReputationCeiling = 0.3

	// amountNormalizer converts a transaction amount to a [0,1] factor.
	amountNormalizer = 1_000_000
)

// Scorer computes composite risk scores. Stateless after construction.
type Scorer struct {
	cfg Config
}

// NewScorer validates the config and returns a scorer. Weights that do not
// sum to 1.0 are a deployment error, not a runtime condition.
func NewScorer(cfg Config) (*Scorer, error) {
	w := cfg.Weights
	sum := w.EntityType + w.Sanctions + w.Reputation + w.Anomalies + w.Geographic
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, fmt.Errorf("%w: risk weights sum to %.4f, want 1.0", domain.ErrInvalidInput, sum)
	}
	return &Scorer{cfg: cfg}, nil
}

// Score computes the composite risk score for an entity with no transaction
// context. Equivalent to ScoreTransaction with no anomalies and no amount.
func (s *Scorer) Score(e *domain.Entity) float64 {
	return s.ScoreTransaction(e, nil, 0)
}

// ScoreTransaction computes the weighted composite score for an entity in
// the context of a transaction. amount <= 0 means no transaction amount is
// available and the anomaly factor is the plain severity average.
func (s *Scorer) ScoreTransaction(e *domain.Entity, anomalies []domain.Anomaly, amount float64) float64 {
	w := s.cfg.Weights

	total := s.typeRisk(e.Type)*w.EntityType +
		sanctionsRisk(e)*w.Sanctions +
		reputationRisk(e)*w.Reputation +
		anomalyRisk(anomalies, amount)*w.Anomalies +
		s.geographicRisk(e.Jurisdiction)*w.Geographic

	return domain.Clamp01(total)
}

// Explain builds the human-readable reason string for a score: one clause
// per contributing factor, joined with " | ". Never empty.
func (s *Scorer) Explain(e *domain.Entity, anomalies []domain.Anomaly) string {
	var reasons []string

	switch e.Type {
	case domain.TypeShellCompany:
		reasons = append(reasons, "Entity is classified as a shell company")
	case domain.TypeFinancialIntermediary:
		reasons = append(reasons, "Entity is a financial intermediary")
	}

	if e.SanctionsStatus {
		reasons = append(reasons, "Entity is on sanctions list")
	}

	if r, ok := e.Reputation(); ok && r < poorReputationCeiling {
		reasons = append(reasons, "Entity has poor reputation based on news analysis")
	}

	for _, a := range anomalies {
		reasons = append(reasons, fmt.Sprintf("Anomaly detected: %s", a.Description))
	}

	if e.Jurisdiction != "" {
		if _, ok := s.cfg.JurisdictionRisk[strings.ToLower(e.Jurisdiction)]; ok {
			reasons = append(reasons, fmt.Sprintf("Entity is based in a high-risk jurisdiction (%s)", e.Jurisdiction))
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "Risk score based on standard entity assessment")
	}

	return strings.Join(reasons, " | ")
}

func (s *Scorer) typeRisk(t domain.EntityType) float64 {
	if r, ok := s.cfg.TypeRisk[t]; ok {
		return r
	}
	return neutralRisk
}

func (s *Scorer) geographicRisk(jurisdiction string) float64 {
	if jurisdiction == "" {
		return neutralRisk
	}
	if r, ok := s.cfg.JurisdictionRisk[strings.ToLower(jurisdiction)]; ok {
		return r
	}
	return neutralRisk
}

func sanctionsRisk(e *domain.Entity) float64 {
	if e.SanctionsStatus {
		return sanctionedRisk
	}
	return 0.0
}

// reputationRisk is the inverse of the reputation score; absent reputation
// scores neutral.
func reputationRisk(e *domain.Entity) float64 {
	r, ok := e.Reputation()
	if !ok {
		return neutralRisk
	}
	return 1.0 - r
}

// anomalyRisk averages anomaly severities, then averages that with a
// normalized amount factor when a transaction amount is present. No
// anomalies means zero anomaly risk regardless of amount.
func anomalyRisk(anomalies []domain.Anomaly, amount float64) float64 {
	if len(anomalies) == 0 {
		return 0.0
	}

	var sum float64
	for _, a := range anomalies {
		sum += a.Severity
	}
	avg := sum / float64(len(anomalies))

	if amount > 0 {
		amountFactor := math.Min(amount/amountNormalizer, 1.0)
		avg = (avg + amountFactor) / 2
	}

	return avg
}
