// Package domain defines the core interfaces and types for Kestrel.
package domain

// EntityType is the categorical classification of a named organization.
type EntityType string

const (
	TypeCorporation           EntityType = "Corporation"
	TypeNonProfit             EntityType = "Non-Profit"
	TypeShellCompany          EntityType = "Shell Company"
	TypeGovernmentAgency      EntityType = "Government Agency"
	TypeFinancialIntermediary EntityType = "Financial Intermediary"
	TypeUnknown               EntityType = "Unknown"
)

// Entity represents a named organization subject to risk assessment.
// The display name is the primary key: enrichment results and transaction
// history are both keyed by it, case-sensitively.
type Entity struct {
	Name            string     `json:"name"`
	Type            EntityType `json:"type"`
	ConfidenceScore float64    `json:"confidenceScore"`

	// EvidenceSources records which processes contributed data, in discovery
	// order. Append-only; duplicates allowed. Feeds the risk reason string.
	EvidenceSources []string `json:"evidenceSources"`

	RegistrationNumber string `json:"registrationNumber,omitempty"`

	// Jurisdiction is an ISO-2 style country code. Case varies by producer;
	// consumers must normalize before lookup.
	Jurisdiction string `json:"jurisdiction,omitempty"`

	// IncorporationDate in YYYY-MM-DD form. May fail to parse; consumers
	// treat an unparsable date as absent.
	IncorporationDate string `json:"incorporationDate,omitempty"`

	Directors    []string `json:"directors,omitempty"`
	Shareholders []string `json:"shareholders,omitempty"`

	SanctionsStatus bool `json:"sanctionsStatus"`

	RiskFactors map[string]float64 `json:"riskFactors,omitempty"`

	// ReputationScore in [0,1]; higher means better reputation (inverse of
	// risk). Nil means no reputation data was gathered.
	ReputationScore *float64 `json:"reputationScore,omitempty"`
}

// Reputation returns the reputation score and whether one is set.
func (e *Entity) Reputation() (float64, bool) {
	if e.ReputationScore == nil {
		return 0, false
	}
	return *e.ReputationScore, true
}

// SetReputation sets the reputation score, clamped to [0,1].
func (e *Entity) SetReputation(score float64) {
	v := Clamp01(score)
	e.ReputationScore = &v
}

// AddEvidence appends evidence source tags, preserving discovery order.
func (e *Entity) AddEvidence(sources ...string) {
	e.EvidenceSources = append(e.EvidenceSources, sources...)
}

// Merge copies attributes from other into e additively: evidence is
// appended, and only fields that e has not already set are filled in.
// Previously populated fields are never overwritten.
func (e *Entity) Merge(other *Entity) {
	if other == nil {
		return
	}
	e.AddEvidence(other.EvidenceSources...)
	if e.Type == TypeUnknown && other.Type != TypeUnknown {
		e.Type = other.Type
	}
	if e.RegistrationNumber == "" {
		e.RegistrationNumber = other.RegistrationNumber
	}
	if e.Jurisdiction == "" {
		e.Jurisdiction = other.Jurisdiction
	}
	if e.IncorporationDate == "" {
		e.IncorporationDate = other.IncorporationDate
	}
	if e.Directors == nil {
		e.Directors = other.Directors
	}
	if e.Shareholders == nil {
		e.Shareholders = other.Shareholders
	}
	if other.SanctionsStatus {
		e.SanctionsStatus = true
	}
	if e.RiskFactors == nil {
		e.RiskFactors = other.RiskFactors
	}
	if e.ReputationScore == nil {
		e.ReputationScore = other.ReputationScore
	}
	if other.ConfidenceScore > e.ConfidenceScore {
		e.ConfidenceScore = Clamp01(other.ConfidenceScore)
	}
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Anomaly is a flagged, severity-scored irregularity in a transaction or
// entity profile. Immutable once constructed; each anomaly carries its own
// evidence and no deduplication happens across anomalies.
type Anomaly struct {
	Type        string   `json:"type"`
	Severity    float64  `json:"severity"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// Known anomaly type tags. The set is open: custom rules may emit
// additional tags.
const (
	AnomalyLargeTransaction     = "large_transaction"
	AnomalyRoundAmount          = "round_amount"
	AnomalyHighFrequency        = "high_frequency"
	AnomalyHighVelocity         = "high_velocity"
	AnomalyNewEntity            = "new_entity"
	AnomalyHighRiskJurisdiction = "high_risk_jurisdiction"
	AnomalyShellCompany         = "shell_company"
)
