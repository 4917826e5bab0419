package domain

import "time"

// Transaction represents an incoming transaction whose free-text description
// is mined for entities to assess.
type Transaction struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`

	// Date is the transaction's business date in YYYY-MM-DD form.
	Date string `json:"date"`

	CreatedAt time.Time `json:"createdAt"`
}

// AnalysisResult is the outcome of scoring one entity found in one
// transaction. Produced fresh per request, never cached.
type AnalysisResult struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	EntityName    string     `json:"entityName"`
	EntityType    EntityType `json:"entityType"`
	RiskScore     float64    `json:"riskScore"`

	// Evidence is copied from the entity at scoring time.
	Evidence []string `json:"supportingEvidence"`

	ConfidenceScore float64 `json:"confidenceScore"`

	// Reason is the ordered, human-readable explanation of the score.
	Reason string `json:"reason"`

	Timestamp time.Time `json:"timestamp"`
}
