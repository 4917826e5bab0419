package domain

import "time"

// CustomRule is an operator-defined anomaly rule. The fixed detection rule
// set is compiled into the anomaly package; custom rules extend the open
// anomaly taxonomy with CEL expressions evaluated per (transaction, entity).
type CustomRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expression is a CEL expression over amount, currency and entity
	// fields. It must return bool; true emits an anomaly.
	Expression string `json:"expression"`

	// AnomalyType is the tag given to emitted anomalies.
	AnomalyType string `json:"anomalyType"`

	// Severity in [0,1] assigned to emitted anomalies.
	Severity float64 `json:"severity"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
