package domain

import "context"

// EntitySource extracts candidate entities from free text. Implementations
// tag each entity with an evidence source describing the extraction method.
type EntitySource interface {
	Extract(text string) []*Entity
}

// Enricher resolves a display name to a populated entity record. Enrichment
// is idempotent per name; repeated calls must return equivalent records.
type Enricher interface {
	Enrich(ctx context.Context, name string) (*Entity, error)
}

// TransactionSource produces transactions for batch and demo endpoints.
type TransactionSource interface {
	Generate() *Transaction
}
