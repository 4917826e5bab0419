// Package enrich resolves entity names to full records through a provider,
// caching results and recomputing confidence from the gathered evidence.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service wraps an enrichment provider with a cache. Cache failures degrade
// to provider calls; they never fail the enrichment.
type Service struct {
	provider domain.Enricher
	cache    domain.Cache
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService creates an enrichment service. cache may be nil, in which case
// every call hits the provider.
func NewService(provider domain.Enricher, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
	}
}

// Enrich resolves a name to a full entity record. The cached record is
// returned as-is; on miss the provider record gets its confidence updated
// from the evidence before caching.
func (s *Service) Enrich(ctx context.Context, name string) (*domain.Entity, error) {
	if s.cache != nil {
		cached, err := s.cache.GetEntity(ctx, name)
		if err != nil {
			s.logger.Warn("entity cache read failed", "entity", name, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	entity, err := s.provider.Enrich(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("enrich %q: %w", name, err)
	}

	entity.ConfidenceScore = UpdateConfidence(entity)

	if s.cache != nil {
		if err := s.cache.SetEntity(ctx, name, entity, s.ttl); err != nil {
			s.logger.Warn("entity cache write failed", "entity", name, "error", err)
		}
	}

	return entity, nil
}

// UpdateConfidence recomputes an entity's confidence from its evidence:
// 0.1 per evidence source plus 0.1 per populated registry field, added to
// the current score and capped at 1.0.
func UpdateConfidence(e *domain.Entity) float64 {
	score := e.ConfidenceScore

	score += float64(len(e.EvidenceSources)) * 0.1

	if e.RegistrationNumber != "" {
		score += 0.1
	}
	if e.Jurisdiction != "" {
		score += 0.1
	}
	if e.IncorporationDate != "" {
		score += 0.1
	}
	if len(e.Directors) > 0 {
		score += 0.1
	}
	if len(e.Shareholders) > 0 {
		score += 0.1
	}

	return domain.Clamp01(score)
}
