package enrich

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type stubProvider struct {
	calls  int
	entity *domain.Entity
	err    error
}

func (p *stubProvider) Enrich(_ context.Context, name string) (*domain.Entity, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	e := *p.entity
	e.Name = name
	return &e, nil
}

type stubCache struct {
	domain.Cache
	entities map[string]*domain.Entity
	getErr   error
	setErr   error
}

func newStubCache() *stubCache {
	return &stubCache{entities: make(map[string]*domain.Entity)}
}

func (c *stubCache) GetEntity(_ context.Context, name string) (*domain.Entity, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entities[name], nil
}

func (c *stubCache) SetEntity(_ context.Context, name string, e *domain.Entity, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entities[name] = e
	return nil
}

func TestEnrichCachesResult(t *testing.T) {
	provider := &stubProvider{entity: &domain.Entity{Type: domain.TypeCorporation}}
	cache := newStubCache()
	svc := NewService(provider, cache, time.Hour, nil)
	ctx := context.Background()

	first, err := svc.Enrich(ctx, "Acme Inc")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	second, err := svc.Enrich(ctx, "Acme Inc")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
	if first.Name != second.Name {
		t.Error("cached record differs from original")
	}
}

func TestEnrichCacheFailureDegrades(t *testing.T) {
	provider := &stubProvider{entity: &domain.Entity{Type: domain.TypeCorporation}}
	cache := newStubCache()
	cache.getErr = errors.New("cache down")
	cache.setErr = errors.New("cache down")
	svc := NewService(provider, cache, time.Hour, nil)

	if _, err := svc.Enrich(context.Background(), "Acme Inc"); err != nil {
		t.Fatalf("Enrich should survive a cache outage: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestEnrichProviderError(t *testing.T) {
	provider := &stubProvider{err: domain.ErrNotFound}
	svc := NewService(provider, nil, time.Hour, nil)

	_, err := svc.Enrich(context.Background(), "Ghost Corp")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected wrapped ErrNotFound, got %v", err)
	}
}

func TestUpdateConfidence(t *testing.T) {
	tests := []struct {
		name   string
		entity domain.Entity
		want   float64
	}{
		{
			"no evidence",
			domain.Entity{ConfidenceScore: 0.5},
			0.5,
		},
		{
			"evidence and fields",
			domain.Entity{
				ConfidenceScore:    0.5,
				EvidenceSources:    []string{"Company Registry", "News Analysis"},
				RegistrationNumber: "US1234567",
				Jurisdiction:       "US",
			},
			0.9,
		},
		{
			"capped at one",
			domain.Entity{
				ConfidenceScore:    0.9,
				EvidenceSources:    []string{"a", "b", "c"},
				RegistrationNumber: "X",
				Jurisdiction:       "X",
				IncorporationDate:  "2020-01-01",
				Directors:          []string{"D"},
				Shareholders:       []string{"S"},
			},
			1.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := UpdateConfidence(&tc.entity)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("UpdateConfidence = %.2f, want %.2f", got, tc.want)
			}
		})
	}
}
