package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/enrich"
	"github.com/opensource-finance/kestrel/internal/extract"
	"github.com/opensource-finance/kestrel/internal/risk"
)

func testClock() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingProvider enriches by name from a fixed table; unknown names fail.
type recordingProvider struct {
	records map[string]*domain.Entity
	calls   int
}

func (p *recordingProvider) Enrich(_ context.Context, name string) (*domain.Entity, error) {
	p.calls++
	if e, ok := p.records[name]; ok {
		copied := *e
		copied.Name = name
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

// capturingRepo records saves. Unimplemented Repository methods panic, which
// is fine: the pipeline only ever saves.
type capturingRepo struct {
	domain.Repository
	transactions []*domain.Transaction
	entities     []*domain.Entity
	analyses     []*domain.AnalysisResult
}

func (r *capturingRepo) SaveTransaction(_ context.Context, tx *domain.Transaction) error {
	r.transactions = append(r.transactions, tx)
	return nil
}

func (r *capturingRepo) SaveEntity(_ context.Context, e *domain.Entity) error {
	r.entities = append(r.entities, e)
	return nil
}

func (r *capturingRepo) SaveAnalysis(_ context.Context, a *domain.AnalysisResult) error {
	r.analyses = append(r.analyses, a)
	return nil
}

func newTestAnalyzer(t *testing.T, provider domain.Enricher, repo domain.Repository, eventBus domain.EventBus) *Analyzer {
	t.Helper()

	scorer, err := risk.NewScorer(risk.DefaultConfig())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	jurisdictionRisk := map[string]float64{"ru": 0.8, "ir": 0.9, "us": 0.2}

	return NewAnalyzer(Config{
		Source:   extract.New(classify.NewClassifier(classify.DefaultRules())),
		Enricher: enrich.NewService(provider, nil, time.Hour, discardLogger()),
		Detector: anomaly.NewDetector(anomaly.DefaultThresholds(), jurisdictionRisk),
		Tracker:  anomaly.NewTracker(anomaly.DefaultThresholds(), 100),
		Scorer:   scorer,
		Repo:     repo,
		Bus:      eventBus,
		Now:      testClock,
		Logger:   discardLogger(),
	})
}

func TestAnalyzeSanctionedShell(t *testing.T) {
	provider := &recordingProvider{records: map[string]*domain.Entity{
		"Shadow Holdings": {
			Type:            domain.TypeShellCompany,
			Jurisdiction:    "RU",
			SanctionsStatus: true,
			EvidenceSources: []string{"Sanctions List"},
		},
		"Acme Inc": {
			Type:            domain.TypeCorporation,
			Jurisdiction:    "US",
			EvidenceSources: []string{"Company Registry"},
		},
	}}
	analyzer := newTestAnalyzer(t, provider, nil, nil)

	analysis, err := analyzer.Analyze(context.Background(), &domain.Transaction{
		Description: "Payment from Shadow Holdings to Acme Inc",
		Amount:      2_000_000,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(analysis.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(analysis.Results))
	}

	byName := make(map[string]*domain.AnalysisResult)
	for _, r := range analysis.Results {
		byName[r.EntityName] = r
	}

	shell, ok := byName["Shadow Holdings"]
	if !ok {
		t.Fatal("no result for Shadow Holdings")
	}
	corp := byName["Acme Inc"]
	if corp == nil {
		t.Fatal("no result for Acme Inc")
	}

	if shell.RiskScore <= corp.RiskScore {
		t.Errorf("sanctioned shell scored %.2f, below corporation's %.2f",
			shell.RiskScore, corp.RiskScore)
	}
	if shell.EntityType != domain.TypeShellCompany {
		t.Errorf("EntityType = %s, want %s", shell.EntityType, domain.TypeShellCompany)
	}
	if shell.Reason == "" {
		t.Error("empty reason string")
	}

	types := make(map[string]bool)
	for _, a := range analysis.Anomalies {
		types[a.Type] = true
	}
	for _, want := range []string{
		domain.AnomalyLargeTransaction,
		domain.AnomalyShellCompany,
		domain.AnomalyHighRiskJurisdiction,
		domain.AnomalyNewEntity,
	} {
		if !types[want] {
			t.Errorf("missing anomaly %s (got %v)", want, analysis.Anomalies)
		}
	}
}

func TestAnalyzeNoEntities(t *testing.T) {
	provider := &recordingProvider{records: map[string]*domain.Entity{}}
	analyzer := newTestAnalyzer(t, provider, nil, nil)

	analysis, err := analyzer.Analyze(context.Background(), &domain.Transaction{
		Description: "Quarterly payment processing",
		Amount:      1200,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(analysis.Results) != 0 {
		t.Errorf("got %d results for entity-free text, want 0", len(analysis.Results))
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times with nothing extracted", provider.calls)
	}
}

func TestAnalyzeEnrichmentFailureDegrades(t *testing.T) {
	// Provider knows nothing; extraction alone must still carry the analysis.
	provider := &recordingProvider{records: map[string]*domain.Entity{}}
	analyzer := newTestAnalyzer(t, provider, nil, nil)

	analysis, err := analyzer.Analyze(context.Background(), &domain.Transaction{
		Description: "Transfer from Meridian Holdings to Beta Ltd",
		Amount:      50_000,
		Currency:    "EUR",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(analysis.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(analysis.Results))
	}
	for _, r := range analysis.Results {
		if r.RiskScore <= 0 {
			t.Errorf("%s: zero risk score from extraction-only record", r.EntityName)
		}
	}
}

func TestAnalyzeInvalidInput(t *testing.T) {
	analyzer := newTestAnalyzer(t, &recordingProvider{}, nil, nil)

	tests := []struct {
		name string
		tx   *domain.Transaction
	}{
		{"nil transaction", nil},
		{"empty description", &domain.Transaction{Amount: 100}},
		{"negative amount", &domain.Transaction{Description: "Payment from Acme Inc to Beta Ltd", Amount: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := analyzer.Analyze(context.Background(), tc.tx)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestAnalyzePersists(t *testing.T) {
	provider := &recordingProvider{records: map[string]*domain.Entity{
		"Acme Inc": {Type: domain.TypeCorporation, Jurisdiction: "US"},
	}}
	repo := &capturingRepo{}
	analyzer := newTestAnalyzer(t, provider, repo, nil)

	analysis, err := analyzer.Analyze(context.Background(), &domain.Transaction{
		Description: "Invoice from Acme Inc to Beta Ltd",
		Amount:      900,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(repo.transactions) != 1 {
		t.Errorf("saved %d transactions, want 1", len(repo.transactions))
	}
	if len(repo.entities) != len(analysis.Entities) {
		t.Errorf("saved %d entities, want %d", len(repo.entities), len(analysis.Entities))
	}
	if len(repo.analyses) != len(analysis.Results) {
		t.Errorf("saved %d analyses, want %d", len(repo.analyses), len(analysis.Results))
	}
	if analysis.Transaction.ID == "" {
		t.Error("transaction was not assigned an ID")
	}
}

func TestAnalyzePublishesAlert(t *testing.T) {
	provider := &recordingProvider{records: map[string]*domain.Entity{
		"Shadow Holdings": {
			Type:            domain.TypeShellCompany,
			Jurisdiction:    "IR",
			SanctionsStatus: true,
		},
	}}

	eventBus := bus.NewChannelBus(16)
	defer eventBus.Close()

	alerts := make(chan *domain.Message, 4)
	_, err := eventBus.Subscribe(context.Background(), domain.TopicAlert, func(_ context.Context, msg *domain.Message) error {
		alerts <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	analyzer := newTestAnalyzer(t, provider, nil, eventBus)
	_, err = analyzer.Analyze(context.Background(), &domain.Transaction{
		Description: "Transfer from Shadow Holdings to unknown parties",
		Amount:      5_000_000,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	select {
	case msg := <-alerts:
		if msg.Topic != domain.TopicAlert {
			t.Errorf("alert published to %q", msg.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert published for a sanctioned shell company")
	}
}

func TestAnalyzeBatch(t *testing.T) {
	provider := &recordingProvider{records: map[string]*domain.Entity{}}
	analyzer := newTestAnalyzer(t, provider, nil, nil)

	txs := []*domain.Transaction{
		{Description: "Payment from Acme Inc to Beta Ltd", Amount: 1000, Currency: "USD"},
		{Description: ""}, // invalid, slot stays nil
		{Description: "Transfer from Gamma Corp to Delta Group", Amount: 2000, Currency: "EUR"},
	}

	out := analyzer.AnalyzeBatch(context.Background(), txs, 2)

	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	if out[0] == nil || out[2] == nil {
		t.Error("valid transactions produced nil analyses")
	}
	if out[1] != nil {
		t.Error("invalid transaction produced a non-nil analysis")
	}
	if out[0] != nil && out[2] != nil && out[0].Transaction.ID == out[2].Transaction.ID {
		t.Error("batch transactions share an ID")
	}
}
