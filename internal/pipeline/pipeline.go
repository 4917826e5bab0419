// Package pipeline orchestrates the analysis flow: extract entities from a
// transaction description, enrich each one, run the anomaly engines, then
// score every entity and assemble the results.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/enrich"
	"github.com/opensource-finance/kestrel/internal/risk"
)

// DefaultAlertThreshold is the risk score at which an alert is published.
const DefaultAlertThreshold = 0.7

// Analysis is the full outcome of analyzing one transaction: the entities
// found (post-enrichment), the anomalies flagged, and one result per entity.
type Analysis struct {
	Transaction *domain.Transaction     `json:"transaction"`
	Entities    []*domain.Entity        `json:"entities"`
	Anomalies   []domain.Anomaly        `json:"anomalies"`
	Results     []*domain.AnalysisResult `json:"results"`
}

// Config holds the pipeline's collaborators. Repo and Bus may be nil;
// persistence and events are then skipped. Tracker and Custom may be nil to
// disable history-based and custom-rule detection respectively.
type Config struct {
	Source   domain.EntitySource
	Enricher *enrich.Service
	Detector *anomaly.Detector
	Tracker  *anomaly.Tracker
	Custom   *anomaly.CustomEngine
	Scorer   *risk.Scorer

	Repo domain.Repository
	Bus  domain.EventBus

	// AlertThreshold is the risk score at or above which an alert event is
	// published per result. Zero means DefaultAlertThreshold.
	AlertThreshold float64

	// Now anchors time-based rules. Nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Analyzer runs the analysis pipeline. Safe for concurrent use; the stateful
// tracker serializes its own mutations.
type Analyzer struct {
	source   domain.EntitySource
	enricher *enrich.Service
	detector *anomaly.Detector
	tracker  *anomaly.Tracker
	custom   *anomaly.CustomEngine
	scorer   *risk.Scorer

	repo domain.Repository
	bus  domain.EventBus

	alertThreshold float64
	now            func() time.Time
	logger         *slog.Logger
}

// NewAnalyzer creates an analyzer from the given collaborators.
func NewAnalyzer(cfg Config) *Analyzer {
	threshold := cfg.AlertThreshold
	if threshold == 0 {
		threshold = DefaultAlertThreshold
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		source:         cfg.Source,
		enricher:       cfg.Enricher,
		detector:       cfg.Detector,
		tracker:        cfg.Tracker,
		custom:         cfg.Custom,
		scorer:         cfg.Scorer,
		repo:           cfg.Repo,
		bus:            cfg.Bus,
		alertThreshold: threshold,
		now:            now,
		logger:         logger,
	}
}

// Analyze runs the full pipeline for one transaction. Enrichment failures
// degrade to the extracted entity; persistence and event failures are logged
// and never fail the request. A description naming no entities yields an
// analysis with empty results, not an error.
func (a *Analyzer) Analyze(ctx context.Context, tx *domain.Transaction) (*Analysis, error) {
	if tx == nil || tx.Description == "" {
		return nil, fmt.Errorf("%w: transaction description is required", domain.ErrInvalidInput)
	}
	if tx.Amount < 0 {
		return nil, fmt.Errorf("%w: transaction amount must be non-negative", domain.ErrInvalidInput)
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	start := time.Now()
	now := a.now()

	entities := a.source.Extract(tx.Description)
	for _, e := range entities {
		enriched, err := a.enricher.Enrich(ctx, e.Name)
		if err != nil {
			a.logger.Warn("enrichment failed, keeping extracted record",
				"entity", e.Name,
				"error", err,
			)
			continue
		}
		e.Merge(enriched)
		a.publish(ctx, domain.TopicEntityEnriched, e)
	}

	anomalies := a.detectAnomalies(now, tx, entities)

	results := make([]*domain.AnalysisResult, 0, len(entities))
	for _, e := range entities {
		score := a.scorer.ScoreTransaction(e, anomalies, tx.Amount)
		results = append(results, &domain.AnalysisResult{
			ID:              uuid.NewString(),
			TransactionID:   tx.ID,
			EntityName:      e.Name,
			EntityType:      e.Type,
			RiskScore:       score,
			Evidence:        append([]string(nil), e.EvidenceSources...),
			ConfidenceScore: e.ConfidenceScore,
			Reason:          a.scorer.Explain(e, anomalies),
			Timestamp:       now,
		})
	}

	analysis := &Analysis{
		Transaction: tx,
		Entities:    entities,
		Anomalies:   anomalies,
		Results:     results,
	}

	a.persist(ctx, analysis)
	a.publishResults(ctx, analysis)

	a.logger.Info("transaction analyzed",
		"tx_id", tx.ID,
		"entity_count", len(entities),
		"anomaly_count", len(anomalies),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return analysis, nil
}

// AnalyzeBatch analyzes transactions concurrently with at most workers
// goroutines. Results are positional: out[i] belongs to txs[i], with nil in
// the slot of any transaction that failed.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, txs []*domain.Transaction, workers int) []*Analysis {
	if workers <= 0 {
		workers = 4
	}
	if workers > len(txs) {
		workers = len(txs)
	}

	out := make([]*Analysis, len(txs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, tx := range txs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tx *domain.Transaction) {
			defer wg.Done()
			defer func() { <-sem }()

			analysis, err := a.Analyze(ctx, tx)
			if err != nil {
				a.logger.Error("batch analysis failed",
					"index", i,
					"error", err,
				)
				return
			}
			out[i] = analysis
		}(i, tx)
	}

	wg.Wait()
	return out
}

// detectAnomalies combines the stateless rules, the history tracker, and the
// custom rule engine. The tracker only contributes history-based flags here;
// the amount rules come from the detector, so nothing fires twice.
func (a *Analyzer) detectAnomalies(now time.Time, tx *domain.Transaction, entities []*domain.Entity) []domain.Anomaly {
	anomalies := a.detector.Detect(now, tx.Amount, tx.Currency, entities)
	if a.tracker != nil {
		anomalies = append(anomalies, a.tracker.Observe(now, tx.Amount, tx.Currency, entities)...)
	}
	if a.custom != nil {
		anomalies = append(anomalies, a.custom.Evaluate(tx.Amount, tx.Currency, entities)...)
	}
	return anomalies
}

// persist writes the transaction, entities, and results. Failures are logged;
// the analysis already happened and is returned regardless.
func (a *Analyzer) persist(ctx context.Context, analysis *Analysis) {
	if a.repo == nil {
		return
	}

	if err := a.repo.SaveTransaction(ctx, analysis.Transaction); err != nil {
		a.logger.Error("failed to save transaction",
			"tx_id", analysis.Transaction.ID,
			"error", err,
		)
	}
	for _, e := range analysis.Entities {
		if err := a.repo.SaveEntity(ctx, e); err != nil {
			a.logger.Error("failed to save entity",
				"entity", e.Name,
				"error", err,
			)
		}
	}
	for _, r := range analysis.Results {
		if err := a.repo.SaveAnalysis(ctx, r); err != nil {
			a.logger.Error("failed to save analysis",
				"analysis_id", r.ID,
				"error", err,
			)
		}
	}
}

// publishResults emits the analyzed event, plus an alert per result whose
// score reaches the threshold.
func (a *Analyzer) publishResults(ctx context.Context, analysis *Analysis) {
	if a.bus == nil {
		return
	}

	a.publish(ctx, domain.TopicTransactionAnalyzed, analysis)

	for _, r := range analysis.Results {
		if r.RiskScore >= a.alertThreshold {
			a.publish(ctx, domain.TopicAlert, r)
		}
	}
}

func (a *Analyzer) publish(ctx context.Context, topic string, v any) {
	if a.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("failed to marshal event payload",
			"topic", topic,
			"error", err,
		)
		return
	}
	if err := a.bus.Publish(ctx, topic, payload); err != nil {
		a.logger.Error("failed to publish event",
			"topic", topic,
			"error", err,
		)
	}
}
