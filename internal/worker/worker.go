// Package worker provides async transaction processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// Worker consumes ingested transactions from the EventBus and runs the
// analysis pipeline over them. The pipeline publishes the analyzed and
// alert events itself.
type Worker struct {
	bus      domain.EventBus
	analyzer *pipeline.Analyzer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, analyzer *pipeline.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingested-transaction topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// TransactionMessage is the message payload for transaction ingestion.
type TransactionMessage struct {
	TxID        string  `json:"txId,omitempty"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Date        string  `json:"date,omitempty"`
}

// handleMessage analyzes one ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tx := &domain.Transaction{
		ID:          txMsg.TxID,
		Description: txMsg.Description,
		Amount:      txMsg.Amount,
		Currency:    txMsg.Currency,
		Date:        txMsg.Date,
		CreatedAt:   time.Now().UTC(),
	}

	analysis, err := w.analyzer.Analyze(ctx, tx)
	if err != nil {
		slog.Error("async analysis failed",
			"tx_id", tx.ID,
			"error", err,
		)
		return err
	}

	slog.Info("transaction processed",
		"tx_id", analysis.Transaction.ID,
		"entity_count", len(analysis.Entities),
		"anomaly_count", len(analysis.Anomalies),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
