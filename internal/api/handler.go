package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/enrich"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/risk"
)

// maxBatchSize caps POST /batch-analyze so a single request cannot tie up
// the server generating and analyzing transactions.
const maxBatchSize = 100

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	analyzer  *pipeline.Analyzer
	enricher  *enrich.Service
	source    domain.EntitySource
	generator domain.TransactionSource
	custom    *anomaly.CustomEngine
	scorer    *risk.Scorer
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, analyzer *pipeline.Analyzer, enricher *enrich.Service, source domain.EntitySource, generator domain.TransactionSource, custom *anomaly.CustomEngine, scorer *risk.Scorer, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		analyzer:  analyzer,
		enricher:  enricher,
		source:    source,
		generator: generator,
		custom:    custom,
		scorer:    scorer,
		version:   version,
	}
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	ID          string  `json:"id,omitempty"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Date        string  `json:"date,omitempty"`
}

// Analyze handles POST /analyze: run the full pipeline over one transaction.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "description is required",
		})
		return
	}
	if req.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be non-negative",
		})
		return
	}

	tx := &domain.Transaction{
		ID:          req.ID,
		Description: req.Description,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Date:        req.Date,
		CreatedAt:   time.Now().UTC(),
	}

	analysis, err := h.analyzer.Analyze(ctx, tx)
	if err != nil {
		writeDomainError(w, err, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// BatchAnalyzeRequest is the request body for POST /batch-analyze.
type BatchAnalyzeRequest struct {
	Count int `json:"count"`
}

// BatchAnalyze handles POST /batch-analyze: generate N synthetic
// transactions and analyze them concurrently.
func (h *Handler) BatchAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	count := req.Count
	if count <= 0 {
		count = 10
	}
	if count > maxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "count exceeds the batch limit of 100",
		})
		return
	}

	txs := make([]*domain.Transaction, count)
	for i := range txs {
		txs[i] = h.generator.Generate()
	}

	analyses := h.analyzer.AnalyzeBatch(ctx, txs, 4)

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GenerateTransaction handles GET /generate-transaction.
func (h *Handler) GenerateTransaction(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.generator.Generate())
}

// ExtractEntities handles GET /extract-entities?text=...
func (h *Handler) ExtractEntities(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "text query parameter is required",
		})
		return
	}

	entities := h.source.Extract(text)
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"count":    len(entities),
	})
}

// GetEntity handles GET /entities/{name}: the enriched record for a name.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	name := entityName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entity name is required",
		})
		return
	}

	entity, err := h.enricher.Enrich(r.Context(), name)
	if err != nil {
		writeDomainError(w, err, "enrichment failed")
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

// GetEntityRiskScore handles GET /entities/{name}/risk-score: enrich the
// entity and score it standalone, outside any transaction context.
func (h *Handler) GetEntityRiskScore(w http.ResponseWriter, r *http.Request) {
	name := entityName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entity name is required",
		})
		return
	}

	entity, err := h.enricher.Enrich(r.Context(), name)
	if err != nil {
		writeDomainError(w, err, "enrichment failed")
		return
	}

	score := h.scorer.Score(entity)
	writeJSON(w, http.StatusOK, map[string]any{
		"entityName": entity.Name,
		"entityType": entity.Type,
		"riskScore":  score,
		"reason":     h.scorer.Explain(entity, nil),
	})
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		writeDomainError(w, err, "failed to get transaction")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListTransactionAnalyses handles GET /transactions/{id}/analyses.
func (h *Handler) ListTransactionAnalyses(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	results, err := h.repo.ListAnalysesByTransaction(r.Context(), txID)
	if err != nil {
		writeDomainError(w, err, "failed to list analyses")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": results,
		"count":    len(results),
	})
}

// GetAnalysis handles GET /analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetAnalysis(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get analysis")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListRules returns all rules loaded in the custom anomaly engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.custom.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.custom.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom anomaly rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	AnomalyType string  `json:"anomalyType"`
	Severity    float64 `json:"severity"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule creates a new custom anomaly rule, loads it into the engine,
// and saves it to the database.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" || req.AnomalyType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, expression, and anomalyType are required",
		})
		return
	}

	rule := &domain.CustomRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		AnomalyType: req.AnomalyType,
		Severity:    req.Severity,
		Enabled:     req.Enabled,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	// Validate the CEL expression by attempting to load
	if err := h.custom.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveCustomRule(ctx, rule); err != nil {
			slog.Error("failed to save custom rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("custom rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created and loaded into the engine.",
	})
}

// DeleteRule disables a rule in the database and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteCustomRule(ctx, ruleID); err != nil {
		writeDomainError(w, err, "failed to delete rule")
		return
	}

	// Reload so the disabled rule drops out of the engine.
	if err := h.reloadEngine(ctx); err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	}

	slog.Info("custom rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all enabled rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.reloadEngine(ctx); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	count := h.custom.RulesCount()
	slog.Info("custom rules reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) reloadEngine(ctx context.Context) error {
	dbRules, err := h.repo.ListCustomRules(ctx)
	if err != nil {
		return err
	}
	return h.custom.ReloadRules(dbRules)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// entityName extracts and unescapes the {name} URL parameter.
func entityName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// writeDomainError maps domain sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error(fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fallback,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
