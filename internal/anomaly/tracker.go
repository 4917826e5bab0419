package anomaly

import (
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Tracker is the stateful anomaly engine: it keeps a trailing per-entity
// transaction history and flags frequency, velocity and first-seen rules
// against it. History is pruned to the configured window after every
// observation, and the entity map is bounded: when full, the entity with
// the oldest activity is evicted.
type Tracker struct {
	mu          sync.Mutex
	thresholds  Thresholds
	maxEntities int
	histories   map[string]*entityHistory
}

type entityHistory struct {
	firstSeen time.Time
	lastSeen  time.Time
	entries   []historyEntry

	// daily maps YYYY-MM-DD to the summed amount observed that day.
	daily map[string]float64
}

type historyEntry struct {
	at       time.Time
	amount   float64
	currency string
}

// NewTracker creates a stateful tracker. maxEntities bounds the number of
// entities with retained history; zero or negative means 10000.
func NewTracker(thresholds Thresholds, maxEntities int) *Tracker {
	if maxEntities <= 0 {
		maxEntities = 10000
	}
	return &Tracker{
		thresholds:  thresholds,
		maxEntities: maxEntities,
		histories:   make(map[string]*entityHistory),
	}
}

// DetectAndRecord runs the full stateful variant: the shared amount rules,
// then, per entity, records the observation into that entity's history and
// evaluates the history-based rules against it.
func (t *Tracker) DetectAndRecord(now time.Time, amount float64, currency string, entities []*domain.Entity) []domain.Anomaly {
	anomalies := amountAnomalies(t.thresholds, amount, currency)
	return append(anomalies, t.Observe(now, amount, currency, entities)...)
}

// Observe records one transaction observation per entity and returns only
// the history-based anomalies (high_frequency, high_velocity, new_entity).
// Used by callers that evaluate the amount rules separately.
func (t *Tracker) Observe(now time.Time, amount float64, currency string, entities []*domain.Entity) []domain.Anomaly {
	t.mu.Lock()
	defer t.mu.Unlock()

	var anomalies []domain.Anomaly
	for _, e := range entities {
		h := t.record(now, e.Name, amount, currency)
		anomalies = append(anomalies, t.historyChecks(now, e.Name, h)...)
	}
	return anomalies
}

// TrackedEntities returns the number of entities with retained history.
func (t *Tracker) TrackedEntities() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.histories)
}

// record must be called with the lock held.
func (t *Tracker) record(now time.Time, name string, amount float64, currency string) *entityHistory {
	h, ok := t.histories[name]
	if !ok {
		if len(t.histories) >= t.maxEntities {
			t.evictOldest()
		}
		h = &entityHistory{
			firstSeen: now,
			daily:     make(map[string]float64),
		}
		t.histories[name] = h
	}

	h.lastSeen = now
	h.entries = append(h.entries, historyEntry{at: now, amount: amount, currency: currency})
	h.daily[dateKey(now)] += amount

	t.prune(now, h)
	return h
}

// prune drops entries and per-day sums older than the trailing window.
func (t *Tracker) prune(now time.Time, h *entityHistory) {
	cutoff := now.Add(-t.thresholds.HistoryWindow)

	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	h.entries = kept

	cutoffDate := dateKey(cutoff)
	for day := range h.daily {
		if day <= cutoffDate {
			delete(h.daily, day)
		}
	}
}

// historyChecks must be called with the lock held, after record.
func (t *Tracker) historyChecks(now time.Time, name string, h *entityHistory) []domain.Anomaly {
	var anomalies []domain.Anomaly

	today := dateKey(now)
	todayCount := 0
	for _, e := range h.entries {
		if dateKey(e.at) == today {
			todayCount++
		}
	}

	if todayCount > t.thresholds.DailyFrequency {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        domain.AnomalyHighFrequency,
			Severity:    severityHighFrequency,
			Description: fmt.Sprintf("High transaction frequency for %s", name),
			Evidence:    []string{"Transaction frequency exceeds threshold"},
		})
	}

	if h.daily[today] > t.thresholds.DailyVelocity {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        domain.AnomalyHighVelocity,
			Severity:    severityHighVelocity,
			Description: fmt.Sprintf("High transaction velocity for %s", name),
			Evidence:    []string{"Transaction velocity exceeds threshold"},
		})
	}

	newEntityWindow := time.Duration(t.thresholds.NewEntityDays) * 24 * time.Hour
	if now.Sub(h.firstSeen) < newEntityWindow {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        domain.AnomalyNewEntity,
			Severity:    severityNewEntity,
			Description: fmt.Sprintf("New entity detected: %s", name),
			Evidence:    []string{"Entity is new to the system"},
		})
	}

	return anomalies
}

// evictOldest must be called with the lock held.
func (t *Tracker) evictOldest() {
	var oldestName string
	var oldestSeen time.Time
	for name, h := range t.histories {
		if oldestName == "" || h.lastSeen.Before(oldestSeen) {
			oldestName = name
			oldestSeen = h.lastSeen
		}
	}
	if oldestName != "" {
		delete(t.histories, oldestName)
	}
}

func dateKey(at time.Time) string {
	return at.Format("2006-01-02")
}
