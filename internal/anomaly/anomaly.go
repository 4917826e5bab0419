// Package anomaly provides rule-based anomaly detection for transactions
// and entity profiles. Every rule is a single explicit numeric test so that
// each flag traces to one auditable condition.
package anomaly

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Thresholds holds the numeric limits for the fixed rule set. Injected at
// construction and never mutated.
type Thresholds struct {
	// LargeAmount is the amount above which large_transaction fires.
	LargeAmount float64

	// RoundAmount is the divisor for the round_amount rule.
	RoundAmount float64

	// RoundAmountMin, when positive, additionally requires the amount to
	// exceed it for round_amount to fire (transaction-level variant).
	RoundAmountMin float64

	// DailyFrequency is the per-day transaction count above which
	// high_frequency fires.
	DailyFrequency int

	// DailyVelocity is the per-day summed amount above which high_velocity
	// fires.
	DailyVelocity float64

	// NewEntityDays: an entity first observed fewer than this many days ago
	// is flagged new_entity by the stateful tracker.
	NewEntityDays int

	// YoungIncorporationDays: an entity incorporated fewer than this many
	// days ago is flagged new_entity by the stateless detector.
	YoungIncorporationDays int

	// HistoryWindow is the trailing window retained per entity.
	HistoryWindow time.Duration
}

// DefaultThresholds returns the standard rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeAmount:            1_000_000,
		RoundAmount:            1_000,
		DailyFrequency:         5,
		DailyVelocity:          100_000,
		NewEntityDays:          30,
		YoungIncorporationDays: 180,
		HistoryWindow:          30 * 24 * time.Hour,
	}
}

// Severity constants for the fixed rules. large_transaction and
// high_risk_jurisdiction compute their severity from the input instead.
const (
	severityRoundAmount   = 0.7
	severityHighFrequency = 0.8
	severityHighVelocity  = 0.8
	severityNewEntity     = 0.6
	severityShellCompany  = 0.8
)

// jurisdiction weights above this value flag high_risk_jurisdiction.
const highRiskFloor = 0.6

// Detector is the stateless anomaly engine: a pure function of
// (now, amount, entities). Calling it twice with identical inputs yields
// identical output, order included.
type Detector struct {
	thresholds       Thresholds
	jurisdictionRisk map[string]float64
}

// NewDetector creates a stateless detector. jurisdictionRisk maps lowercase
// country codes to risk weights.
func NewDetector(thresholds Thresholds, jurisdictionRisk map[string]float64) *Detector {
	return &Detector{
		thresholds:       thresholds,
		jurisdictionRisk: jurisdictionRisk,
	}
}

// Detect evaluates the stateless rule set. Rules are independent: a
// transaction may trigger any subset. now anchors the incorporation-age
// check; the clock is a parameter to keep the engine deterministic.
func (d *Detector) Detect(now time.Time, amount float64, currency string, entities []*domain.Entity) []domain.Anomaly {
	anomalies := amountAnomalies(d.thresholds, amount, currency)

	for _, e := range entities {
		if weight, ok := d.highRiskWeight(e.Jurisdiction); ok {
			anomalies = append(anomalies, domain.Anomaly{
				Type:        domain.AnomalyHighRiskJurisdiction,
				Severity:    weight,
				Description: fmt.Sprintf("Entity in high-risk jurisdiction: %s", e.Jurisdiction),
				Evidence:    []string{fmt.Sprintf("Entity jurisdiction is %s", e.Jurisdiction)},
			})
		}

		if e.Type == domain.TypeShellCompany {
			anomalies = append(anomalies, domain.Anomaly{
				Type:        domain.AnomalyShellCompany,
				Severity:    severityShellCompany,
				Description: fmt.Sprintf("Entity appears to be a shell company: %s", e.Name),
				Evidence:    []string{"Entity classification", "Structure analysis"},
			})
		}

		if a, ok := d.youngIncorporation(now, e); ok {
			anomalies = append(anomalies, a)
		}
	}

	return anomalies
}

// youngIncorporation flags entities incorporated recently. An unparsable
// incorporation date is treated as absent: the rule does not fire and no
// error surfaces.
func (d *Detector) youngIncorporation(now time.Time, e *domain.Entity) (domain.Anomaly, bool) {
	if e.IncorporationDate == "" {
		return domain.Anomaly{}, false
	}
	incorporated, err := time.Parse("2006-01-02", e.IncorporationDate)
	if err != nil {
		return domain.Anomaly{}, false
	}

	ageDays := int(now.Sub(incorporated).Hours() / 24)
	if ageDays >= d.thresholds.YoungIncorporationDays {
		return domain.Anomaly{}, false
	}

	return domain.Anomaly{
		Type:        domain.AnomalyNewEntity,
		Severity:    severityNewEntity,
		Description: fmt.Sprintf("Recently formed entity: %s", e.Name),
		Evidence:    []string{fmt.Sprintf("Incorporation date: %s", e.IncorporationDate)},
	}, true
}

func (d *Detector) highRiskWeight(jurisdiction string) (float64, bool) {
	if jurisdiction == "" {
		return 0, false
	}
	weight, ok := d.jurisdictionRisk[strings.ToLower(jurisdiction)]
	if !ok || weight <= highRiskFloor {
		return 0, false
	}
	return weight, true
}

// amountAnomalies evaluates the two amount-only rules shared by the
// stateless and stateful variants.
func amountAnomalies(t Thresholds, amount float64, currency string) []domain.Anomaly {
	var anomalies []domain.Anomaly

	if amount > t.LargeAmount {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        domain.AnomalyLargeTransaction,
			Severity:    math.Min(amount/t.LargeAmount, 1.0),
			Description: fmt.Sprintf("Large transaction amount: %s %s", formatAmount(amount), currency),
			Evidence:    []string{"Transaction amount exceeds threshold"},
		})
	}

	if isRound(t, amount) {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        domain.AnomalyRoundAmount,
			Severity:    severityRoundAmount,
			Description: fmt.Sprintf("Round number transaction: %s %s", formatAmount(amount), currency),
			Evidence:    []string{"Transaction amount is a round number"},
		})
	}

	return anomalies
}

func isRound(t Thresholds, amount float64) bool {
	if math.Mod(amount, t.RoundAmount) != 0 {
		return false
	}
	if t.RoundAmountMin > 0 && amount <= t.RoundAmountMin {
		return false
	}
	return true
}

func formatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}
