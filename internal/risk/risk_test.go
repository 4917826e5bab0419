package risk

import (
	"math"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultConfig())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func TestNewScorerRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Sanctions = 0.5

	if _, err := NewScorer(cfg); err == nil {
		t.Fatal("expected error for weights not summing to 1.0")
	}
}

func TestScoreSanctionedShellCompany(t *testing.T) {
	s := newTestScorer(t)

	e := &domain.Entity{
		Name:            "Shadow Holdings",
		Type:            domain.TypeShellCompany,
		SanctionsStatus: true,
		Jurisdiction:    "ru",
	}
	e.SetReputation(0.0)

	// 0.8*0.30 + 0.8*0.25 + 1.0*0.20 + 0.0*0.15 + 0.8*0.10
	want := 0.24 + 0.20 + 0.20 + 0.0 + 0.08
	got := s.Score(e)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Score = %.4f, want %.4f", got, want)
	}
}

func TestScoreNeutralDefaults(t *testing.T) {
	s := newTestScorer(t)

	// Unknown type, no sanctions, no reputation, no jurisdiction, no
	// anomalies: 0.5*0.30 + 0 + 0.5*0.20 + 0 + 0.5*0.10
	e := &domain.Entity{Name: "Mystery", Type: domain.TypeUnknown}
	want := 0.15 + 0.10 + 0.05
	got := s.Score(e)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Score = %.4f, want %.4f", got, want)
	}
}

func TestScoreOrdering(t *testing.T) {
	s := newTestScorer(t)

	shell := &domain.Entity{Name: "A Holdings", Type: domain.TypeShellCompany}
	gov := &domain.Entity{Name: "Ministry of B", Type: domain.TypeGovernmentAgency}

	if s.Score(shell) <= s.Score(gov) {
		t.Error("shell company must outscore government agency, all else equal")
	}

	clean := &domain.Entity{Name: "C Corp", Type: domain.TypeCorporation}
	sanctioned := &domain.Entity{Name: "C Corp", Type: domain.TypeCorporation, SanctionsStatus: true}
	if s.Score(sanctioned) <= s.Score(clean) {
		t.Error("sanctioned entity must outscore the identical clean entity")
	}
}

func TestScoreTransactionAnomalyFactor(t *testing.T) {
	s := newTestScorer(t)
	e := &domain.Entity{Name: "Acme Inc", Type: domain.TypeCorporation}

	base := s.ScoreTransaction(e, nil, 0)

	anomalies := []domain.Anomaly{
		{Type: domain.AnomalyRoundAmount, Severity: 0.7},
		{Type: domain.AnomalyLargeTransaction, Severity: 0.9},
	}

	withAnomalies := s.ScoreTransaction(e, anomalies, 0)
	if withAnomalies <= base {
		t.Error("anomalies must raise the score")
	}

	// avg severity 0.8, amount factor min(2M/1M,1)=1.0, blended (0.8+1)/2=0.9
	want := base + 0.9*0.15
	got := s.ScoreTransaction(e, anomalies, 2_000_000)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ScoreTransaction = %.4f, want %.4f", got, want)
	}
}

func TestScoreNoAnomaliesIgnoresAmount(t *testing.T) {
	s := newTestScorer(t)
	e := &domain.Entity{Name: "Acme Inc", Type: domain.TypeCorporation}

	if s.ScoreTransaction(e, nil, 5_000_000) != s.ScoreTransaction(e, nil, 0) {
		t.Error("amount must not contribute when there are no anomalies")
	}
}

func TestScoreBounded(t *testing.T) {
	s := newTestScorer(t)

	e := &domain.Entity{
		Name:            "Worst Case Holdings",
		Type:            domain.TypeShellCompany,
		SanctionsStatus: true,
		Jurisdiction:    "kp",
	}
	e.SetReputation(0.0)
	anomalies := []domain.Anomaly{{Severity: 1.0}, {Severity: 1.0}}

	got := s.ScoreTransaction(e, anomalies, 10_000_000)
	if got < 0 || got > 1 {
		t.Errorf("score %.4f out of [0,1]", got)
	}
}

func TestExplain(t *testing.T) {
	s := newTestScorer(t)

	e := &domain.Entity{
		Name:            "Shadow Holdings",
		Type:            domain.TypeShellCompany,
		SanctionsStatus: true,
		Jurisdiction:    "RU",
	}
	e.SetReputation(0.1)
	anomalies := []domain.Anomaly{
		{Type: domain.AnomalyRoundAmount, Description: "Round number transaction: 5000.00 USD"},
	}

	reason := s.Explain(e, anomalies)

	for _, clause := range []string{
		"Entity is classified as a shell company",
		"Entity is on sanctions list",
		"Entity has poor reputation based on news analysis",
		"Anomaly detected: Round number transaction: 5000.00 USD",
		"Entity is based in a high-risk jurisdiction (RU)",
	} {
		if !strings.Contains(reason, clause) {
			t.Errorf("reason missing clause %q\nfull reason: %s", clause, reason)
		}
	}
}

func TestExplainFallback(t *testing.T) {
	s := newTestScorer(t)

	e := &domain.Entity{Name: "Plain Corp", Type: domain.TypeCorporation}
	reason := s.Explain(e, nil)
	if reason != "Risk score based on standard entity assessment" {
		t.Errorf("unexpected fallback reason: %q", reason)
	}
}
