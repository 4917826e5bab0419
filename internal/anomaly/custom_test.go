package anomaly

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *CustomEngine {
	t.Helper()
	e, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine: %v", err)
	}
	return e
}

func TestCustomEngineLoadAndEvaluate(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	rule := &domain.CustomRule{
		ID:          "r1",
		Name:        "Mid-size cash movement",
		Expression:  `amount > 50000.0 && currency == "USD"`,
		AnomalyType: "mid_size_cash",
		Severity:    0.5,
		Enabled:     true,
	}
	if err := e.LoadRule(rule); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}
	if e.RulesCount() != 1 {
		t.Fatalf("RulesCount = %d, want 1", e.RulesCount())
	}

	entities := []*domain.Entity{{Name: "Acme Inc", Type: domain.TypeCorporation}}

	got := e.Evaluate(75_000, "USD", entities)
	if len(got) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(got))
	}
	if got[0].Type != "mid_size_cash" || got[0].Severity != 0.5 {
		t.Errorf("unexpected anomaly: %+v", got[0])
	}

	if got := e.Evaluate(75_000, "EUR", entities); len(got) != 0 {
		t.Errorf("EUR transaction should not match, got %v", got)
	}
}

func TestCustomEngineEntityVariables(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	rule := &domain.CustomRule{
		ID:          "r2",
		Name:        "Sanctioned low reputation",
		Expression:  `sanctions && reputation < 0.3`,
		AnomalyType: "sanctioned_low_rep",
		Severity:    0.9,
		Enabled:     true,
	}
	if err := e.LoadRule(rule); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}

	flagged := &domain.Entity{Name: "Shadow Ltd", SanctionsStatus: true}
	flagged.SetReputation(0.1)
	clean := &domain.Entity{Name: "Acme Inc", SanctionsStatus: false}
	clean.SetReputation(0.9)

	got := e.Evaluate(100, "USD", []*domain.Entity{flagged, clean})
	if len(got) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(got))
	}
	if got[0].Description != "Sanctioned low reputation: Shadow Ltd" {
		t.Errorf("unexpected description: %q", got[0].Description)
	}
}

func TestCustomEngineRejectsNonBool(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	rule := &domain.CustomRule{
		ID:          "bad",
		Name:        "Not a predicate",
		Expression:  `amount + 1.0`,
		AnomalyType: "whatever",
		Severity:    0.5,
	}
	if err := e.ValidateRule(rule); err == nil {
		t.Error("expected validation error for non-bool expression")
	}
	if err := e.LoadRule(rule); err == nil {
		t.Error("expected load error for non-bool expression")
	}
}

func TestCustomEngineRejectsBadSyntax(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	rule := &domain.CustomRule{
		ID:          "bad",
		Name:        "Broken",
		Expression:  `amount >`,
		AnomalyType: "whatever",
		Severity:    0.5,
	}
	if err := e.ValidateRule(rule); err == nil {
		t.Error("expected validation error for syntax error")
	}
}

func TestCustomEngineReload(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	first := &domain.CustomRule{
		ID: "r1", Name: "A", Expression: `amount > 1.0`,
		AnomalyType: "a", Severity: 0.5, Enabled: true,
	}
	if err := e.LoadRules([]*domain.CustomRule{first}); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	replacement := &domain.CustomRule{
		ID: "r2", Name: "B", Expression: `amount > 2.0`,
		AnomalyType: "b", Severity: 0.5, Enabled: true,
	}
	disabled := &domain.CustomRule{
		ID: "r3", Name: "C", Expression: `amount > 3.0`,
		AnomalyType: "c", Severity: 0.5, Enabled: false,
	}
	if err := e.ReloadRules([]*domain.CustomRule{replacement, disabled}); err != nil {
		t.Fatalf("ReloadRules: %v", err)
	}

	if e.RulesCount() != 1 {
		t.Fatalf("RulesCount = %d after reload, want 1", e.RulesCount())
	}
	loaded := e.LoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "r2" {
		t.Errorf("unexpected loaded rules: %v", loaded)
	}
}

func TestCustomEngineSeverityClamped(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	rule := &domain.CustomRule{
		ID: "r1", Name: "Overweight", Expression: `amount > 0.0`,
		AnomalyType: "over", Severity: 2.5, Enabled: true,
	}
	if err := e.LoadRule(rule); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}

	got := e.Evaluate(1, "USD", []*domain.Entity{{Name: "X Corp"}})
	if len(got) != 1 || got[0].Severity != 1.0 {
		t.Errorf("severity should clamp to 1.0, got %v", got)
	}
}
