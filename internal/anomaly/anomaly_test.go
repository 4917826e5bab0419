package anomaly

import (
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var testJurisdictionRisk = map[string]float64{
	"ru": 0.8,
	"cn": 0.7,
	"ir": 0.9,
	"us": 0.2,
}

func testNow() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func hasType(anomalies []domain.Anomaly, typ string) bool {
	for _, a := range anomalies {
		if a.Type == typ {
			return true
		}
	}
	return false
}

func findType(t *testing.T, anomalies []domain.Anomaly, typ string) domain.Anomaly {
	t.Helper()
	for _, a := range anomalies {
		if a.Type == typ {
			return a
		}
	}
	t.Fatalf("anomaly %q not found in %v", typ, anomalies)
	return domain.Anomaly{}
}

func TestDetectLargeTransaction(t *testing.T) {
	d := NewDetector(DefaultThresholds(), testJurisdictionRisk)

	tests := []struct {
		name         string
		amount       float64
		want         bool
		wantSeverity float64
	}{
		{"above threshold", 2_000_000, true, 1.0},
		{"just above threshold", 1_500_000, true, 1.0},
		{"at threshold", 1_000_000, false, 0},
		{"below threshold", 500_000, false, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Detect(testNow(), tc.amount, "USD", nil)
			if hasType(got, domain.AnomalyLargeTransaction) != tc.want {
				t.Errorf("amount %.0f: large_transaction = %v, want %v", tc.amount, !tc.want, tc.want)
			}
			if tc.want {
				a := findType(t, got, domain.AnomalyLargeTransaction)
				if a.Severity > 1.0 {
					t.Errorf("severity %.2f exceeds 1.0", a.Severity)
				}
			}
		})
	}
}

func TestDetectRoundAmount(t *testing.T) {
	d := NewDetector(DefaultThresholds(), testJurisdictionRisk)

	got := d.Detect(testNow(), 5000, "USD", nil)
	a := findType(t, got, domain.AnomalyRoundAmount)
	if a.Severity != severityRoundAmount {
		t.Errorf("round_amount severity = %.2f, want %.2f", a.Severity, severityRoundAmount)
	}

	got = d.Detect(testNow(), 5001, "USD", nil)
	if hasType(got, domain.AnomalyRoundAmount) {
		t.Error("5001 should not flag round_amount")
	}
}

func TestDetectRoundAmountMin(t *testing.T) {
	th := DefaultThresholds()
	th.RoundAmountMin = 10_000
	d := NewDetector(th, testJurisdictionRisk)

	if got := d.Detect(testNow(), 5000, "USD", nil); hasType(got, domain.AnomalyRoundAmount) {
		t.Error("5000 should not flag round_amount when the floor is 10000")
	}
	if got := d.Detect(testNow(), 50_000, "USD", nil); !hasType(got, domain.AnomalyRoundAmount) {
		t.Error("50000 should flag round_amount above the floor")
	}
}

func TestDetectHighRiskJurisdiction(t *testing.T) {
	d := NewDetector(DefaultThresholds(), testJurisdictionRisk)

	entities := []*domain.Entity{
		{Name: "Volga Trading", Jurisdiction: "RU"},
		{Name: "Acme Inc", Jurisdiction: "US"},
		{Name: "No Jurisdiction Ltd"},
	}

	got := d.Detect(testNow(), 100, "USD", entities)
	a := findType(t, got, domain.AnomalyHighRiskJurisdiction)
	if a.Severity != 0.8 {
		t.Errorf("severity = %.2f, want jurisdiction weight 0.8", a.Severity)
	}

	count := 0
	for _, an := range got {
		if an.Type == domain.AnomalyHighRiskJurisdiction {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected 1 jurisdiction anomaly, got %d", count)
	}
}

func TestDetectShellCompany(t *testing.T) {
	d := NewDetector(DefaultThresholds(), testJurisdictionRisk)

	entities := []*domain.Entity{
		{Name: "Meridian Holdings", Type: domain.TypeShellCompany},
		{Name: "Acme Inc", Type: domain.TypeCorporation},
	}

	got := d.Detect(testNow(), 100, "USD", entities)
	a := findType(t, got, domain.AnomalyShellCompany)
	if a.Severity != severityShellCompany {
		t.Errorf("severity = %.2f, want %.2f", a.Severity, severityShellCompany)
	}
}

func TestDetectYoungIncorporation(t *testing.T) {
	d := NewDetector(DefaultThresholds(), testJurisdictionRisk)
	now := testNow()

	tests := []struct {
		name string
		date string
		want bool
	}{
		{"one month old", now.AddDate(0, -1, 0).Format("2006-01-02"), true},
		{"five months old", now.AddDate(0, -5, 0).Format("2006-01-02"), true},
		{"one year old", now.AddDate(-1, 0, 0).Format("2006-01-02"), false},
		{"unparsable", "not-a-date", false},
		{"absent", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entities := []*domain.Entity{{Name: "Fresh Ventures", IncorporationDate: tc.date}}
			got := d.Detect(now, 100, "USD", entities)
			if hasType(got, domain.AnomalyNewEntity) != tc.want {
				t.Errorf("date %q: new_entity = %v, want %v", tc.date, !tc.want, tc.want)
			}
		})
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := NewDetector(DefaultThresholds(), testJurisdictionRisk)
	entities := []*domain.Entity{
		{Name: "Meridian Holdings", Type: domain.TypeShellCompany, Jurisdiction: "RU"},
		{Name: "Fresh Ventures", IncorporationDate: "2025-05-01"},
	}

	first := d.Detect(testNow(), 2_000_000, "USD", entities)
	second := d.Detect(testNow(), 2_000_000, "USD", entities)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Type != second[i].Type || first[i].Severity != second[i].Severity {
			t.Errorf("index %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
