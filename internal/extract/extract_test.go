package extract

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestExtractor() *Extractor {
	return New(classify.NewClassifier(classify.DefaultRules()))
}

func names(entities []*domain.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}

func TestExtract(t *testing.T) {
	x := newTestExtractor()

	tests := []struct {
		text string
		want []string
	}{
		{
			"Payment from Acme Inc to Meridian Holdings for services",
			[]string{"Acme Inc", "Meridian Holdings"},
		},
		{
			"Wire transfer to Open Society Foundation",
			[]string{"Open Society Foundation"},
		},
		{
			"Invoice settled by First National Bank",
			[]string{"First National Bank"},
		},
		{
			"Transfer from Smith & Jones Associates",
			[]string{"Smith & Jones Associates"},
		},
		{
			"Quarterly rent payment, no counterparties named",
			nil,
		},
		{
			"Funds moved to Bank of Example Ltd yesterday",
			[]string{"Bank of Example Ltd"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got := names(x.Extract(tc.text))
			if len(got) != len(tc.want) {
				t.Fatalf("Extract(%q) = %v, want %v", tc.text, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("Extract(%q)[%d] = %q, want %q", tc.text, i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestExtractSplitsConjoinedNames(t *testing.T) {
	x := newTestExtractor()

	got := names(x.Extract("Settlement between Acme Inc and Beta Ltd"))
	want := []string{"Acme Inc", "Beta Ltd"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}

func TestExtractDeduplicates(t *testing.T) {
	x := newTestExtractor()

	got := x.Extract("Acme Inc paid Acme Inc via internal transfer from Acme Inc")
	if len(got) != 1 {
		t.Fatalf("expected 1 entity, got %v", names(got))
	}
}

func TestExtractEntityFields(t *testing.T) {
	x := newTestExtractor()

	got := x.Extract("Payment to Meridian Holdings")
	if len(got) != 1 {
		t.Fatalf("expected 1 entity, got %v", names(got))
	}

	e := got[0]
	if e.Type != domain.TypeShellCompany {
		t.Errorf("Type = %s, want %s", e.Type, domain.TypeShellCompany)
	}
	if e.ConfidenceScore != 0.9 {
		t.Errorf("ConfidenceScore = %.2f, want 0.90", e.ConfidenceScore)
	}
	if len(e.EvidenceSources) != 1 || e.EvidenceSources[0] != EvidencePatternMatching {
		t.Errorf("EvidenceSources = %v", e.EvidenceSources)
	}
}

func TestExtractBareSuffixIgnored(t *testing.T) {
	x := newTestExtractor()

	if got := x.Extract("Trust but verify"); len(got) != 0 {
		t.Errorf("bare suffix word should not extract, got %v", names(got))
	}
}
