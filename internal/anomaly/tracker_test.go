package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestTrackerHighFrequency(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), 0)
	now := testNow()
	entities := []*domain.Entity{{Name: "Busy Corp"}}

	// The first five same-day observations stay under the threshold.
	for i := 0; i < 5; i++ {
		got := tr.Observe(now.Add(time.Duration(i)*time.Minute), 10, "USD", entities)
		if hasType(got, domain.AnomalyHighFrequency) {
			t.Fatalf("observation %d should not flag high_frequency", i+1)
		}
	}

	got := tr.Observe(now.Add(6*time.Minute), 10, "USD", entities)
	if !hasType(got, domain.AnomalyHighFrequency) {
		t.Error("sixth same-day observation should flag high_frequency")
	}
}

func TestTrackerHighVelocity(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), 0)
	now := testNow()
	entities := []*domain.Entity{{Name: "Torrent LLC"}}

	got := tr.Observe(now, 60_000, "USD", entities)
	if hasType(got, domain.AnomalyHighVelocity) {
		t.Error("60k daily total should not flag high_velocity")
	}

	got = tr.Observe(now.Add(time.Hour), 60_000, "USD", entities)
	if !hasType(got, domain.AnomalyHighVelocity) {
		t.Error("120k daily total should flag high_velocity")
	}
}

func TestTrackerVelocityResetsNextDay(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), 0)
	now := testNow()
	entities := []*domain.Entity{{Name: "Torrent LLC"}}

	tr.Observe(now, 90_000, "USD", entities)

	got := tr.Observe(now.AddDate(0, 0, 1), 90_000, "USD", entities)
	if hasType(got, domain.AnomalyHighVelocity) {
		t.Error("daily sums must not carry across day boundaries")
	}
}

func TestTrackerNewEntity(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), 0)
	now := testNow()
	entities := []*domain.Entity{{Name: "Fresh Corp"}}

	got := tr.Observe(now, 10, "USD", entities)
	if !hasType(got, domain.AnomalyNewEntity) {
		t.Error("first observation should flag new_entity")
	}

	// Same entity 31 days later: outside the new-entity window.
	got = tr.Observe(now.AddDate(0, 0, 31), 10, "USD", entities)
	if hasType(got, domain.AnomalyNewEntity) {
		t.Error("entity seen 31 days ago should not flag new_entity")
	}
}

func TestTrackerPrunesWindow(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), 0)
	now := testNow()
	entities := []*domain.Entity{{Name: "Slow Corp"}}

	// Five observations 31 days ago, then one today. The old entries are
	// outside the window, so today's count starts at one.
	old := now.AddDate(0, 0, -31)
	for i := 0; i < 5; i++ {
		tr.Observe(old.Add(time.Duration(i)*time.Minute), 10, "USD", entities)
	}

	got := tr.Observe(now, 10, "USD", entities)
	if hasType(got, domain.AnomalyHighFrequency) {
		t.Error("pruned history must not count toward frequency")
	}
}

func TestTrackerEviction(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), 3)
	now := testNow()

	for i := 0; i < 3; i++ {
		e := []*domain.Entity{{Name: fmt.Sprintf("Entity %d", i)}}
		tr.Observe(now.Add(time.Duration(i)*time.Minute), 10, "USD", e)
	}
	if got := tr.TrackedEntities(); got != 3 {
		t.Fatalf("tracked = %d, want 3", got)
	}

	// A fourth entity evicts the least recently seen one.
	tr.Observe(now.Add(time.Hour), 10, "USD", []*domain.Entity{{Name: "Entity 3"}})
	if got := tr.TrackedEntities(); got != 3 {
		t.Errorf("tracked = %d after eviction, want 3", got)
	}

	// Entity 0 was evicted, so it is treated as first-seen again.
	got := tr.Observe(now.Add(2*time.Hour), 10, "USD", []*domain.Entity{{Name: "Entity 0"}})
	if !hasType(got, domain.AnomalyNewEntity) {
		t.Error("evicted entity should flag new_entity on return")
	}
}

func TestDetectAndRecordIncludesAmountRules(t *testing.T) {
	tr := NewTracker(DefaultThresholds(), 0)
	entities := []*domain.Entity{{Name: "Busy Corp"}}

	got := tr.DetectAndRecord(testNow(), 2_000_000, "USD", entities)
	if !hasType(got, domain.AnomalyLargeTransaction) {
		t.Error("expected large_transaction from the stateful variant")
	}
	if !hasType(got, domain.AnomalyRoundAmount) {
		t.Error("expected round_amount from the stateful variant")
	}
	if !hasType(got, domain.AnomalyNewEntity) {
		t.Error("expected new_entity for a first observation")
	}
}
