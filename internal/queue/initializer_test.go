package queue

import (
	"context"
	"testing"
)

func TestSeed_DeduplicatesWithinAndAcrossRuns(t *testing.T) {
	store := NewMemoryStore()
	init := NewInitializer(store)

	first := []Contact{
		{Name: "A", CountryCode: "91", Phone: "98765 43210"},
		{Name: "B", CountryCode: "91", Phone: "9876543211"},
		{Name: "A again", CountryCode: "91", Phone: "9876543210"}, // same digits as A
		{Name: "no phone"},
	}
	res, err := init.Seed(context.Background(), "s-1", first)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.Queued != 2 || res.Skipped != 2 {
		t.Fatalf("expected 2 queued / 2 skipped, got %+v", res)
	}

	// Overlapping second run must not duplicate entries.
	second := []Contact{
		{Name: "B", CountryCode: "91", Phone: "9876543211"},
		{Name: "C", CountryCode: "91", Phone: "9876543212"},
	}
	res, err = init.Seed(context.Background(), "s-1", second)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.Queued != 1 || res.Skipped != 1 {
		t.Fatalf("expected 1 queued / 1 skipped, got %+v", res)
	}

	counts, err := store.StatusCounts(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[StatusPending] != 3 {
		t.Fatalf("expected 3 distinct pending entries, got %d", counts[StatusPending])
	}
}

func TestSeed_SameNumberDifferentSurveyIsAllowed(t *testing.T) {
	store := NewMemoryStore()
	init := NewInitializer(store)

	contacts := []Contact{{Name: "A", Phone: "9876543210"}}
	if _, err := init.Seed(context.Background(), "s-1", contacts); err != nil {
		t.Fatalf("seed s-1: %v", err)
	}
	res, err := init.Seed(context.Background(), "s-2", contacts)
	if err != nil {
		t.Fatalf("seed s-2: %v", err)
	}
	if res.Queued != 1 {
		t.Fatalf("uniqueness is per survey; expected 1 queued, got %+v", res)
	}
}
