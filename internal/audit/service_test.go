package audit

import (
	"context"
	"testing"
	"time"
)

func TestAppend_FillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }

	if err := svc.LogClaim(context.Background(), "s-1", "e-1", "int-1"); err != nil {
		t.Fatalf("append: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if e.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be stamped")
	}
	if e.Type != EventTypeEntryClaimed || e.EntryID != "e-1" || e.ActorID != "int-1" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAppend_RejectsInvalid(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeEntryClaimed}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent for missing survey, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{SurveyID: "s"}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent for missing type, got %v", err)
	}
}
