package audit

import (
	"context"
	"testing"
	"time"
)

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }

	if err := svc.LogMinutesReset(context.Background(), "u1", "owner", "203.0.113.9", "agent-1"); err != nil {
		t.Fatalf("append: %v", err)
	}
	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !e.CreatedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("created_at = %v", e.CreatedAt)
	}
	if e.Type != EventTypeMinutesReset || e.AgentID != "agent-1" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAgentDeactivatedLog(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogAgentDeactivated(context.Background(), "u1", "owner", "", "agent-2"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.LogAdminAction(context.Background(), "u1", "owner", "", "changed prompt", "agent-2", ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	got := repo.ByType(EventTypeAgentDeactivated)
	if len(got) != 1 || got[0].AgentID != "agent-2" {
		t.Fatalf("unexpected deactivation events: %+v", got)
	}
}

func TestAppend_RejectsMissingActorOrType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeAdminAction}); err != ErrInvalidEvent {
		t.Fatalf("missing actor: expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{ActorUserID: "u1"}); err != ErrInvalidEvent {
		t.Fatalf("missing type: expected ErrInvalidEvent, got %v", err)
	}
}
