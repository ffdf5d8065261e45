package reporting

import (
	"context"
	"math"
	"testing"
	"time"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/calls"
)

func seedRepo(now time.Time) *MemoryRepo {
	repo := NewMemoryRepo()
	repo.Agents = []agents.Agent{
		{ID: "agent-1", OwnerUserID: "u1", Name: "Reception", PhoneNumber: "+15550100", AllowedMinutes: 100, UsedMinutes: 12.5},
		{ID: "agent-2", OwnerUserID: "u2", Name: "Other", PhoneNumber: "+15550200", AllowedMinutes: 50},
	}
	d1, d2 := 125.4, 40.0
	repo.Calls = []calls.Record{
		{CallID: "c1", AgentID: "agent-1", Status: calls.StatusCompleted, DurationSeconds: &d1, Recording: "s3://a/c1.ogg", Transcript: "s3://a/c1.json", CreatedAt: now},
		{CallID: "c2", AgentID: "agent-1", Status: calls.StatusCompleted, DurationSeconds: &d2, CreatedAt: now},
		{CallID: "c3", AgentID: "agent-1", Status: calls.StatusUnanswered, CreatedAt: now},
		{CallID: "c4", AgentID: "agent-1", Status: calls.StatusConnected, CreatedAt: now},
		{CallID: "c5", AgentID: "agent-2", Status: calls.StatusCompleted, DurationSeconds: &d1, CreatedAt: now},
	}
	return repo
}

func hourAround(now time.Time) TimeRange {
	return TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
}

func TestSummarize_OwnerScoping(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seedRepo(now))

	out, err := svc.Summarize(context.Background(), SummaryRequest{OwnerUserID: "u1", Range: hourAround(now)})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out.TotalCalls != 4 {
		t.Fatalf("expected u1 to see 4 calls, got %d", out.TotalCalls)
	}
	if out.CompletedCalls != 2 || out.UnansweredCalls != 1 || out.InProgressCalls != 1 {
		t.Fatalf("unexpected status counts: %+v", out)
	}
	if len(out.Agents) != 1 || out.Agents[0].AgentID != "agent-1" {
		t.Fatalf("expected only u1's agent, got %+v", out.Agents)
	}
}

func TestSummarize_DurationAndMinutes(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seedRepo(now))

	out, err := svc.Summarize(context.Background(), SummaryRequest{OwnerUserID: "u1", Range: hourAround(now)})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if math.Abs(out.TotalDurationSeconds-165.4) > 1e-9 {
		t.Fatalf("total duration = %v, want 165.4", out.TotalDurationSeconds)
	}
	if math.Abs(out.AverageDurationSeconds-82.7) > 1e-9 {
		t.Fatalf("average duration = %v, want 82.7", out.AverageDurationSeconds)
	}
	// 125.4s -> 2.09 min, 40s -> 0.667 min
	if math.Abs(out.MinutesConsumed-2.757) > 1e-9 {
		t.Fatalf("minutes consumed = %v, want 2.757", out.MinutesConsumed)
	}
	if out.RecordedCalls != 1 || out.TranscribedCalls != 1 {
		t.Fatalf("artifact counts: %+v", out)
	}
	if math.Abs(out.Agents[0].RemainingMinutes-87.5) > 1e-9 {
		t.Fatalf("remaining minutes = %v", out.Agents[0].RemainingMinutes)
	}
}

func TestSummarize_AgentFilter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := seedRepo(now)
	repo.Agents = append(repo.Agents, agents.Agent{ID: "agent-3", OwnerUserID: "u1", Name: "Sales", PhoneNumber: "+15550300"})
	svc := NewService(repo)

	out, err := svc.Summarize(context.Background(), SummaryRequest{OwnerUserID: "u1", AgentID: "agent-3", Range: hourAround(now)})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out.TotalCalls != 0 {
		t.Fatalf("agent-3 has no calls, got %d", out.TotalCalls)
	}
	if len(out.Agents) != 1 || out.Agents[0].AgentID != "agent-3" {
		t.Fatalf("agent filter not applied to usage: %+v", out.Agents)
	}
}

func TestSummarize_InvalidRequests(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seedRepo(now))

	cases := []SummaryRequest{
		{OwnerUserID: "", Range: hourAround(now)},
		{OwnerUserID: "u1"},
		{OwnerUserID: "u1", Range: TimeRange{From: now, To: now}},
		{OwnerUserID: "u1", Range: TimeRange{From: now.Add(time.Hour), To: now}},
	}
	for i, req := range cases {
		if _, err := svc.Summarize(context.Background(), req); err != ErrInvalidRequest {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}
