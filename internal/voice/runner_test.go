package voice

import (
	"context"
	"strings"
	"testing"
	"time"

	"voiceagent-platform/internal/calls"
)

type fakeRoom struct {
	callerJoins  bool
	joinedAt     *time.Time
	leftAt       *time.Time
	disconnected bool
}

func (f *fakeRoom) WaitForCaller(_ context.Context, _ time.Duration) error {
	if !f.callerJoins {
		return ErrRingTimeout
	}
	return nil
}

func (f *fakeRoom) WaitForEnd(_ context.Context) error { return nil }

func (f *fakeRoom) CallerTimestamps() (*time.Time, *time.Time) {
	return f.joinedAt, f.leftAt
}

func (f *fakeRoom) Disconnect() { f.disconnected = true }

type fakeReporter struct {
	statuses []calls.StatusReport
	finals   []calls.FinalReport
}

func (f *fakeReporter) ReportStatus(_ context.Context, r calls.StatusReport) error {
	f.statuses = append(f.statuses, r)
	return nil
}

func (f *fakeReporter) SubmitFinalReport(_ context.Context, r calls.FinalReport) error {
	f.finals = append(f.finals, r)
	return nil
}

type fakeUploader struct {
	keys []string
}

func (f *fakeUploader) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	return "s3://artifacts/" + key, nil
}

func (f *fakeReporter) statusSequence() []calls.Status {
	out := make([]calls.Status, 0, len(f.statuses))
	for _, s := range f.statuses {
		out = append(out, s.Status)
	}
	return out
}

func TestRunner_AnsweredCall(t *testing.T) {
	joined := time.Unix(1700000100, 0).UTC()
	left := joined.Add(125*time.Second + 400*time.Millisecond)
	room := &fakeRoom{callerJoins: true, joinedAt: &joined, leftAt: &left}
	rep := &fakeReporter{}
	up := &fakeUploader{}

	runner := NewRunner(RunnerConfig{CallID: "call-1", AgentID: "agent-1"}, rep, NewNopSession("hello"), up)
	if err := runner.Run(context.Background(), room); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []calls.Status{calls.StatusInitialized, calls.StatusConnected}
	got := rep.statusSequence()
	if len(got) != len(want) {
		t.Fatalf("status sequence %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status sequence %v, want %v", got, want)
		}
	}

	if len(rep.finals) != 1 {
		t.Fatalf("expected one final report, got %d", len(rep.finals))
	}
	final := rep.finals[0]
	if final.CallID != "call-1" || final.AgentID != "agent-1" {
		t.Fatalf("final report identity mismatch: %+v", final)
	}
	if final.DurationSeconds != 125.4 {
		t.Fatalf("expected duration 125.4, got %v", final.DurationSeconds)
	}
	if !strings.HasPrefix(final.TranscriptLocation, "s3://artifacts/call-1/") {
		t.Fatalf("transcript location not set: %q", final.TranscriptLocation)
	}
	if !room.disconnected {
		t.Fatalf("room must be disconnected on exit")
	}
}

func TestRunner_RingTimeoutReportsUnansweredWithoutFinalReport(t *testing.T) {
	room := &fakeRoom{callerJoins: false}
	rep := &fakeReporter{}

	runner := NewRunner(RunnerConfig{CallID: "call-1", AgentID: "agent-1", RingTimeout: time.Millisecond}, rep, nil, nil)
	if err := runner.Run(context.Background(), room); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := rep.statusSequence()
	if len(got) != 2 || got[0] != calls.StatusInitialized || got[1] != calls.StatusUnanswered {
		t.Fatalf("status sequence %v, want [initialized unanswered]", got)
	}
	if len(rep.finals) != 0 {
		t.Fatalf("no final report expected for an unanswered call, got %d", len(rep.finals))
	}
}

func TestRunner_MissingLeaveTimestampUsesClock(t *testing.T) {
	joined := time.Unix(1700000100, 0).UTC()
	room := &fakeRoom{callerJoins: true, joinedAt: &joined}
	rep := &fakeReporter{}

	runner := NewRunner(RunnerConfig{CallID: "call-1", AgentID: "agent-1"}, rep, nil, nil)
	runner.clock = func() time.Time { return joined.Add(40 * time.Second) }
	if err := runner.Run(context.Background(), room); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.finals) != 1 || rep.finals[0].DurationSeconds != 40 {
		t.Fatalf("expected duration 40 from clock fallback, got %+v", rep.finals)
	}
}

func TestRunner_NoJoinObservedSkipsFinalReport(t *testing.T) {
	room := &fakeRoom{callerJoins: true}
	rep := &fakeReporter{}

	runner := NewRunner(RunnerConfig{CallID: "call-1", AgentID: "agent-1"}, rep, nil, nil)
	if err := runner.Run(context.Background(), room); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.finals) != 0 {
		t.Fatalf("no final report expected without caller timestamps")
	}
	last := rep.statuses[len(rep.statuses)-1]
	if last.Status != calls.StatusUnanswered {
		t.Fatalf("expected trailing unanswered status, got %s", last.Status)
	}
}
