package dispatch

import (
	"context"
	"errors"
	"testing"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/minutes"
)

type fakeRegistrar struct {
	err   error
	calls []calls.RegisterRequest
}

func (f *fakeRegistrar) Register(_ context.Context, req calls.RegisterRequest) (calls.Record, agents.Agent, error) {
	if f.err != nil {
		return calls.Record{}, agents.Agent{}, f.err
	}
	f.calls = append(f.calls, req)
	return calls.Record{CallID: req.CallID, AgentID: "agent-1", Status: calls.StatusInitialized},
		agents.Agent{ID: "agent-1", Name: "Reception", Greeting: "hello", VoiceID: "v1"},
		nil
}

type fakeLookup struct {
	agent agents.Agent
	err   error
}

func (f *fakeLookup) GetActiveByPhoneNumber(_ context.Context, _ string) (agents.Agent, error) {
	return f.agent, f.err
}

type fakeGate struct {
	avail minutes.Availability
	err   error
}

func (f *fakeGate) CheckAvailable(_ context.Context, agentID string) (minutes.Availability, error) {
	f.avail.AgentID = agentID
	return f.avail, f.err
}

type fakeRooms struct {
	ensured   []string
	roomErr   error
	egressErr error
}

func (f *fakeRooms) EnsureRoom(_ context.Context, name string) error {
	if f.roomErr != nil {
		return f.roomErr
	}
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeRooms) StartRecording(_ context.Context, _ string) (string, error) {
	if f.egressErr != nil {
		return "", f.egressErr
	}
	return "EG_x", nil
}

func TestHandleInbound_RegistersAndProvisions(t *testing.T) {
	reg := &fakeRegistrar{}
	rooms := &fakeRooms{}
	d := NewDispatcher(reg, nil, nil, rooms)

	cfg, err := d.HandleInbound(context.Background(), InboundCall{
		ProviderCallID: "call-1",
		From:           "+15550199",
		To:             "+15550100",
	})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if cfg.CallID != "call-1" || cfg.RoomName != "call-1" {
		t.Fatalf("room must be named after call id: %+v", cfg)
	}
	if cfg.AgentID != "agent-1" || cfg.Greeting != "hello" {
		t.Fatalf("agent persona not carried: %+v", cfg)
	}
	if len(rooms.ensured) != 1 || rooms.ensured[0] != "call-1" {
		t.Fatalf("room not provisioned: %v", rooms.ensured)
	}
	if len(reg.calls) != 1 || reg.calls[0].CallerNumber != "+15550199" {
		t.Fatalf("unexpected registration: %+v", reg.calls)
	}
}

func TestHandleInbound_GeneratesCallIDWhenMissing(t *testing.T) {
	reg := &fakeRegistrar{}
	d := NewDispatcher(reg, nil, nil, nil)

	cfg, err := d.HandleInbound(context.Background(), InboundCall{From: "+15550199", To: "+15550100"})
	if err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if cfg.CallID == "" {
		t.Fatalf("expected generated call id")
	}
}

func TestHandleInbound_QuotaRejectionProvisionsNothing(t *testing.T) {
	reg := &fakeRegistrar{err: minutes.ErrQuotaExhausted}
	rooms := &fakeRooms{}
	d := NewDispatcher(reg, nil, nil, rooms)

	_, err := d.HandleInbound(context.Background(), InboundCall{From: "+15550199", To: "+15550100"})
	if !errors.Is(err, minutes.ErrQuotaExhausted) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if len(rooms.ensured) != 0 {
		t.Fatalf("rejected call must not provision a room")
	}
}

func TestHandleInbound_RecordingFailureIsTolerated(t *testing.T) {
	reg := &fakeRegistrar{}
	rooms := &fakeRooms{egressErr: errors.New("egress down")}
	d := NewDispatcher(reg, nil, nil, rooms)

	if _, err := d.HandleInbound(context.Background(), InboundCall{To: "+15550100"}); err != nil {
		t.Fatalf("recording failure must not fail admission: %v", err)
	}
}

func TestCheckAcceptance(t *testing.T) {
	cases := []struct {
		name   string
		lookup *fakeLookup
		gate   *fakeGate
		accept bool
		reason string
	}{
		{
			name:   "available",
			lookup: &fakeLookup{agent: agents.Agent{ID: "agent-1"}},
			gate:   &fakeGate{avail: minutes.Availability{Available: true, RemainingMinutes: 3.5}},
			accept: true,
		},
		{
			name:   "exhausted",
			lookup: &fakeLookup{agent: agents.Agent{ID: "agent-1"}},
			gate:   &fakeGate{avail: minutes.Availability{Available: false, RemainingMinutes: -0.167}},
			accept: false,
			reason: "minutes exhausted",
		},
		{
			name:   "unknown number",
			lookup: &fakeLookup{err: agents.ErrNotFound},
			gate:   &fakeGate{},
			accept: false,
			reason: "no active agent for number",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDispatcher(nil, tc.lookup, tc.gate, nil)
			got, err := d.CheckAcceptance(context.Background(), "+15550100")
			if err != nil {
				t.Fatalf("check acceptance: %v", err)
			}
			if got.Accept != tc.accept {
				t.Fatalf("accept = %v, want %v", got.Accept, tc.accept)
			}
			if got.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", got.Reason, tc.reason)
			}
		})
	}
}
