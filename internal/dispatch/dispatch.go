package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/minutes"
)

// InboundCall is the boundary event from the SIP bridge: a caller dialed one
// of our numbers.
//
// Keep this adapter layer free of business logic: it translates the telephony
// boundary into ledger registrations and hands the agent process what it
// needs to join.
type InboundCall struct {
	// ProviderCallID is the bridge's identifier for this call, reused as our
	// call id when present so both sides correlate trivially.
	ProviderCallID string `json:"provider_call_id,omitempty"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// OccurredAt is the provider event time.
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// CallConfig is everything the call agent process needs to serve one call.
type CallConfig struct {
	CallID   string `json:"call_id"`
	RoomName string `json:"room_name"`

	AgentID      string `json:"agent_id"`
	AgentName    string `json:"agent_name"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Greeting     string `json:"greeting,omitempty"`
	VoiceID      string `json:"voice_id,omitempty"`

	CallerNumber string `json:"caller_number,omitempty"`
}

// Acceptance is the answer to "should this number's call be accepted",
// checked by the bridge before media is set up.
type Acceptance struct {
	Accept           bool    `json:"accept"`
	AgentID          string  `json:"agent_id,omitempty"`
	RemainingMinutes float64 `json:"remaining_minutes,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// Registrar is the Ledger slice dispatch needs.
type Registrar interface {
	Register(ctx context.Context, req calls.RegisterRequest) (calls.Record, agents.Agent, error)
}

// Gate answers minute availability without creating anything.
type Gate interface {
	CheckAvailable(ctx context.Context, agentID string) (minutes.Availability, error)
}

// AgentLookup resolves the dialed number.
type AgentLookup interface {
	GetActiveByPhoneNumber(ctx context.Context, phoneNumber string) (agents.Agent, error)
}

// RoomManager provisions the media side of a call. Implementations talk to
// LiveKit; nil-safe no-op behavior is not provided on purpose, dispatch
// without rooms is misconfiguration.
type RoomManager interface {
	EnsureRoom(ctx context.Context, name string) error
	StartRecording(ctx context.Context, roomName string) (egressID string, err error)
}

// Dispatcher owns inbound call admission: resolve the agent, gate on
// minutes, register the ledger record, provision the room, and return the
// agent's marching orders.
type Dispatcher struct {
	ledger Registrar
	agents AgentLookup
	gate   Gate
	rooms  RoomManager
	log    *slog.Logger
}

func NewDispatcher(ledger Registrar, lookup AgentLookup, gate Gate, rooms RoomManager) *Dispatcher {
	return &Dispatcher{
		ledger: ledger,
		agents: lookup,
		gate:   gate,
		rooms:  rooms,
		log:    slog.Default(),
	}
}

// HandleInbound admits one inbound call. Registration (and its quota gate)
// happens before any media provisioning: a rejected call must leave nothing
// behind.
func (d *Dispatcher) HandleInbound(ctx context.Context, req InboundCall) (CallConfig, error) {
	if strings.TrimSpace(req.To) == "" {
		return CallConfig{}, calls.ErrInvalidArgument
	}

	callID := strings.TrimSpace(req.ProviderCallID)
	if callID == "" {
		callID = uuid.NewString()
	}

	rec, agent, err := d.ledger.Register(ctx, calls.RegisterRequest{
		PhoneNumber:  req.To,
		CallerNumber: req.From,
		CallID:       callID,
	})
	if err != nil {
		return CallConfig{}, err
	}

	if d.rooms != nil {
		if err := d.rooms.EnsureRoom(ctx, rec.CallID); err != nil {
			// The record exists; webhook evidence will eventually resolve it
			// unanswered if media never comes up.
			d.log.Error("room provisioning failed", "call_id", rec.CallID, "err", err)
			return CallConfig{}, err
		}
		if egressID, err := d.rooms.StartRecording(ctx, rec.CallID); err != nil {
			// Recording is enrichment, not admission criteria.
			d.log.Warn("recording start failed", "call_id", rec.CallID, "err", err)
		} else {
			d.log.Info("recording started", "call_id", rec.CallID, "egress_id", egressID)
		}
	}

	return CallConfig{
		CallID:       rec.CallID,
		RoomName:     rec.CallID,
		AgentID:      agent.ID,
		AgentName:    agent.Name,
		SystemPrompt: agent.SystemPrompt,
		Greeting:     agent.Greeting,
		VoiceID:      agent.VoiceID,
		CallerNumber: req.From,
	}, nil
}

// CheckAcceptance is the read-only admission probe for a dialed number.
// Unknown numbers and exhausted agents both answer "do not accept" rather
// than erroring: the bridge only needs a yes or no.
func (d *Dispatcher) CheckAcceptance(ctx context.Context, phoneNumber string) (Acceptance, error) {
	if strings.TrimSpace(phoneNumber) == "" {
		return Acceptance{}, calls.ErrInvalidArgument
	}

	agent, err := d.agents.GetActiveByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return Acceptance{Accept: false, Reason: "no active agent for number"}, nil
		}
		return Acceptance{}, err
	}

	avail, err := d.gate.CheckAvailable(ctx, agent.ID)
	if err != nil {
		return Acceptance{}, err
	}
	if !avail.Available {
		return Acceptance{
			Accept:           false,
			AgentID:          agent.ID,
			RemainingMinutes: avail.RemainingMinutes,
			Reason:           "minutes exhausted",
		}, nil
	}
	return Acceptance{
		Accept:           true,
		AgentID:          agent.ID,
		RemainingMinutes: avail.RemainingMinutes,
	}, nil
}
