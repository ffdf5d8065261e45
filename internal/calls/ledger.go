package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/minutes"
)

var (
	ErrNotFound          = errors.New("calls: not found")
	ErrInvalidArgument   = errors.New("calls: invalid argument")
	ErrInvalidTransition = errors.New("calls: invalid status transition")
)

// AgentResolver resolves the agent bound to a dialed number.
type AgentResolver interface {
	GetActiveByPhoneNumber(ctx context.Context, phoneNumber string) (agents.Agent, error)
}

// Accountant is the minute accounting collaborator: the acceptance gate and
// the exactly-once accrual sink.
type Accountant interface {
	RequireAvailable(ctx context.Context, agentID string) (minutes.Availability, error)
	Accrue(ctx context.Context, agentID, callID string, durationSeconds float64) (minutes.Availability, error)
}

// Ledger owns the call_history record per call: its status, timestamps,
// duration, and accounting side effects. It is the single source of truth for
// a call's state; the webhook ingestor and the agent process both push events
// into it, in no guaranteed order.
//
// Concurrency model: no distributed lock. Safety comes from per-call
// idempotency guards in the repository (status latch, event-type dedup,
// duration write-once) and from choosing commutative updates for accounting.
type Ledger struct {
	repo       Repository
	agents     AgentResolver
	accountant Accountant

	clock func() time.Time
	log   *slog.Logger
}

func NewLedger(repo Repository, resolver AgentResolver, accountant Accountant) *Ledger {
	return &Ledger{
		repo:       repo,
		agents:     resolver,
		accountant: accountant,
		clock:      time.Now,
		log:        slog.Default(),
	}
}

// RegisterRequest associates an incoming call with an agent before the caller
// has necessarily connected.
type RegisterRequest struct {
	PhoneNumber  string `json:"phone_number"`
	CallerNumber string `json:"caller_number,omitempty"`
	CallID       string `json:"call_id"`
}

// Register resolves the dialed number to an active agent, gates on remaining
// minutes, and creates the call record in initialized status. The gate runs
// before the insert: an exhausted agent never produces a record.
func (l *Ledger) Register(ctx context.Context, req RegisterRequest) (Record, agents.Agent, error) {
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.CallID = strings.TrimSpace(req.CallID)
	if req.PhoneNumber == "" || req.CallID == "" {
		return Record{}, agents.Agent{}, ErrInvalidArgument
	}

	agent, err := l.agents.GetActiveByPhoneNumber(ctx, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return Record{}, agents.Agent{}, fmt.Errorf("%w: no active agent for number", ErrNotFound)
		}
		return Record{}, agents.Agent{}, err
	}

	if _, err := l.accountant.RequireAvailable(ctx, agent.ID); err != nil {
		return Record{}, agents.Agent{}, err
	}

	now := l.clock().UTC()
	rec := Record{
		CallID:       req.CallID,
		AgentID:      agent.ID,
		CallerNumber: req.CallerNumber,
		Status:       StatusInitialized,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := l.repo.Insert(ctx, rec); err != nil {
		return Record{}, agents.Agent{}, err
	}
	return rec, agent, nil
}

// ReportStatus applies a producer-reported lifecycle signal. Unknown call ids
// are acknowledged and logged, never surfaced: delivery is fire-and-forget
// from the producer's perspective.
func (l *Ledger) ReportStatus(ctx context.Context, report StatusReport) error {
	if report.CallID == "" {
		return ErrInvalidArgument
	}
	if !report.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, report.Status)
	}

	if _, err := l.repo.Get(ctx, report.CallID); err != nil {
		if errors.Is(err, ErrNotFound) {
			l.log.Warn("status report for unknown call", "call_id", report.CallID, "status", report.Status)
			return nil
		}
		return err
	}

	now := l.clock().UTC()
	switch report.Status {
	case StatusInitialized:
		// The record is created in initialized; the agent's own report is
		// recorded as evidence only.
		_, err := l.appendEvent(ctx, report.CallID, EventAgentInitialized, statusPayload(report))
		return err

	case StatusConnected:
		if _, err := l.appendEvent(ctx, report.CallID, EventAgentConnected, statusPayload(report)); err != nil {
			return err
		}
		moved, err := l.repo.SetConnected(ctx, report.CallID, now)
		if err != nil {
			return err
		}
		if !moved {
			l.log.Debug("connected report was a no-op", "call_id", report.CallID)
		}
		return nil

	case StatusCompleted, StatusUnanswered:
		// Terminal-class reports trigger resolution against the event log
		// rather than trusting the reported value directly: the log decides
		// completed vs unanswered.
		if report.ErrorDetails != "" {
			l.log.Warn("producer reported call failure", "call_id", report.CallID, "details", report.ErrorDetails)
		}
		_, err := l.ResolveTerminal(ctx, report.CallID)
		return err
	}
	return nil
}

// ResolveTerminal closes a call based on accumulated evidence. Idempotent:
// an already-terminal record is returned unchanged regardless of how many
// room-end signals arrive afterwards.
func (l *Ledger) ResolveTerminal(ctx context.Context, callID string) (Record, error) {
	rec, err := l.repo.Get(ctx, callID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	now := l.clock().UTC()
	if Answered(rec.Events) {
		if _, err := l.repo.MarkTerminal(ctx, callID, StatusCompleted, false, now); err != nil {
			return Record{}, err
		}
	} else {
		// Nobody answered: no agent-reported duration is expected, so the
		// duration is forced to zero here.
		if _, err := l.repo.MarkTerminal(ctx, callID, StatusUnanswered, true, now); err != nil {
			return Record{}, err
		}
	}
	return l.repo.Get(ctx, callID)
}

// RecordFinalReport applies the agent's authoritative end-of-call report. It
// may arrive before or after the webhook's terminal transition; either order
// converges to the same record. The duration write-once latch is what makes
// minute accrual exactly-once per call.
func (l *Ledger) RecordFinalReport(ctx context.Context, rep FinalReport) (Record, error) {
	if rep.CallID == "" || rep.AgentID == "" {
		return Record{}, ErrInvalidArgument
	}
	if rep.DurationSeconds < 0 {
		return Record{}, ErrInvalidArgument
	}

	rec, err := l.repo.Get(ctx, rep.CallID)
	if err != nil {
		return Record{}, err
	}
	if rec.AgentID != rep.AgentID {
		return Record{}, fmt.Errorf("%w: agent mismatch for call", ErrInvalidArgument)
	}

	now := l.clock().UTC()
	payload, _ := json.Marshal(map[string]any{"duration_seconds": rep.DurationSeconds})
	if appended, err := l.repo.AppendEvent(ctx, rep.CallID, Event{
		Type:      EventAgentFinalReport,
		Timestamp: now,
		Payload:   payload,
	}); err != nil {
		return Record{}, err
	} else if !appended {
		l.log.Warn("repeated final report", "call_id", rep.CallID)
	}

	// Enrichment merge is permitted even after the status latch: fields not
	// yet populated may still be filled in.
	if err := l.repo.MergeFinalFields(ctx, rep.CallID, rep.TranscriptLocation, rep.RecordingLocation, rep.ParticipantJoinedAt, rep.ParticipantLeftAt, now); err != nil {
		return Record{}, err
	}

	// Status moves to completed unless a terminal decision already latched.
	if _, err := l.repo.MarkTerminal(ctx, rep.CallID, StatusCompleted, false, now); err != nil {
		return Record{}, err
	}

	set, err := l.repo.SetDurationOnce(ctx, rep.CallID, rep.DurationSeconds, now)
	if err != nil {
		return Record{}, err
	}
	if set {
		if _, err := l.accountant.Accrue(ctx, rec.AgentID, rep.CallID, rep.DurationSeconds); err != nil {
			// The duration latch is already closed; a failed accrual will not
			// be retried by this path. Loud log for reconciliation.
			l.log.Error("minute accrual failed", "call_id", rep.CallID, "agent_id", rec.AgentID, "err", err)
			return Record{}, err
		}
	} else {
		l.log.Info("duration already recorded, accrual skipped", "call_id", rep.CallID)
	}

	return l.repo.Get(ctx, rep.CallID)
}

// RecordEvent appends a raw lifecycle event to the call's log, deduplicated
// per event type. Returns false when the event was already recorded or the
// call is unknown.
func (l *Ledger) RecordEvent(ctx context.Context, callID, eventType string, payload json.RawMessage) (bool, error) {
	if callID == "" || eventType == "" {
		return false, ErrInvalidArgument
	}
	return l.repo.AppendEvent(ctx, callID, Event{
		Type:      eventType,
		Timestamp: l.clock().UTC(),
		Payload:   payload,
	})
}

// SetRecording updates the recording reference, independent of call status.
// Existing references are never overwritten.
func (l *Ledger) SetRecording(ctx context.Context, callID, location string) error {
	if callID == "" || location == "" {
		return ErrInvalidArgument
	}
	return l.repo.MergeFinalFields(ctx, callID, "", location, nil, nil, l.clock().UTC())
}

func (l *Ledger) Get(ctx context.Context, callID string) (Record, error) {
	if callID == "" {
		return Record{}, ErrInvalidArgument
	}
	return l.repo.Get(ctx, callID)
}

func (l *Ledger) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	return l.repo.List(ctx, filter)
}

func (l *Ledger) appendEvent(ctx context.Context, callID, eventType string, payload json.RawMessage) (bool, error) {
	return l.repo.AppendEvent(ctx, callID, Event{
		Type:      eventType,
		Timestamp: l.clock().UTC(),
		Payload:   payload,
	})
}

func statusPayload(report StatusReport) json.RawMessage {
	if report.ErrorDetails == "" && report.AgentID == "" {
		return nil
	}
	raw, _ := json.Marshal(map[string]string{
		"agent_id":      report.AgentID,
		"error_details": report.ErrorDetails,
	})
	return raw
}
