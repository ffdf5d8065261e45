package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/livekit/protocol/livekit"

	"voiceagent-platform/internal/calls"
)

// Ledger is the slice of the call ledger the ingestor drives.
type Ledger interface {
	RecordEvent(ctx context.Context, callID, eventType string, payload json.RawMessage) (bool, error)
	ResolveTerminal(ctx context.Context, callID string) (calls.Record, error)
	SetRecording(ctx context.Context, callID, location string) error
}

// DedupFunc answers whether this delivery key is being seen for the first
// time. Backed by Redis SETNX in production; nil disables the fast path, in
// which case the ledger's per-event-type append guard still holds alone.
type DedupFunc func(ctx context.Context, key string) (bool, error)

// DefaultSettleDelay is how long a terminal trigger waits before resolving,
// giving near-simultaneous events (the room-finished burst) time to land in
// the event log first.
const DefaultSettleDelay = 500 * time.Millisecond

// Ingestor turns verified LiveKit webhook events into call ledger updates.
// Deliveries are at-least-once and unordered; everything here is written to
// be safe to replay.
type Ingestor struct {
	ledger Ledger
	seen   DedupFunc
	settle time.Duration
	log    *slog.Logger
}

func NewIngestor(ledger Ledger, seen DedupFunc) *Ingestor {
	return &Ingestor{
		ledger: ledger,
		seen:   seen,
		settle: DefaultSettleDelay,
		log:    slog.Default(),
	}
}

// Process routes one webhook event. It returns nil for events that cannot be
// attributed to a call: LiveKit retries on non-2xx, and retrying an event we
// will never recognize only burns both sides.
func (i *Ingestor) Process(ctx context.Context, ev *livekit.WebhookEvent) error {
	callID := callIDFor(ev)
	if callID == "" {
		i.log.Warn("webhook event without a room reference", "event", ev.GetEvent(), "id", ev.GetId())
		return nil
	}

	if i.seen != nil {
		first, err := i.seen(ctx, dedupKey(callID, ev))
		if err != nil {
			// Redis being down only loses the fast path; the append guard in
			// the ledger remains authoritative.
			i.log.Warn("webhook dedup check failed", "call_id", callID, "err", err)
		} else if !first {
			return nil
		}
	}

	appended, err := i.ledger.RecordEvent(ctx, callID, ev.GetEvent(), eventPayload(ev))
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			i.log.Warn("webhook event for unknown call", "call_id", callID, "event", ev.GetEvent())
			return nil
		}
		return fmt.Errorf("record %s for %s: %w", ev.GetEvent(), callID, err)
	}
	if !appended {
		i.log.Debug("duplicate webhook delivery", "call_id", callID, "event", ev.GetEvent())
	}

	switch ev.GetEvent() {
	case calls.EventRoomFinished, calls.EventParticipantLeft:
		if err := i.waitSettle(ctx); err != nil {
			return err
		}
		if _, err := i.ledger.ResolveTerminal(ctx, callID); err != nil {
			if errors.Is(err, calls.ErrNotFound) {
				i.log.Warn("terminal event for unknown call", "call_id", callID, "event", ev.GetEvent())
				return nil
			}
			return fmt.Errorf("resolve terminal for %s: %w", callID, err)
		}

	case calls.EventEgressEnded:
		if loc := egressLocation(ev.GetEgressInfo()); loc != "" {
			if err := i.ledger.SetRecording(ctx, callID, loc); err != nil {
				if errors.Is(err, calls.ErrNotFound) {
					i.log.Warn("egress result for unknown call", "call_id", callID, "egress_id", ev.GetEgressInfo().GetEgressId())
					return nil
				}
				return fmt.Errorf("set recording for %s: %w", callID, err)
			}
		}
	}
	return nil
}

// waitSettle blocks for the settle delay so that the burst of events LiveKit
// emits around room teardown has a chance to be recorded before the terminal
// decision reads the log.
func (i *Ingestor) waitSettle(ctx context.Context) error {
	if i.settle <= 0 {
		return nil
	}
	t := time.NewTimer(i.settle)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// callIDFor maps an event back to the call it belongs to. Rooms are named
// after call ids; egress events carry the room name one level down.
func callIDFor(ev *livekit.WebhookEvent) string {
	if name := ev.GetRoom().GetName(); name != "" {
		return name
	}
	return ev.GetEgressInfo().GetRoomName()
}

func dedupKey(callID string, ev *livekit.WebhookEvent) string {
	return "webhook:" + callID + ":" + ev.GetEvent()
}

// eventPayload extracts the handful of fields the ledger's classification and
// audit trail care about. The full envelope is not persisted.
func eventPayload(ev *livekit.WebhookEvent) json.RawMessage {
	fields := map[string]any{}
	if p := ev.GetParticipant(); p != nil {
		fields["identity"] = p.GetIdentity()
		fields["sid"] = p.GetSid()
	}
	if tr := ev.GetTrack(); tr != nil {
		fields["track_sid"] = tr.GetSid()
		fields["track_type"] = tr.GetType().String()
	}
	if eg := ev.GetEgressInfo(); eg != nil {
		fields["egress_id"] = eg.GetEgressId()
		fields["egress_status"] = eg.GetStatus().String()
	}
	if len(fields) == 0 {
		return nil
	}
	raw, _ := json.Marshal(fields)
	return raw
}

func egressLocation(eg *livekit.EgressInfo) string {
	if eg == nil {
		return ""
	}
	for _, f := range eg.GetFileResults() {
		if f.GetLocation() != "" {
			return f.GetLocation()
		}
		if f.GetFilename() != "" {
			return f.GetFilename()
		}
	}
	return ""
}
