package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voiceagent-platform/internal/calls"
)

// CallRoom is the slice of Room the runner drives.
type CallRoom interface {
	WaitForCaller(ctx context.Context, ringTimeout time.Duration) error
	WaitForEnd(ctx context.Context) error
	CallerTimestamps() (joinedAt, leftAt *time.Time)
	Disconnect()
}

// StatusReporter delivers lifecycle signals to the backend.
type StatusReporter interface {
	ReportStatus(ctx context.Context, report calls.StatusReport) error
	SubmitFinalReport(ctx context.Context, report calls.FinalReport) error
}

// ArtifactUploader persists the transcript; nil disables upload.
type ArtifactUploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// RunnerConfig identifies the call this process serves.
type RunnerConfig struct {
	CallID      string
	AgentID     string
	RingTimeout time.Duration
}

// Runner owns one call from the agent's side: wait for the caller, run the
// conversation, and report what happened. The backend's ledger is the source
// of truth; the runner's job is to feed it honest evidence and survive
// backend hiccups without dropping the live call.
type Runner struct {
	cfg      RunnerConfig
	reporter StatusReporter
	session  ConversationSession
	store    ArtifactUploader

	clock func() time.Time
	log   *slog.Logger
}

func NewRunner(cfg RunnerConfig, reporter StatusReporter, session ConversationSession, store ArtifactUploader) *Runner {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 45 * time.Second
	}
	return &Runner{
		cfg:      cfg,
		reporter: reporter,
		session:  session,
		store:    store,
		clock:    time.Now,
		log:      slog.Default(),
	}
}

// Run drives the call to completion. Status delivery failures are logged and
// tolerated throughout; only room-level failures abort the run.
func (r *Runner) Run(ctx context.Context, room CallRoom) error {
	defer room.Disconnect()

	// Best effort: the record was created at dispatch, this confirms the
	// process came up.
	r.reporter.ReportStatus(ctx, r.status(calls.StatusInitialized, ""))

	if err := room.WaitForCaller(ctx, r.cfg.RingTimeout); err != nil {
		if errors.Is(err, ErrRingTimeout) {
			r.log.Info("caller never joined", "call_id", r.cfg.CallID, "ring_timeout", r.cfg.RingTimeout)
			fctx, cancel := finalizeContext(ctx)
			defer cancel()
			r.reporter.ReportStatus(fctx, r.status(calls.StatusUnanswered, "ring timeout"))
			return nil
		}
		return err
	}

	r.reporter.ReportStatus(ctx, r.status(calls.StatusConnected, ""))

	if r.session != nil {
		if err := r.session.Start(ctx); err != nil {
			// A dead speech pipeline degrades the call, it does not end it:
			// the caller stays connected until they hang up.
			r.log.Error("conversation session failed to start", "call_id", r.cfg.CallID, "err", err)
		}
		defer r.session.Stop()
	}

	if err := room.WaitForEnd(ctx); err != nil {
		r.log.Warn("run interrupted, finalizing early", "call_id", r.cfg.CallID, "err", err)
	}

	fctx, cancel := finalizeContext(ctx)
	defer cancel()
	return r.finalize(fctx, room)
}

// finalize computes the authoritative duration from observed caller
// timestamps, uploads the transcript, and submits the final report.
func (r *Runner) finalize(ctx context.Context, room CallRoom) error {
	joinedAt, leftAt := room.CallerTimestamps()
	if joinedAt == nil {
		// Connected was reported but join was never observed; nothing
		// authoritative to say about duration.
		r.reporter.ReportStatus(ctx, r.status(calls.StatusUnanswered, "no caller timestamps"))
		return nil
	}
	if leftAt == nil {
		now := r.clock().UTC()
		leftAt = &now
	}
	duration := leftAt.Sub(*joinedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	report := calls.FinalReport{
		CallID:              r.cfg.CallID,
		AgentID:             r.cfg.AgentID,
		DurationSeconds:     duration,
		ParticipantJoinedAt: joinedAt,
		ParticipantLeftAt:   leftAt,
	}
	if loc := r.uploadTranscript(ctx); loc != "" {
		report.TranscriptLocation = loc
	}

	return r.reporter.SubmitFinalReport(ctx, report)
}

func (r *Runner) uploadTranscript(ctx context.Context) string {
	if r.store == nil || r.session == nil {
		return ""
	}
	turns := r.session.Transcript()
	if len(turns) == 0 {
		return ""
	}
	data, err := json.Marshal(turns)
	if err != nil {
		r.log.Error("transcript encode failed", "call_id", r.cfg.CallID, "err", err)
		return ""
	}
	loc, err := r.store.Put(ctx, fmt.Sprintf("%s/transcript.json", r.cfg.CallID), data, "application/json")
	if err != nil {
		// The final report still goes out; the call just has no transcript.
		r.log.Error("transcript upload failed", "call_id", r.cfg.CallID, "err", err)
		return ""
	}
	return loc
}

func (r *Runner) status(s calls.Status, details string) calls.StatusReport {
	return calls.StatusReport{
		CallID:       r.cfg.CallID,
		AgentID:      r.cfg.AgentID,
		Status:       s,
		ErrorDetails: details,
	}
}

// finalizeContext detaches from the run context so that a SIGTERM-driven
// cancellation cannot also cancel the final report, while still bounding it.
func finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
}
