package calls

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a call record.
//
// Forward-only partial order:
//
//	initialized -> connected -> {completed | unanswered}
//
// Once terminal, no status-level update is accepted from any signal source
// (the "terminal latch"). Enrichment fields (duration, artifacts, timestamps)
// may still be merged in afterwards, but only into unset fields.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusConnected   Status = "connected"
	StatusCompleted   Status = "completed"
	StatusUnanswered  Status = "unanswered"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusUnanswered
}

func (s Status) Valid() bool {
	switch s {
	case StatusInitialized, StatusConnected, StatusCompleted, StatusUnanswered:
		return true
	default:
		return false
	}
}

// Lifecycle event types. The webhook ingestor records the telephony platform's
// room/participant/egress events verbatim; agent_* entries are recorded by the
// ledger when the agent process reports status.
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventTrackPublished    = "track_published"
	EventEgressStarted     = "egress_started"
	EventEgressUpdated     = "egress_updated"
	EventEgressEnded       = "egress_ended"
	EventAgentInitialized  = "agent_initialized"
	EventAgentConnected    = "agent_connected"
	EventAgentFinalReport  = "agent_final_report"
)

// Event is one immutable entry in a call's append-only event log. The log
// serves two purposes: per-event-type deduplication of repeated webhook
// deliveries, and retrospective derivation of whether the call was answered.
type Event struct {
	Type      string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Record is one call attempt, keyed by the externally assigned call id.
// Never deleted; kept for audit.
type Record struct {
	CallID       string `json:"call_id" db:"call_id"`
	AgentID      string `json:"agent_id" db:"agent_id"`
	CallerNumber string `json:"caller_number" db:"caller_number"`

	Status Status `json:"status" db:"status"`

	// DurationSeconds is authoritative only once set: either the agent's
	// final report (the single trusted writer) or the forced zero of an
	// unanswered call. It is never recomputed from timestamps afterwards.
	DurationSeconds *float64 `json:"duration,omitempty" db:"duration_seconds"`

	Transcript string `json:"transcript,omitempty" db:"transcript"`
	Recording  string `json:"recording,omitempty" db:"recording"`

	Events []Event `json:"events_log" db:"events_log"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// StatusReport is a producer-side lifecycle signal. Delivery is
// fire-and-forget from the producer's perspective: unknown call ids are
// acknowledged and logged, never surfaced as a caller-visible error.
type StatusReport struct {
	CallID       string `json:"call_id"`
	Status       Status `json:"status"`
	AgentID      string `json:"agent_id,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// FinalReport is the agent's end-of-call report: the only writer permitted to
// set a nonzero, trusted duration. Its arrival triggers minute accrual.
type FinalReport struct {
	CallID              string     `json:"call_id"`
	AgentID             string     `json:"agent_id"`
	TranscriptLocation  string     `json:"transcript_location,omitempty"`
	RecordingLocation   string     `json:"recording_location,omitempty"`
	DurationSeconds     float64    `json:"duration_seconds"`
	ParticipantJoinedAt *time.Time `json:"participant_joined_at,omitempty"`
	ParticipantLeftAt   *time.Time `json:"participant_left_at,omitempty"`
}
