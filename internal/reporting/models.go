package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated call metrics for one owner's agents.
type SummaryRequest struct {
	OwnerUserID string    `json:"owner_user_id"`
	Range       TimeRange `json:"range"`
	AgentID     string    `json:"agent_id,omitempty"`
}

type Summary struct {
	OwnerUserID string `json:"owner_user_id"`
	AgentID     string `json:"agent_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	UnansweredCalls int `json:"unanswered_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   float64 `json:"total_duration_seconds"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`

	RecordedCalls    int `json:"recorded_calls"`
	TranscribedCalls int `json:"transcribed_calls"`

	// MinutesConsumed is derived from recorded durations, the same rounding
	// the accountant applies per call.
	MinutesConsumed float64 `json:"minutes_consumed"`

	Agents []AgentUsage `json:"agents"`
}

// AgentUsage is the per-agent minute position as persisted on the agent row.
type AgentUsage struct {
	AgentID          string  `json:"agent_id"`
	Name             string  `json:"name"`
	PhoneNumber      string  `json:"phone_number"`
	AllowedMinutes   float64 `json:"allowed_minutes"`
	UsedMinutes      float64 `json:"used_minutes"`
	RemainingMinutes float64 `json:"remaining_minutes"`
}
