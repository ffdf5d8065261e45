package agents

import "time"

// Agent represents one configured voice persona bound 1:1 to a phone number.
//
// Number invariant: phone_number is unique across all rows, including
// soft-deleted ones. Deactivation suffixes the stored number so the real
// number can be reused by a new agent.
//
// Minutes invariant: used_minutes is monotonically non-decreasing and only
// ever incremented by the minute accounting accrual path (exactly once per
// call) or reset to zero by explicit administrative action.
type Agent struct {
	ID          string `json:"id" db:"id"`
	OwnerUserID string `json:"owner_user_id" db:"owner_user_id"`

	Name        string `json:"name" db:"name"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// Persona configuration consumed by the call agent process. Opaque to the
	// backend beyond storage and delivery.
	SystemPrompt string `json:"system_prompt,omitempty" db:"system_prompt"`
	Greeting     string `json:"greeting,omitempty" db:"greeting"`
	VoiceID      string `json:"voice_id,omitempty" db:"voice_id"`

	AllowedMinutes float64 `json:"allowed_minutes" db:"allowed_minutes"`
	UsedMinutes    float64 `json:"used_minutes" db:"used_minutes"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateRequest carries administrator input for a new agent.
type CreateRequest struct {
	Name           string  `json:"name"`
	PhoneNumber    string  `json:"phone_number"`
	SystemPrompt   string  `json:"system_prompt,omitempty"`
	Greeting       string  `json:"greeting,omitempty"`
	VoiceID        string  `json:"voice_id,omitempty"`
	AllowedMinutes float64 `json:"allowed_minutes"`
}

// UpdateRequest is a sparse update: only non-nil fields are written.
// The repository validates each field against an explicit allow-list of
// mutable columns before any SQL is built.
type UpdateRequest struct {
	Name           *string  `json:"name,omitempty"`
	SystemPrompt   *string  `json:"system_prompt,omitempty"`
	Greeting       *string  `json:"greeting,omitempty"`
	VoiceID        *string  `json:"voice_id,omitempty"`
	AllowedMinutes *float64 `json:"allowed_minutes,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}
