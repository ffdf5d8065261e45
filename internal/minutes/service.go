package minutes

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"
)

// Service meters agent usage in minutes.
//
// Accounting invariants:
// - used_minutes only moves via the additive accrual statement or the admin
//   reset; never via read-then-overwrite in application code
// - accrual is commutative, so two racing accruals for different calls both
//   land correctly; per-call exactly-once is guaranteed upstream by the call
//   ledger's duration latch
// - remaining minutes may go negative; the gate only blocks the NEXT call
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

var (
	ErrNotFound        = errors.New("minutes: agent not found")
	ErrQuotaExhausted  = errors.New("minutes: quota exhausted")
	ErrInvalidArgument = errors.New("minutes: invalid argument")
)

// Availability is the caller-visible quota triple for one agent.
type Availability struct {
	AgentID          string  `json:"agent_id"`
	Available        bool    `json:"available"`
	AllowedMinutes   float64 `json:"allowed_minutes"`
	UsedMinutes      float64 `json:"used_minutes"`
	RemainingMinutes float64 `json:"remaining_minutes"`
}

func availabilityFrom(agentID string, allowed, used float64) Availability {
	remaining := allowed - used
	return Availability{
		AgentID:          agentID,
		Available:        remaining > 0,
		AllowedMinutes:   allowed,
		UsedMinutes:      used,
		RemainingMinutes: remaining,
	}
}

// MinutesForDuration converts an authoritative call duration to the per-call
// minute delta. The delta is rounded to three decimal places so a 40 second
// call accrues exactly 0.667 minutes.
func MinutesForDuration(durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return math.Round(durationSeconds/60*1000) / 1000
}

// CheckAvailable is a pure read of the quota state.
func (s *Service) CheckAvailable(ctx context.Context, agentID string) (Availability, error) {
	if agentID == "" {
		return Availability{}, ErrInvalidArgument
	}
	const q = `SELECT allowed_minutes, used_minutes FROM agents WHERE id = $1`
	var allowed, used float64
	if err := s.db.QueryRowContext(ctx, q, agentID).Scan(&allowed, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Availability{}, ErrNotFound
		}
		return Availability{}, err
	}
	return availabilityFrom(agentID, allowed, used), nil
}

// RequireAvailable is the call-acceptance gate: it converts unavailability
// into ErrQuotaExhausted so callers can distinguish "no agent" from "agent
// disabled by quota".
func (s *Service) RequireAvailable(ctx context.Context, agentID string) (Availability, error) {
	avail, err := s.CheckAvailable(ctx, agentID)
	if err != nil {
		return Availability{}, err
	}
	if !avail.Available {
		return avail, ErrQuotaExhausted
	}
	return avail, nil
}

// Accrue adds one call's authoritative duration to the agent's accumulator.
// Single additive UPDATE: safe under concurrent accruals for other calls, and
// invoked at most once per call by the ledger's duration latch.
func (s *Service) Accrue(ctx context.Context, agentID, callID string, durationSeconds float64) (Availability, error) {
	if agentID == "" || callID == "" {
		return Availability{}, ErrInvalidArgument
	}
	if durationSeconds < 0 {
		return Availability{}, ErrInvalidArgument
	}

	delta := MinutesForDuration(durationSeconds)
	const q = `
UPDATE agents
SET used_minutes = used_minutes + $2, updated_at = $3
WHERE id = $1
RETURNING allowed_minutes, used_minutes
`
	var allowed, used float64
	if err := s.db.QueryRowContext(ctx, q, agentID, delta, s.clock().UTC()).Scan(&allowed, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Availability{}, ErrNotFound
		}
		return Availability{}, err
	}
	return availabilityFrom(agentID, allowed, used), nil
}

// Reset zeroes the accumulator for a billing cycle rollover. allowed_minutes
// is untouched. Only the owning administrator may reset.
func (s *Service) Reset(ctx context.Context, agentID, ownerUserID string) (Availability, error) {
	if agentID == "" || ownerUserID == "" {
		return Availability{}, ErrInvalidArgument
	}
	const q = `
UPDATE agents
SET used_minutes = 0, updated_at = $3
WHERE id = $1 AND owner_user_id = $2
RETURNING allowed_minutes, used_minutes
`
	var allowed, used float64
	if err := s.db.QueryRowContext(ctx, q, agentID, ownerUserID, s.clock().UTC()).Scan(&allowed, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Availability{}, ErrNotFound
		}
		return Availability{}, err
	}
	return availabilityFrom(agentID, allowed, used), nil
}
