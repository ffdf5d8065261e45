package agents

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service provides agent persona management.
//
// Ownership invariant:
// - every mutating operation takes the acting administrator's user id and
//   only touches rows that administrator owns
//
// Number invariant:
// - one active agent per phone number; deactivation frees the number by
//   suffixing the stored value
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

var (
	ErrNotFound        = errors.New("agents: not found")
	ErrInvalidArgument = errors.New("agents: invalid argument")
	ErrNumberInUse     = errors.New("agents: phone number already in use")
	ErrEmptyUpdate     = errors.New("agents: no fields to update")
	ErrInvalidField    = errors.New("agents: field not updatable")
)

func (s *Service) Create(ctx context.Context, ownerUserID string, req CreateRequest) (Agent, error) {
	if ownerUserID == "" {
		return Agent{}, ErrInvalidArgument
	}
	req.Name = strings.TrimSpace(req.Name)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.Name == "" || req.PhoneNumber == "" {
		return Agent{}, ErrInvalidArgument
	}
	if req.AllowedMinutes < 0 {
		return Agent{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	a := Agent{
		ID:             uuid.NewString(),
		OwnerUserID:    ownerUserID,
		Name:           req.Name,
		PhoneNumber:    req.PhoneNumber,
		SystemPrompt:   req.SystemPrompt,
		Greeting:       req.Greeting,
		VoiceID:        req.VoiceID,
		AllowedMinutes: req.AllowedMinutes,
		UsedMinutes:    0,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := insertAgent(ctx, s.db, a); err != nil {
		return Agent{}, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, agentID string) (Agent, error) {
	if agentID == "" {
		return Agent{}, ErrInvalidArgument
	}
	return getAgent(ctx, s.db, agentID)
}

// GetOwned is Get plus an ownership check, for administrative reads.
func (s *Service) GetOwned(ctx context.Context, agentID, ownerUserID string) (Agent, error) {
	a, err := s.Get(ctx, agentID)
	if err != nil {
		return Agent{}, err
	}
	if a.OwnerUserID != ownerUserID {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

// GetActiveByPhoneNumber resolves the agent bound to a dialed number.
// Inactive (soft-deleted) agents never resolve.
func (s *Service) GetActiveByPhoneNumber(ctx context.Context, phoneNumber string) (Agent, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return Agent{}, ErrInvalidArgument
	}
	return getActiveAgentByNumber(ctx, s.db, phoneNumber)
}

func (s *Service) List(ctx context.Context, ownerUserID string) ([]Agent, error) {
	if ownerUserID == "" {
		return nil, ErrInvalidArgument
	}
	return listAgentsByOwner(ctx, s.db, ownerUserID)
}

func (s *Service) Update(ctx context.Context, agentID, ownerUserID string, req UpdateRequest) (Agent, error) {
	if agentID == "" || ownerUserID == "" {
		return Agent{}, ErrInvalidArgument
	}
	if req.AllowedMinutes != nil && *req.AllowedMinutes < 0 {
		return Agent{}, ErrInvalidArgument
	}
	return updateAgent(ctx, s.db, agentID, ownerUserID, req, s.clock().UTC())
}

// Deactivate soft-deletes an agent. Already-inactive agents return ErrNotFound
// so repeated deletes do not re-suffix the number.
func (s *Service) Deactivate(ctx context.Context, agentID, ownerUserID string) (Agent, error) {
	if agentID == "" || ownerUserID == "" {
		return Agent{}, ErrInvalidArgument
	}
	return deactivateAgent(ctx, s.db, agentID, ownerUserID, s.clock().UTC())
}
