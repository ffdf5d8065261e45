package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ActorUserID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogMinutesReset records an administrative used-minutes reset on an agent.
func (s *Service) LogMinutesReset(ctx context.Context, actorUserID, actorRole, ip, agentID string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeMinutesReset,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		AgentID:     agentID,
		Message:     "used_minutes reset to zero",
	})
}

// LogAgentDeactivated records an agent soft-delete.
func (s *Service) LogAgentDeactivated(ctx context.Context, actorUserID, actorRole, ip, agentID string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAgentDeactivated,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		AgentID:     agentID,
		Message:     "agent deactivated, number released",
	})
}

// LogAdminAction records a generic admin action with free-form detail.
func (s *Service) LogAdminAction(ctx context.Context, actorUserID, actorRole, ip, message, agentID, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		AgentID:     agentID,
		Message:     message,
		Metadata:    metadata,
	})
}
