package reporting

import (
	"context"
	"errors"
	"time"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/minutes"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts read access for reporting. Implementations must scope
// every read to the requesting owner; nothing in this package re-checks it.
type Repository interface {
	ListCalls(ctx context.Context, ownerUserID string, from, to time.Time, agentID string) ([]calls.Record, error)
	ListAgents(ctx context.Context, ownerUserID string) ([]agents.Agent, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Summarize aggregates the owner's call history and current minute positions.
// Reads only persisted ledger output; never recomputes call state.
func (s *Service) Summarize(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.OwnerUserID == "" {
		return Summary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.OwnerUserID, req.Range.From, req.Range.To, req.AgentID)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{OwnerUserID: req.OwnerUserID, AgentID: req.AgentID}
	for _, c := range rows {
		out.TotalCalls++
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
			out.MinutesConsumed += minutes.MinutesForDuration(*c.DurationSeconds)
		}
		if c.Recording != "" {
			out.RecordedCalls++
		}
		if c.Transcript != "" {
			out.TranscribedCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusUnanswered:
			out.UnansweredCalls++
		case calls.StatusInitialized, calls.StatusConnected:
			out.InProgressCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / float64(out.CompletedCalls)
	}

	owned, err := s.repo.ListAgents(ctx, req.OwnerUserID)
	if err != nil {
		return Summary{}, err
	}
	for _, a := range owned {
		if req.AgentID != "" && a.ID != req.AgentID {
			continue
		}
		out.Agents = append(out.Agents, AgentUsage{
			AgentID:          a.ID,
			Name:             a.Name,
			PhoneNumber:      a.PhoneNumber,
			AllowedMinutes:   a.AllowedMinutes,
			UsedMinutes:      a.UsedMinutes,
			RemainingMinutes: a.AllowedMinutes - a.UsedMinutes,
		})
	}
	return out, nil
}
