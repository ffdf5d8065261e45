package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/calls"
)

// MemoryRepo is an in-memory reporting repository for tests and early
// development. Owner scoping is enforced through agent ownership: a call is
// visible iff its agent belongs to the owner.
type MemoryRepo struct {
	mu sync.Mutex

	Agents []agents.Agent
	Calls  []calls.Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(_ context.Context, ownerUserID string, from, to time.Time, agentID string) ([]calls.Record, error) {
	if ownerUserID == "" {
		return nil, errors.New("owner_user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := map[string]bool{}
	for _, a := range r.Agents {
		if a.OwnerUserID == ownerUserID {
			owned[a.ID] = true
		}
	}

	out := make([]calls.Record, 0)
	for _, c := range r.Calls {
		if !owned[c.AgentID] {
			continue
		}
		if agentID != "" && c.AgentID != agentID {
			continue
		}
		if !c.CreatedAt.IsZero() {
			if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListAgents(_ context.Context, ownerUserID string) ([]agents.Agent, error) {
	if ownerUserID == "" {
		return nil, errors.New("owner_user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]agents.Agent, 0)
	for _, a := range r.Agents {
		if a.OwnerUserID == ownerUserID {
			out = append(out, a)
		}
	}
	return out, nil
}
