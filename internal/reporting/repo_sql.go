package reporting

import (
	"context"
	"time"

	"voiceagent-platform/internal/agents"
	"voiceagent-platform/internal/calls"
)

// LedgerRepo is the production Repository: call history through the ledger's
// SQL repository, minute positions through the agents service. Both reads are
// owner-scoped at the query level.
type LedgerRepo struct {
	calls  *calls.SQLRepository
	agents *agents.Service
}

func NewLedgerRepo(callsRepo *calls.SQLRepository, agentsSvc *agents.Service) *LedgerRepo {
	return &LedgerRepo{calls: callsRepo, agents: agentsSvc}
}

func (r *LedgerRepo) ListCalls(ctx context.Context, ownerUserID string, from, to time.Time, agentID string) ([]calls.Record, error) {
	return r.calls.ListOwned(ctx, ownerUserID, calls.ListFilter{
		AgentID: agentID,
		From:    from,
		To:      to,
	})
}

func (r *LedgerRepo) ListAgents(ctx context.Context, ownerUserID string) ([]agents.Agent, error) {
	return r.agents.List(ctx, ownerUserID)
}
