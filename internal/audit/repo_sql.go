package audit

import (
	"context"
	"database/sql"
)

// SQLRepo appends audit events to Postgres. Insert-only; the schema is
// expected to reject updates and deletes.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_role, ip_address, agent_id, call_id, message, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.ActorUserID, e.ActorRole, e.IPAddress,
		e.AgentID, e.CallID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
