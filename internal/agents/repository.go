package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes a table:
//
//   agents (
//     id, owner_user_id, name, phone_number UNIQUE,
//     system_prompt, greeting, voice_id,
//     allowed_minutes, used_minutes,
//     is_active, created_at, updated_at
//   )

const agentColumns = `id, owner_user_id, name, phone_number, system_prompt, greeting, voice_id,
       allowed_minutes, used_minutes, is_active, created_at, updated_at`

// allowedUpdateColumns is the closed set of columns a sparse update may touch.
// used_minutes is deliberately absent: it belongs to minute accounting only.
var allowedUpdateColumns = map[string]struct{}{
	"name":            {},
	"system_prompt":   {},
	"greeting":        {},
	"voice_id":        {},
	"allowed_minutes": {},
	"is_active":       {},
}

func scanAgent(row interface{ Scan(dest ...any) error }) (Agent, error) {
	var a Agent
	err := row.Scan(
		&a.ID,
		&a.OwnerUserID,
		&a.Name,
		&a.PhoneNumber,
		&a.SystemPrompt,
		&a.Greeting,
		&a.VoiceID,
		&a.AllowedMinutes,
		&a.UsedMinutes,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, err
	}
	return a, nil
}

func insertAgent(ctx context.Context, db *sql.DB, a Agent) error {
	const q = `
INSERT INTO agents (
  id, owner_user_id, name, phone_number, system_prompt, greeting, voice_id,
  allowed_minutes, used_minutes, is_active, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err := db.ExecContext(ctx, q,
		a.ID,
		a.OwnerUserID,
		a.Name,
		a.PhoneNumber,
		a.SystemPrompt,
		a.Greeting,
		a.VoiceID,
		a.AllowedMinutes,
		a.UsedMinutes,
		a.IsActive,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrNumberInUse
	}
	return err
}

func getAgent(ctx context.Context, db *sql.DB, agentID string) (Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	return scanAgent(db.QueryRowContext(ctx, q, agentID))
}

func getActiveAgentByNumber(ctx context.Context, db *sql.DB, number string) (Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE phone_number = $1 AND is_active = TRUE`
	return scanAgent(db.QueryRowContext(ctx, q, number))
}

func listAgentsByOwner(ctx context.Context, db *sql.DB, ownerUserID string) ([]Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE owner_user_id = $1 ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, q, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// buildUpdate turns a sparse UpdateRequest into SET fragments. Every column
// name is checked against allowedUpdateColumns; an unexpected column is an
// invariant violation and is rejected before any SQL reaches the database.
func buildUpdate(req UpdateRequest, now time.Time) (string, []any, error) {
	type fieldValue struct {
		column string
		value  any
	}
	var fields []fieldValue
	if req.Name != nil {
		fields = append(fields, fieldValue{"name", *req.Name})
	}
	if req.SystemPrompt != nil {
		fields = append(fields, fieldValue{"system_prompt", *req.SystemPrompt})
	}
	if req.Greeting != nil {
		fields = append(fields, fieldValue{"greeting", *req.Greeting})
	}
	if req.VoiceID != nil {
		fields = append(fields, fieldValue{"voice_id", *req.VoiceID})
	}
	if req.AllowedMinutes != nil {
		fields = append(fields, fieldValue{"allowed_minutes", *req.AllowedMinutes})
	}
	if req.IsActive != nil {
		fields = append(fields, fieldValue{"is_active", *req.IsActive})
	}
	if len(fields) == 0 {
		return "", nil, ErrEmptyUpdate
	}

	var set []string
	var args []any
	for i, f := range fields {
		if _, ok := allowedUpdateColumns[f.column]; !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrInvalidField, f.column)
		}
		set = append(set, fmt.Sprintf("%s = $%d", f.column, i+3))
		args = append(args, f.value)
	}
	set = append(set, "updated_at = $2")
	return strings.Join(set, ", "), args, nil
}

func updateAgent(ctx context.Context, db *sql.DB, agentID, ownerUserID string, req UpdateRequest, now time.Time) (Agent, error) {
	setClause, args, err := buildUpdate(req, now)
	if err != nil {
		return Agent{}, err
	}

	q := `UPDATE agents SET ` + setClause + `
WHERE id = $1 AND owner_user_id = $` + fmt.Sprint(len(args)+3) + `
RETURNING ` + agentColumns
	full := append([]any{agentID, now}, args...)
	full = append(full, ownerUserID)
	return scanAgent(db.QueryRowContext(ctx, q, full...))
}

// deactivateAgent soft-deletes: the row survives for audit and history joins,
// and the stored number is suffixed so the real number frees up for reuse.
func deactivateAgent(ctx context.Context, db *sql.DB, agentID, ownerUserID string, now time.Time) (Agent, error) {
	const q = `
UPDATE agents
SET is_active = FALSE,
    phone_number = phone_number || '-deleted-' || $3,
    updated_at = $4
WHERE id = $1 AND owner_user_id = $2 AND is_active = TRUE
RETURNING ` + agentColumns
	return scanAgent(db.QueryRowContext(ctx, q, agentID, ownerUserID, now.Unix(), now))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
