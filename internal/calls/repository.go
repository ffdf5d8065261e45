package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository is the persistence contract for call records.
//
// Every mutation is a single-statement atomic update: guarded writes
// (`WHERE status NOT IN (terminal set)`, `WHERE duration_seconds IS NULL`)
// rather than optimistic-lock read-modify-write in application code. The
// boolean results report whether the guard admitted the write.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, callID string) (Record, error)

	// SetConnected moves initialized -> connected. First writer wins for
	// started_at; later writers never overwrite it.
	SetConnected(ctx context.Context, callID string, at time.Time) (bool, error)

	// MarkTerminal latches a terminal status. forceZeroDuration stamps a zero
	// duration for calls nobody answered, but never overwrites an
	// already-recorded authoritative value.
	MarkTerminal(ctx context.Context, callID string, status Status, forceZeroDuration bool, at time.Time) (bool, error)

	// AppendEvent appends to the event log unless an event of the same type
	// is already recorded for this call.
	AppendEvent(ctx context.Context, callID string, event Event) (bool, error)

	// SetDurationOnce records the authoritative duration iff none is set.
	SetDurationOnce(ctx context.Context, callID string, seconds float64, at time.Time) (bool, error)

	// MergeFinalFields fills transcript/recording/timestamps that are still
	// unset. Permitted even after the status latch: enrichment is merge, not
	// exclusive.
	MergeFinalFields(ctx context.Context, callID, transcript, recording string, joinedAt, leftAt *time.Time, at time.Time) error

	List(ctx context.Context, filter ListFilter) ([]Record, error)
}

type ListFilter struct {
	AgentID string
	From    time.Time
	To      time.Time
	Limit   int
}

// SQLRepository implements Repository against Postgres.
//
// NOTE: assumes a table:
//
//	call_history (
//	  call_id TEXT PRIMARY KEY, agent_id, caller_number, status,
//	  duration_seconds DOUBLE PRECISION NULL,
//	  transcript TEXT, recording TEXT,
//	  events_log JSONB NOT NULL DEFAULT '[]',
//	  created_at, started_at NULL, ended_at NULL, updated_at
//	)
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const callColumns = `call_id, agent_id, caller_number, status, duration_seconds,
       transcript, recording, events_log, created_at, started_at, ended_at, updated_at`

func scanCall(row interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec       Record
		duration  sql.NullFloat64
		startedAt sql.NullTime
		endedAt   sql.NullTime
		eventsRaw []byte
	)
	err := row.Scan(
		&rec.CallID,
		&rec.AgentID,
		&rec.CallerNumber,
		&rec.Status,
		&duration,
		&rec.Transcript,
		&rec.Recording,
		&eventsRaw,
		&rec.CreatedAt,
		&startedAt,
		&endedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if duration.Valid {
		d := duration.Float64
		rec.DurationSeconds = &d
	}
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	if len(eventsRaw) > 0 {
		if err := json.Unmarshal(eventsRaw, &rec.Events); err != nil {
			return Record{}, fmt.Errorf("decode events_log for %s: %w", rec.CallID, err)
		}
	}
	return rec, nil
}

func (r *SQLRepository) Insert(ctx context.Context, rec Record) error {
	events := rec.Events
	if events == nil {
		events = []Event{}
	}
	eventsRaw, err := json.Marshal(events)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO call_history (
  call_id, agent_id, caller_number, status, duration_seconds,
  transcript, recording, events_log, created_at, started_at, ended_at, updated_at
) VALUES (
  $1,$2,$3,$4,NULL,$5,$6,$7::jsonb,$8,NULL,NULL,$8
)
`
	_, err = r.db.ExecContext(ctx, q,
		rec.CallID,
		rec.AgentID,
		rec.CallerNumber,
		rec.Status,
		rec.Transcript,
		rec.Recording,
		string(eventsRaw),
		rec.CreatedAt,
	)
	return err
}

func (r *SQLRepository) Get(ctx context.Context, callID string) (Record, error) {
	q := `SELECT ` + callColumns + ` FROM call_history WHERE call_id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, callID))
}

func (r *SQLRepository) SetConnected(ctx context.Context, callID string, at time.Time) (bool, error) {
	const q = `
UPDATE call_history
SET status = 'connected',
    started_at = COALESCE(started_at, $2),
    updated_at = $2
WHERE call_id = $1 AND status = 'initialized'
`
	res, err := r.db.ExecContext(ctx, q, callID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLRepository) MarkTerminal(ctx context.Context, callID string, status Status, forceZeroDuration bool, at time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidTransition, status)
	}
	const q = `
UPDATE call_history
SET status = $2,
    ended_at = COALESCE(ended_at, $3),
    duration_seconds = CASE WHEN $4 THEN COALESCE(duration_seconds, 0) ELSE duration_seconds END,
    updated_at = $3
WHERE call_id = $1 AND status NOT IN ('completed','unanswered')
`
	res, err := r.db.ExecContext(ctx, q, callID, status, at, forceZeroDuration)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLRepository) AppendEvent(ctx context.Context, callID string, event Event) (bool, error) {
	entry, err := json.Marshal([]Event{event})
	if err != nil {
		return false, err
	}
	guard, err := json.Marshal([]map[string]string{{"event_type": event.Type}})
	if err != nil {
		return false, err
	}

	// Read-check-append in one statement: the containment guard makes a
	// duplicate delivery a no-op. Two simultaneous duplicate deliveries have
	// a narrow race window, which is accepted; the event log is only read for
	// presence of a type, so a rare double entry is harmless.
	const q = `
UPDATE call_history
SET events_log = events_log || $2::jsonb,
    updated_at = $3
WHERE call_id = $1 AND NOT (events_log @> $4::jsonb)
`
	res, err := r.db.ExecContext(ctx, q, callID, string(entry), event.Timestamp, string(guard))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLRepository) SetDurationOnce(ctx context.Context, callID string, seconds float64, at time.Time) (bool, error) {
	const q = `
UPDATE call_history
SET duration_seconds = $2,
    updated_at = $3
WHERE call_id = $1 AND duration_seconds IS NULL
`
	res, err := r.db.ExecContext(ctx, q, callID, seconds, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLRepository) MergeFinalFields(ctx context.Context, callID, transcript, recording string, joinedAt, leftAt *time.Time, at time.Time) error {
	const q = `
UPDATE call_history
SET transcript = CASE WHEN transcript = '' THEN $2 ELSE transcript END,
    recording  = CASE WHEN recording  = '' THEN $3 ELSE recording  END,
    started_at = COALESCE(started_at, $4),
    ended_at   = COALESCE(ended_at, $5),
    updated_at = $6
WHERE call_id = $1
`
	_, err := r.db.ExecContext(ctx, q, callID, transcript, recording, nullableTime(joinedAt), nullableTime(leftAt), at)
	return err
}

func (r *SQLRepository) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	q := `SELECT ` + callColumns + ` FROM call_history WHERE 1=1`
	var args []any
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		q += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		q += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	q += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListOwned is List scoped through agent ownership, for owner-facing reads.
// Not part of Repository: only the SQL-backed reporting path needs it.
func (r *SQLRepository) ListOwned(ctx context.Context, ownerUserID string, filter ListFilter) ([]Record, error) {
	q := `SELECT c.call_id, c.agent_id, c.caller_number, c.status, c.duration_seconds,
       c.transcript, c.recording, c.events_log, c.created_at, c.started_at, c.ended_at, c.updated_at
FROM call_history c
JOIN agents a ON a.id = c.agent_id
WHERE a.owner_user_id = $1`
	args := []any{ownerUserID}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		q += fmt.Sprintf(" AND c.agent_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		q += fmt.Sprintf(" AND c.created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		q += fmt.Sprintf(" AND c.created_at < $%d", len(args))
	}
	q += " ORDER BY c.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
