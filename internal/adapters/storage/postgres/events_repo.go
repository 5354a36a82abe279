package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"baby-care-log/internal/domain/audit"
	"baby-care-log/internal/domain/events"
	"baby-care-log/internal/domain/events/document"
)

const openUniqueIndex = "child_event_open_unique"

type EventsRepo struct {
	db *sql.DB
}

func NewEventsRepo(db *sql.DB) *EventsRepo {
	return &EventsRepo{db: db}
}

// InTx abre una transacción, ejecuta fn y comitea solo si fn devuelve nil.
// Cualquier error revierte todo, incluida una auditoría fallida.
func (r *EventsRepo) InTx(ctx context.Context, fn func(tx events.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&eventsTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (events.Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return events.Event{}, events.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, child_id,
			type, state,
			start_time, end_time,
			value, metadata,
			source, created_by, created_at
		FROM child_event
		WHERE id = $1
	`, id)

	return scanEvent(row)
}

func (r *EventsRepo) ListOpen(ctx context.Context, childID string, typeFilter events.EventType) ([]events.Event, error) {
	query := `
		SELECT
			id, child_id,
			type, state,
			start_time, end_time,
			value, metadata,
			source, created_by, created_at
		FROM child_event
		WHERE child_id = $1 AND state = 'OPEN'
	`
	args := []any{childID}
	if typeFilter != "" {
		query += ` AND type = $2`
		args = append(args, string(typeFilter))
	}
	query += ` ORDER BY start_time DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]events.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// eventsTx implementa events.Tx sobre una *sql.Tx.
type eventsTx struct {
	tx *sql.Tx
}

func (t *eventsTx) LockChild(ctx context.Context, childID string) error {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM child WHERE id = $1 FOR UPDATE
	`, childID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return events.ErrNotFound
		}
		return err
	}
	return nil
}

func (t *eventsTx) LockEvent(ctx context.Context, id string) (events.Event, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT
			id, child_id,
			type, state,
			start_time, end_time,
			value, metadata,
			source, created_by, created_at
		FROM child_event
		WHERE id = $1
		FOR UPDATE
	`, id)

	return scanEvent(row)
}

func (t *eventsTx) FindOpenID(ctx context.Context, childID string, typ events.EventType) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM child_event
		WHERE child_id = $1 AND type = $2 AND state = 'OPEN'
		ORDER BY start_time DESC
		LIMIT 1
	`, childID, string(typ)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", events.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

func (t *eventsTx) Insert(ctx context.Context, e events.Event) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO child_event (
			id, child_id,
			type, state,
			start_time, end_time,
			value, metadata,
			source, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		e.ID,
		e.ChildID,
		string(e.Type),
		string(e.State),
		e.StartTime,
		e.EndTime,
		e.Value.Encode(),
		e.Metadata.Encode(),
		string(e.Source),
		e.CreatedBy,
		e.CreatedAt,
	)
	if err != nil && isOpenUniqueViolation(err) {
		return events.ErrOpenExists
	}
	return err
}

func (t *eventsTx) CloseIfOpen(ctx context.Context, e events.Event) (bool, error) {
	// Guard condicional: si otro commit ya cerró el evento, afecta cero filas
	// y el caller devuelve Conflict en vez de pisar el estado terminal.
	res, err := t.tx.ExecContext(ctx, `
		UPDATE child_event
		SET state = $2, end_time = $3, value = $4, metadata = $5
		WHERE id = $1 AND state = 'OPEN'
	`,
		e.ID,
		string(e.State),
		e.EndTime,
		e.Value.Encode(),
		e.Metadata.Encode(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *eventsTx) UpdateClosed(ctx context.Context, e events.Event) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE child_event
		SET type = $2, start_time = $3, end_time = $4, value = $5, metadata = $6
		WHERE id = $1 AND state = 'CLOSED'
	`,
		e.ID,
		string(e.Type),
		e.StartTime,
		e.EndTime,
		e.Value.Encode(),
		e.Metadata.Encode(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (t *eventsTx) RecordAudit(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, scope_id, actor_id,
			action, target_type, target_id,
			payload, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		entry.ID,
		entry.ScopeID,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		payload,
		entry.CreatedAt,
	)
	return err
}

func isOpenUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == openUniqueIndex
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (events.Event, error) {
	var e events.Event
	var typ, state, source string
	var end sql.NullTime
	var value, metadata []byte

	if err := row.Scan(
		&e.ID,
		&e.ChildID,
		&typ,
		&state,
		&e.StartTime,
		&end,
		&value,
		&metadata,
		&source,
		&e.CreatedBy,
		&e.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return events.Event{}, events.ErrNotFound
		}
		return events.Event{}, err
	}

	e.Type = events.EventType(typ)
	e.State = events.State(state)
	e.Source = events.Source(source)
	if end.Valid {
		v := end.Time
		e.EndTime = &v
	}

	e.Value = document.Decode(value)
	e.Metadata = document.Decode(metadata)
	return e, nil
}
