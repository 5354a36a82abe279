package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"baby-care-log/internal/domain/caregivers"
)

type CaregiversRepo struct {
	db *sql.DB
}

func NewCaregiversRepo(db *sql.DB) *CaregiversRepo {
	return &CaregiversRepo{db: db}
}

func (r *CaregiversRepo) Create(ctx context.Context, g caregivers.Grant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO caregiver_grant (
			id, child_id,
			owner_user_id, grantee_user_id,
			scopes, status,
			created_at, updated_at, revoked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		g.ID,
		g.ChildID,
		g.OwnerUserID,
		g.GranteeUserID,
		encodeScopes(g.Scopes),
		string(g.Status),
		g.CreatedAt,
		g.UpdatedAt,
		g.RevokedAt,
	)
	return err
}

func (r *CaregiversRepo) Update(ctx context.Context, g caregivers.Grant) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE caregiver_grant
		SET scopes = $2, status = $3, updated_at = $4, revoked_at = $5
		WHERE id = $1
	`,
		g.ID,
		encodeScopes(g.Scopes),
		string(g.Status),
		g.UpdatedAt,
		g.RevokedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CaregiversRepo) GetByID(ctx context.Context, id string) (caregivers.Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return caregivers.Grant{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, grantSelect+` WHERE id = $1`, id)
	return scanGrant(row)
}

func (r *CaregiversRepo) ListByChild(ctx context.Context, childID string) ([]caregivers.Grant, error) {
	rows, err := r.db.QueryContext(ctx, grantSelect+`
		WHERE child_id = $1
		ORDER BY created_at ASC
	`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (r *CaregiversRepo) ListByGrantee(ctx context.Context, granteeUserID string) ([]caregivers.Grant, error) {
	rows, err := r.db.QueryContext(ctx, grantSelect+`
		WHERE grantee_user_id = $1
		ORDER BY created_at ASC
	`, granteeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (r *CaregiversRepo) GetActiveGrant(ctx context.Context, childID, granteeUserID string) (caregivers.Grant, error) {
	row := r.db.QueryRowContext(ctx, grantSelect+`
		WHERE child_id = $1 AND grantee_user_id = $2 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1
	`, childID, granteeUserID)
	return scanGrant(row)
}

const grantSelect = `
	SELECT
		id, child_id,
		owner_user_id, grantee_user_id,
		scopes, status,
		created_at, updated_at, revoked_at
	FROM caregiver_grant
`

func collectGrants(rows *sql.Rows) ([]caregivers.Grant, error) {
	out := make([]caregivers.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrant(row rowScanner) (caregivers.Grant, error) {
	var g caregivers.Grant
	var scopes, status string
	var revoked sql.NullTime

	if err := row.Scan(
		&g.ID,
		&g.ChildID,
		&g.OwnerUserID,
		&g.GranteeUserID,
		&scopes,
		&status,
		&g.CreatedAt,
		&g.UpdatedAt,
		&revoked,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return caregivers.Grant{}, ErrNotFound
		}
		return caregivers.Grant{}, err
	}

	g.Scopes = decodeScopes(scopes)
	g.Status = caregivers.Status(status)
	if revoked.Valid {
		v := revoked.Time
		g.RevokedAt = &v
	}
	return g, nil
}

// Los scopes se guardan como CSV: el set es chico y el filtrado siempre pasa
// por el servicio, no por SQL.
func encodeScopes(scopes []caregivers.Scope) string {
	parts := make([]string, 0, len(scopes))
	for _, s := range scopes {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}

func decodeScopes(raw string) []caregivers.Scope {
	parts := strings.Split(raw, ",")
	out := make([]caregivers.Scope, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, caregivers.Scope(trimmed))
		}
	}
	return out
}
