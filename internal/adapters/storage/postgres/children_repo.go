package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"baby-care-log/internal/domain/children"
)

type ChildrenRepo struct {
	db *sql.DB
}

func NewChildrenRepo(db *sql.DB) *ChildrenRepo {
	return &ChildrenRepo{db: db}
}

func (r *ChildrenRepo) Create(ctx context.Context, c children.Child) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO child (
			id, owner_user_id,
			name, birth_date, sex, notes,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		c.ID,
		c.OwnerUserID,
		c.Name,
		c.BirthDate,
		string(c.Sex),
		c.Notes,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (r *ChildrenRepo) GetByID(ctx context.Context, id string) (children.Child, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return children.Child{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, owner_user_id,
			name, birth_date, sex, notes,
			created_at, updated_at
		FROM child
		WHERE id = $1
	`, id)

	return scanChild(row)
}

func (r *ChildrenRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]children.Child, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, owner_user_id,
			name, birth_date, sex, notes,
			created_at, updated_at
		FROM child
		WHERE owner_user_id = $1
		ORDER BY created_at ASC
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]children.Child, 0)
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChild(row rowScanner) (children.Child, error) {
	var c children.Child
	var sex string
	var birth sql.NullTime

	if err := row.Scan(
		&c.ID,
		&c.OwnerUserID,
		&c.Name,
		&birth,
		&sex,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return children.Child{}, ErrNotFound
		}
		return children.Child{}, err
	}

	c.Sex = children.Sex(sex)
	if birth.Valid {
		v := birth.Time
		c.BirthDate = &v
	}
	return c, nil
}
