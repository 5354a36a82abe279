package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema crea las tablas e índices si no existen. Es idempotente: se
// corre en cada arranque.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS child (
			id UUID PRIMARY KEY,
			owner_user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			birth_date DATE,
			sex TEXT NOT NULL DEFAULT 'unknown',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS child_owner_idx ON child (owner_user_id)`,

		`CREATE TABLE IF NOT EXISTS caregiver_grant (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL REFERENCES child(id),
			owner_user_id TEXT NOT NULL,
			grantee_user_id TEXT NOT NULL,
			scopes TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS caregiver_grant_child_idx ON caregiver_grant (child_id)`,
		`CREATE INDEX IF NOT EXISTS caregiver_grant_grantee_idx ON caregiver_grant (grantee_user_id)`,

		`CREATE TABLE IF NOT EXISTS child_event (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL REFERENCES child(id),
			type TEXT NOT NULL,
			state TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			value JSONB NOT NULL DEFAULT '{}'::jsonb,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			source TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT child_event_closed_has_end CHECK (state = 'OPEN' OR end_time IS NOT NULL)
		)`,
		// A lo sumo un OPEN por (child, type): última línea de defensa detrás
		// del chequeo con row lock.
		`CREATE UNIQUE INDEX IF NOT EXISTS child_event_open_unique
			ON child_event (child_id, type) WHERE state = 'OPEN'`,
		`CREATE INDEX IF NOT EXISTS child_event_lookup_idx
			ON child_event (child_id, type, state, start_time DESC)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY,
			scope_id TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS audit_log_scope_idx ON audit_log (scope_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS sleep_entry (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL,
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ,
			sleep_type TEXT NOT NULL,
			sleep_type_source TEXT NOT NULL,
			end_is_estimated BOOLEAN NOT NULL DEFAULT FALSE,
			estimation_method TEXT NOT NULL DEFAULT '',
			estimation_confidence INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sleep_entry_child_idx ON sleep_entry (child_id, start_at DESC)`,

		`CREATE TABLE IF NOT EXISTS intake_entry (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL,
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ,
			intake_type TEXT NOT NULL,
			amount_ml INT,
			amount_text TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL DEFAULT '',
			end_is_estimated BOOLEAN NOT NULL DEFAULT FALSE,
			estimation_method TEXT NOT NULL DEFAULT '',
			estimation_confidence INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS intake_entry_child_idx ON intake_entry (child_id, start_at DESC)`,

		`CREATE TABLE IF NOT EXISTS diaper_entry (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			pee BOOLEAN NOT NULL,
			poo BOOLEAN NOT NULL,
			poo_type TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			texture TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS diaper_entry_child_idx ON diaper_entry (child_id, at DESC)`,

		`CREATE TABLE IF NOT EXISTS medication_entry (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			med_name TEXT NOT NULL,
			dose_text TEXT NOT NULL DEFAULT '',
			route TEXT NOT NULL DEFAULT '',
			is_prescribed BOOLEAN,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS medication_entry_child_idx ON medication_entry (child_id, at DESC)`,

		`CREATE TABLE IF NOT EXISTS note_entry (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS note_entry_child_idx ON note_entry (child_id, at DESC)`,

		`CREATE TABLE IF NOT EXISTS temperature_entry (
			id UUID PRIMARY KEY,
			child_id UUID NOT NULL,
			measured_at TIMESTAMPTZ NOT NULL,
			temp_c DOUBLE PRECISION NOT NULL,
			method TEXT NOT NULL,
			method_source TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS temperature_entry_child_idx ON temperature_entry (child_id, measured_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
