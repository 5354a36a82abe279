package postgres

import (
	"context"
	"database/sql"
	"time"

	"baby-care-log/internal/domain/projection"
)

type ProjectionRepo struct {
	db *sql.DB
}

func NewProjectionRepo(db *sql.DB) *ProjectionRepo {
	return &ProjectionRepo{db: db}
}

func (r *ProjectionRepo) InsertSleep(ctx context.Context, e projection.SleepEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sleep_entry (
			id, child_id,
			start_at, end_at,
			sleep_type, sleep_type_source,
			end_is_estimated, estimation_method, estimation_confidence,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		e.ID,
		e.ChildID,
		e.StartAt,
		e.EndAt,
		e.SleepType,
		e.SleepTypeSource,
		e.EndIsEstimated,
		e.EstimationMethod,
		e.EstimationConfidence,
		e.CreatedAt,
		e.UpdatedAt,
	)
	return err
}

func (r *ProjectionRepo) ListOpenSleep(ctx context.Context, childID string, before time.Time) ([]projection.SleepEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, child_id,
			start_at, end_at,
			sleep_type, sleep_type_source,
			end_is_estimated, estimation_method, estimation_confidence,
			created_at, updated_at
		FROM sleep_entry
		WHERE child_id = $1 AND end_at IS NULL AND start_at < $2
		ORDER BY start_at ASC
	`, childID, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]projection.SleepEntry, 0)
	for rows.Next() {
		var e projection.SleepEntry
		var end sql.NullTime
		if err := rows.Scan(
			&e.ID,
			&e.ChildID,
			&e.StartAt,
			&end,
			&e.SleepType,
			&e.SleepTypeSource,
			&e.EndIsEstimated,
			&e.EstimationMethod,
			&e.EstimationConfidence,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if end.Valid {
			v := end.Time
			e.EndAt = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ProjectionRepo) CloseSleep(ctx context.Context, id string, end time.Time, method string, confidence int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sleep_entry
		SET end_at = $2,
			end_is_estimated = TRUE,
			estimation_method = $3,
			estimation_confidence = $4,
			updated_at = NOW()
		WHERE id = $1 AND end_at IS NULL
	`, id, end, method, confidence)
	return err
}

func (r *ProjectionRepo) SleepDurations(ctx context.Context, childID, sleepType string, days int) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT EXTRACT(EPOCH FROM (end_at - start_at)) / 60.0
		FROM sleep_entry
		WHERE child_id = $1
		  AND sleep_type = $2
		  AND end_at IS NOT NULL
		  AND end_is_estimated = FALSE
		  AND start_at >= NOW() - make_interval(days => $3)
	`, childID, sleepType, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDurations(rows)
}

func (r *ProjectionRepo) InsertIntake(ctx context.Context, e projection.IntakeEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO intake_entry (
			id, child_id,
			start_at, end_at,
			intake_type, amount_ml, amount_text, side,
			end_is_estimated, estimation_method, estimation_confidence,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		e.ID,
		e.ChildID,
		e.StartAt,
		e.EndAt,
		e.IntakeType,
		e.AmountML,
		e.AmountText,
		e.Side,
		e.EndIsEstimated,
		e.EstimationMethod,
		e.EstimationConfidence,
		e.CreatedAt,
		e.UpdatedAt,
	)
	return err
}

func (r *ProjectionRepo) ListOpenIntake(ctx context.Context, childID, intakeType string, before time.Time) ([]projection.IntakeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, child_id,
			start_at, end_at,
			intake_type, amount_ml, amount_text, side,
			end_is_estimated, estimation_method, estimation_confidence,
			created_at, updated_at
		FROM intake_entry
		WHERE child_id = $1 AND intake_type = $2 AND end_at IS NULL AND start_at < $3
		ORDER BY start_at ASC
	`, childID, intakeType, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]projection.IntakeEntry, 0)
	for rows.Next() {
		var e projection.IntakeEntry
		var end sql.NullTime
		var amount sql.NullInt64
		if err := rows.Scan(
			&e.ID,
			&e.ChildID,
			&e.StartAt,
			&end,
			&e.IntakeType,
			&amount,
			&e.AmountText,
			&e.Side,
			&e.EndIsEstimated,
			&e.EstimationMethod,
			&e.EstimationConfidence,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if end.Valid {
			v := end.Time
			e.EndAt = &v
		}
		if amount.Valid {
			v := int(amount.Int64)
			e.AmountML = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ProjectionRepo) CloseIntake(ctx context.Context, id string, end time.Time, method string, confidence int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE intake_entry
		SET end_at = $2,
			end_is_estimated = TRUE,
			estimation_method = $3,
			estimation_confidence = $4,
			updated_at = NOW()
		WHERE id = $1 AND end_at IS NULL
	`, id, end, method, confidence)
	return err
}

func (r *ProjectionRepo) IntakeDurations(ctx context.Context, childID, intakeType string, days int) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT EXTRACT(EPOCH FROM (end_at - start_at)) / 60.0
		FROM intake_entry
		WHERE child_id = $1
		  AND intake_type = $2
		  AND end_at IS NOT NULL
		  AND end_is_estimated = FALSE
		  AND start_at >= NOW() - make_interval(days => $3)
	`, childID, intakeType, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDurations(rows)
}

func (r *ProjectionRepo) InsertDiaper(ctx context.Context, e projection.DiaperEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO diaper_entry (
			id, child_id, at,
			pee, poo, poo_type, color, texture,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		e.ID, e.ChildID, e.At,
		e.Pee, e.Poo, e.PooType, e.Color, e.Texture,
		e.CreatedAt,
	)
	return err
}

func (r *ProjectionRepo) InsertMedication(ctx context.Context, e projection.MedicationEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO medication_entry (
			id, child_id, at,
			med_name, dose_text, route, is_prescribed,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		e.ID, e.ChildID, e.At,
		e.MedName, e.DoseText, e.Route, e.IsPrescribed,
		e.CreatedAt,
	)
	return err
}

func (r *ProjectionRepo) InsertNote(ctx context.Context, e projection.NoteEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO note_entry (
			id, child_id, at, content, created_at
		) VALUES ($1,$2,$3,$4,$5)
	`,
		e.ID, e.ChildID, e.At, e.Content, e.CreatedAt,
	)
	return err
}

func (r *ProjectionRepo) InsertTemperature(ctx context.Context, e projection.TemperatureEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO temperature_entry (
			id, child_id, measured_at,
			temp_c, method, method_source,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		e.ID, e.ChildID, e.MeasuredAt,
		e.TempC, e.Method, e.MethodSource,
		e.CreatedAt,
	)
	return err
}

func collectDurations(rows *sql.Rows) ([]float64, error) {
	out := make([]float64, 0)
	for rows.Next() {
		var minutes float64
		if err := rows.Scan(&minutes); err != nil {
			return nil, err
		}
		out = append(out, minutes)
	}
	return out, rows.Err()
}
