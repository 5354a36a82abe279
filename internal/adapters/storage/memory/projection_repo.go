package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"baby-care-log/internal/domain/projection"
)

// ProjectionRepo guarda las tablas de resumen en memoria. Sirve para dev y
// para los tests del motor de proyección.
type ProjectionRepo struct {
	mu sync.RWMutex

	sleep        map[string]projection.SleepEntry
	intake       map[string]projection.IntakeEntry
	diapers      []projection.DiaperEntry
	medications  []projection.MedicationEntry
	notes        []projection.NoteEntry
	temperatures []projection.TemperatureEntry

	now func() time.Time
}

func NewProjectionRepo() *ProjectionRepo {
	return &ProjectionRepo{
		sleep:  make(map[string]projection.SleepEntry),
		intake: make(map[string]projection.IntakeEntry),
		now:    time.Now,
	}
}

func (r *ProjectionRepo) InsertSleep(ctx context.Context, e projection.SleepEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleep[e.ID] = e
	return nil
}

func (r *ProjectionRepo) ListOpenSleep(ctx context.Context, childID string, before time.Time) ([]projection.SleepEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.SleepEntry, 0)
	for _, e := range r.sleep {
		if e.ChildID == childID && e.EndAt == nil && e.StartAt.Before(before) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out, nil
}

func (r *ProjectionRepo) CloseSleep(ctx context.Context, id string, end time.Time, method string, confidence int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sleep[id]
	if !ok || e.EndAt != nil {
		return nil
	}
	e.EndAt = &end
	e.EndIsEstimated = true
	e.EstimationMethod = method
	e.EstimationConfidence = confidence
	e.UpdatedAt = r.now().UTC()
	r.sleep[id] = e
	return nil
}

func (r *ProjectionRepo) SleepDurations(ctx context.Context, childID, sleepType string, days int) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().UTC().AddDate(0, 0, -days)
	out := make([]float64, 0)
	for _, e := range r.sleep {
		if e.ChildID != childID || e.SleepType != sleepType {
			continue
		}
		if e.EndAt == nil || e.EndIsEstimated || e.StartAt.Before(cutoff) {
			continue
		}
		out = append(out, e.EndAt.Sub(e.StartAt).Minutes())
	}
	return out, nil
}

func (r *ProjectionRepo) InsertIntake(ctx context.Context, e projection.IntakeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intake[e.ID] = e
	return nil
}

func (r *ProjectionRepo) ListOpenIntake(ctx context.Context, childID, intakeType string, before time.Time) ([]projection.IntakeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.IntakeEntry, 0)
	for _, e := range r.intake {
		if e.ChildID == childID && e.IntakeType == intakeType && e.EndAt == nil && e.StartAt.Before(before) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out, nil
}

func (r *ProjectionRepo) CloseIntake(ctx context.Context, id string, end time.Time, method string, confidence int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.intake[id]
	if !ok || e.EndAt != nil {
		return nil
	}
	e.EndAt = &end
	e.EndIsEstimated = true
	e.EstimationMethod = method
	e.EstimationConfidence = confidence
	e.UpdatedAt = r.now().UTC()
	r.intake[id] = e
	return nil
}

func (r *ProjectionRepo) IntakeDurations(ctx context.Context, childID, intakeType string, days int) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().UTC().AddDate(0, 0, -days)
	out := make([]float64, 0)
	for _, e := range r.intake {
		if e.ChildID != childID || e.IntakeType != intakeType {
			continue
		}
		if e.EndAt == nil || e.EndIsEstimated || e.StartAt.Before(cutoff) {
			continue
		}
		out = append(out, e.EndAt.Sub(e.StartAt).Minutes())
	}
	return out, nil
}

func (r *ProjectionRepo) InsertDiaper(ctx context.Context, e projection.DiaperEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diapers = append(r.diapers, e)
	return nil
}

func (r *ProjectionRepo) InsertMedication(ctx context.Context, e projection.MedicationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.medications = append(r.medications, e)
	return nil
}

func (r *ProjectionRepo) InsertNote(ctx context.Context, e projection.NoteEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, e)
	return nil
}

func (r *ProjectionRepo) InsertTemperature(ctx context.Context, e projection.TemperatureEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.temperatures = append(r.temperatures, e)
	return nil
}

// Accessors para tests.

func (r *ProjectionRepo) SleepEntries() []projection.SleepEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.SleepEntry, 0, len(r.sleep))
	for _, e := range r.sleep {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out
}

func (r *ProjectionRepo) IntakeEntries() []projection.IntakeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.IntakeEntry, 0, len(r.intake))
	for _, e := range r.intake {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out
}

func (r *ProjectionRepo) DiaperEntries() []projection.DiaperEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.DiaperEntry, len(r.diapers))
	copy(out, r.diapers)
	return out
}

func (r *ProjectionRepo) MedicationEntries() []projection.MedicationEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.MedicationEntry, len(r.medications))
	copy(out, r.medications)
	return out
}

func (r *ProjectionRepo) NoteEntries() []projection.NoteEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.NoteEntry, len(r.notes))
	copy(out, r.notes)
	return out
}

func (r *ProjectionRepo) TemperatureEntries() []projection.TemperatureEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]projection.TemperatureEntry, len(r.temperatures))
	copy(out, r.temperatures)
	return out
}
