package projection

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"baby-care-log/internal/domain/events"
	"baby-care-log/internal/domain/events/document"
	"baby-care-log/internal/platform/logger"
)

// Engine implementa events.Projector: traduce un evento comiteado a su tabla
// de resumen por categoría. Corre fuera de la transacción primaria.
type Engine struct {
	repo Repository
	log  logger.Logger
	now  func() time.Time
}

func NewEngine(repo Repository, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (e *Engine) Project(ctx context.Context, childID string, t events.EventType, start time.Time, end *time.Time, value document.Document) error {
	if value == nil {
		value = document.Document{}
	}

	startUTC := start.UTC()
	var endUTC *time.Time
	if end != nil {
		v := end.UTC()
		endUTC = &v
	}

	switch t {
	case events.TypeSleep:
		return e.projectSleep(ctx, childID, startUTC, endUTC, value)
	case events.TypeFormula, events.TypeBreastfeed:
		return e.projectIntake(ctx, childID, strings.ToLower(string(t)), startUTC, endUTC, value)
	case events.TypePee, events.TypePoo:
		return e.repo.InsertDiaper(ctx, DiaperEntry{
			ID:        uuid.NewString(),
			ChildID:   childID,
			At:        startUTC,
			Pee:       t == events.TypePee,
			Poo:       t == events.TypePoo,
			PooType:   strings.ToLower(value.Text("poo_type")),
			Color:     strings.ToLower(value.Text("color")),
			Texture:   strings.ToLower(value.Text("texture")),
			CreatedAt: e.now().UTC(),
		})
	case events.TypeMedication:
		return e.projectMedication(ctx, childID, startUTC, value)
	case events.TypeMemo:
		content := value.Text("memo", "note", "text")
		if content == "" {
			content = "memo"
		}
		return e.repo.InsertNote(ctx, NoteEntry{
			ID:        uuid.NewString(),
			ChildID:   childID,
			At:        startUTC,
			Content:   content,
			CreatedAt: e.now().UTC(),
		})
	case events.TypeSymptom:
		return e.projectTemperature(ctx, childID, startUTC, value)
	}

	// GROWTH (y futuros tipos sin tabla de resumen): no-op.
	return nil
}

// sleepTypeFromRule clasifica por hora de inicio: noche entre 18:00 y 06:00;
// más de 4h con fin conocido no califica como siesta.
func sleepTypeFromRule(start time.Time, end *time.Time) string {
	hour := start.UTC().Hour()
	if hour >= 18 || hour < 6 {
		return "night"
	}
	if end != nil && end.UTC().Sub(start.UTC()).Hours() >= 4 {
		return "unknown"
	}
	return "nap"
}

func (e *Engine) projectSleep(ctx context.Context, childID string, start time.Time, end *time.Time, value document.Document) error {
	if err := e.closeStaleSleep(ctx, childID, start); err != nil {
		return err
	}

	sleepType := strings.ToLower(value.Text("sleep_type"))
	sleepTypeSource := "value"
	switch sleepType {
	case "night", "nap", "unknown":
	default:
		sleepType = sleepTypeFromRule(start, end)
		sleepTypeSource = "auto"
	}

	now := e.now().UTC()
	return e.repo.InsertSleep(ctx, SleepEntry{
		ID:              uuid.NewString(),
		ChildID:         childID,
		StartAt:         start,
		EndAt:           end,
		SleepType:       sleepType,
		SleepTypeSource: sleepTypeSource,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (e *Engine) projectIntake(ctx context.Context, childID, intakeType string, start time.Time, end *time.Time, value document.Document) error {
	if err := e.closeStaleIntake(ctx, childID, intakeType, start); err != nil {
		return err
	}

	var amountML *int
	if raw, ok := value.Number("ml", "amount_ml", "volume_ml"); ok {
		if ml := int(math.Round(raw)); ml > 0 {
			amountML = &ml
		}
	}
	amountText := value.Text("amount_text", "amount")

	now := e.now().UTC()
	return e.repo.InsertIntake(ctx, IntakeEntry{
		ID:         uuid.NewString(),
		ChildID:    childID,
		StartAt:    start,
		EndAt:      end,
		IntakeType: intakeType,
		AmountML:   amountML,
		AmountText: amountText,
		Side:       strings.ToLower(value.Text("side")),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (e *Engine) projectMedication(ctx context.Context, childID string, at time.Time, value document.Document) error {
	medName := value.Text("name", "med_name")
	if medName == "" {
		medName = "unspecified"
	}

	var prescribed *bool
	if flag, ok := value.Flag("is_prescribed"); ok {
		prescribed = &flag
	}

	return e.repo.InsertMedication(ctx, MedicationEntry{
		ID:           uuid.NewString(),
		ChildID:      childID,
		At:           at,
		MedName:      medName,
		DoseText:     value.Text("dose_text", "dose"),
		Route:        strings.ToLower(value.Text("route")),
		IsPrescribed: prescribed,
		CreatedAt:    e.now().UTC(),
	})
}

func (e *Engine) projectTemperature(ctx context.Context, childID string, at time.Time, value document.Document) error {
	tempC, ok := value.Number("temp_c", "temperature_c", "temp")
	if !ok || tempC <= 0 {
		// síntoma sin temperatura: nada que resumir
		return nil
	}

	method := strings.ToLower(value.Text("method"))
	methodSource := "user"
	if method == "" {
		method = "ear"
		methodSource = "default"
	}

	return e.repo.InsertTemperature(ctx, TemperatureEntry{
		ID:           uuid.NewString(),
		ChildID:      childID,
		MeasuredAt:   at,
		TempC:        tempC,
		Method:       method,
		MethodSource: methodSource,
		CreatedAt:    e.now().UTC(),
	})
}

// closeStaleSleep cierra entradas de sueño que quedaron abiertas antes del
// nuevo inicio, estimando el fin con la mediana histórica.
func (e *Engine) closeStaleSleep(ctx context.Context, childID string, nextStart time.Time) error {
	open, err := e.repo.ListOpenSleep(ctx, childID, nextStart)
	if err != nil {
		return err
	}

	for _, entry := range open {
		durationMin, method, confidence, err := e.estimateSleepDuration(ctx, childID, entry.SleepType)
		if err != nil {
			return err
		}
		end := clampEstimatedEnd(entry.StartAt, durationMin, nextStart)
		if err := e.repo.CloseSleep(ctx, entry.ID, end, method, confidence); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) closeStaleIntake(ctx context.Context, childID, intakeType string, nextStart time.Time) error {
	open, err := e.repo.ListOpenIntake(ctx, childID, intakeType, nextStart)
	if err != nil {
		return err
	}

	for _, entry := range open {
		durationMin, method, confidence, err := e.estimateIntakeDuration(ctx, childID, intakeType)
		if err != nil {
			return err
		}
		end := clampEstimatedEnd(entry.StartAt, durationMin, nextStart)
		if err := e.repo.CloseIntake(ctx, entry.ID, end, method, confidence); err != nil {
			return err
		}
	}
	return nil
}

// clampEstimatedEnd: nunca más allá del siguiente inicio, nunca en o antes
// del propio inicio (mínimo un minuto).
func clampEstimatedEnd(start time.Time, durationMin int, nextStart time.Time) time.Time {
	end := start.UTC().Add(time.Duration(durationMin) * time.Minute)
	if end.After(nextStart.UTC()) {
		end = nextStart.UTC()
	}
	if !end.After(start.UTC()) {
		end = start.UTC().Add(1 * time.Minute)
	}
	return end
}

// estimateSleepDuration: mediana de 14 días, luego 7, luego default fijo.
func (e *Engine) estimateSleepDuration(ctx context.Context, childID, sleepType string) (int, string, int, error) {
	median14, err := e.medianSleepMinutes(ctx, childID, sleepType, 14)
	if err != nil {
		return 0, "", 0, err
	}
	if median14 > 0 {
		return clampSleepDuration(sleepType, median14), "avg_duration_last_14d", 80, nil
	}

	median7, err := e.medianSleepMinutes(ctx, childID, sleepType, 7)
	if err != nil {
		return 0, "", 0, err
	}
	if median7 > 0 {
		return clampSleepDuration(sleepType, median7), "avg_duration_last_7d", 70, nil
	}

	switch sleepType {
	case "night":
		return 480, "fallback_default_8h", 50, nil
	case "nap":
		return 45, "fallback_default_45m", 50, nil
	default:
		return 120, "fallback_default_2h", 45, nil
	}
}

func (e *Engine) estimateIntakeDuration(ctx context.Context, childID, intakeType string) (int, string, int, error) {
	median14, err := e.medianIntakeMinutes(ctx, childID, intakeType, 14)
	if err != nil {
		return 0, "", 0, err
	}
	if median14 > 0 {
		return clampIntakeDuration(median14), "avg_duration_last_14d", 80, nil
	}

	median7, err := e.medianIntakeMinutes(ctx, childID, intakeType, 7)
	if err != nil {
		return 0, "", 0, err
	}
	if median7 > 0 {
		return clampIntakeDuration(median7), "avg_duration_last_7d", 70, nil
	}

	return 15, "fallback_default_15m", 50, nil
}

func (e *Engine) medianSleepMinutes(ctx context.Context, childID, sleepType string, days int) (int, error) {
	values, err := e.repo.SleepDurations(ctx, childID, sleepType, days)
	if err != nil {
		return 0, err
	}
	return medianMinutes(values), nil
}

func (e *Engine) medianIntakeMinutes(ctx context.Context, childID, intakeType string, days int) (int, error) {
	values, err := e.repo.IntakeDurations(ctx, childID, intakeType, days)
	if err != nil {
		return 0, err
	}
	return medianMinutes(values), nil
}

func medianMinutes(raw []float64) int {
	values := make([]int, 0, len(raw))
	for _, minutes := range raw {
		if minutes > 0 {
			values = append(values, int(math.Round(minutes)))
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Ints(values)
	middle := len(values) / 2
	if len(values)%2 == 1 {
		return values[middle]
	}
	return int(math.Round(float64(values[middle-1]+values[middle]) / 2.0))
}

func clampSleepDuration(sleepType string, durationMin int) int {
	switch sleepType {
	case "night":
		return clampInt(durationMin, 120, 840)
	case "nap":
		return clampInt(durationMin, 10, 180)
	default:
		return clampInt(durationMin, 15, 480)
	}
}

func clampIntakeDuration(durationMin int) int {
	return clampInt(durationMin, 3, 60)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
