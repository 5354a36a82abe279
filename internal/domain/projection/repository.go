package projection

import (
	"context"
	"time"
)

// Repository escribe en las tablas de resumen con su propia conexión,
// fuera de la transacción del event store: el fan-out es autónomo y puede
// fallar o reintentarse sin tocar la escritura primaria.
type Repository interface {
	InsertSleep(ctx context.Context, e SleepEntry) error
	// ListOpenSleep devuelve las entradas de sueño sin cierre iniciadas antes
	// de before, más antiguas primero.
	ListOpenSleep(ctx context.Context, childID string, before time.Time) ([]SleepEntry, error)
	CloseSleep(ctx context.Context, id string, end time.Time, method string, confidence int) error
	// SleepDurations lista duraciones (minutos) de entradas cerradas de los
	// últimos days días para el sleepType dado.
	SleepDurations(ctx context.Context, childID, sleepType string, days int) ([]float64, error)

	InsertIntake(ctx context.Context, e IntakeEntry) error
	ListOpenIntake(ctx context.Context, childID, intakeType string, before time.Time) ([]IntakeEntry, error)
	CloseIntake(ctx context.Context, id string, end time.Time, method string, confidence int) error
	IntakeDurations(ctx context.Context, childID, intakeType string, days int) ([]float64, error)

	InsertDiaper(ctx context.Context, e DiaperEntry) error
	InsertMedication(ctx context.Context, e MedicationEntry) error
	InsertNote(ctx context.Context, e NoteEntry) error
	InsertTemperature(ctx context.Context, e TemperatureEntry) error
}
