package projection

import "time"

// Entradas desnormalizadas por categoría. Son tablas de reporting puras:
// el event store sigue siendo la fuente de verdad.

type SleepEntry struct {
	ID      string
	ChildID string

	StartAt time.Time
	EndAt   *time.Time

	SleepType       string // night, nap, unknown
	SleepTypeSource string // value, auto

	EndIsEstimated       bool
	EstimationMethod     string
	EstimationConfidence int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type IntakeEntry struct {
	ID      string
	ChildID string

	StartAt time.Time
	EndAt   *time.Time

	IntakeType string // formula, breastfeed
	AmountML   *int
	AmountText string
	Side       string // breastfeed: left, right, both

	EndIsEstimated       bool
	EstimationMethod     string
	EstimationConfidence int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type DiaperEntry struct {
	ID      string
	ChildID string

	At  time.Time
	Pee bool
	Poo bool

	PooType string
	Color   string
	Texture string

	CreatedAt time.Time
}

type MedicationEntry struct {
	ID      string
	ChildID string

	At time.Time

	MedName      string
	DoseText     string
	Route        string
	IsPrescribed *bool

	CreatedAt time.Time
}

type NoteEntry struct {
	ID      string
	ChildID string

	At      time.Time
	Content string

	CreatedAt time.Time
}

type TemperatureEntry struct {
	ID      string
	ChildID string

	MeasuredAt   time.Time
	TempC        float64
	Method       string // ear, forehead, armpit, rectal
	MethodSource string // user, default

	CreatedAt time.Time
}
