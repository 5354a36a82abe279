package children

import "time"

// Sex define el sexo registrado del child.
// @Enum male, female, unknown
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// Child es el sujeto de los eventos de cuidado. Su fila es la que se bloquea
// (FOR UPDATE) para serializar starts concurrentes del mismo child.
type Child struct {
	ID          string
	OwnerUserID string

	Name      string
	BirthDate *time.Time
	Sex       Sex

	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}
