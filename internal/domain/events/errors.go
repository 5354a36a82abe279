package events

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("event not found")

	// ErrOpenExists lo devuelve el store cuando el índice parcial de unicidad
	// rechaza un segundo OPEN para el mismo (child, type). Es la última línea
	// de defensa detrás del chequeo lógico del servicio.
	ErrOpenExists = errors.New("open event already exists")
)

// ConflictError cubre los 409: start sobre un OPEN existente, transición
// terminal repetida, update sobre un evento no-CLOSED, o un lost-update
// detectado por el update condicional.
type ConflictError struct {
	Reason          string
	ExistingEventID string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// AsConflict extrae un *ConflictError de la cadena de errores, si lo hay.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
