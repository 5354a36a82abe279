package events

import (
	"time"

	"baby-care-log/internal/domain/events/document"
)

// Event es la entidad central: un registro de cuidado por fila.
// id, childId, createdBy, createdAt y source son inmutables tras la creación.
type Event struct {
	ID      string
	ChildID string

	Type  EventType
	State State

	StartTime time.Time  // siempre UTC
	EndTime   *time.Time // nil mientras el evento está OPEN

	Value    document.Document
	Metadata document.Document

	Source    Source
	CreatedBy string
	CreatedAt time.Time
}

// DurationMinutes devuelve la duración derivada de los timestamps. Los
// timestamps son la fuente de verdad; cualquier duración dentro de Value es
// solo conveniencia de display.
func (e Event) DurationMinutes() int {
	if e.EndTime == nil {
		return 0
	}
	minutes := int(e.EndTime.UTC().Sub(e.StartTime.UTC()).Minutes())
	if minutes < 0 {
		return 0
	}
	return minutes
}
