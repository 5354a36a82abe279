package audit

import (
	"context"
	"time"
)

// Entry es un registro inmutable de una operación mutante. Se inserta en la
// misma transacción que la mutación que describe; si la inserción falla, la
// transacción completa debe revertirse.
type Entry struct {
	ID         string
	ScopeID    string // dueño del child (scope del hogar)
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Payload    map[string]any
	CreatedAt  time.Time
}

// Recorder persiste entradas de auditoría. Las implementaciones comparten la
// transacción del caller; nunca actualizan ni borran.
type Recorder interface {
	RecordAudit(ctx context.Context, entry Entry) error
}
