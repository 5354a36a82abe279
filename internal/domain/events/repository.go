package events

import (
	"context"

	"baby-care-log/internal/domain/audit"
)

// Repository es la unidad de trabajo del event store. InTx abre una
// transacción, ejecuta fn y comitea solo si fn devuelve nil; cualquier error
// (incluida una auditoría fallida) revierte todo lo escrito.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetByID(ctx context.Context, id string) (Event, error)

	// ListOpen devuelve los eventos OPEN del child, startTime descendente.
	// typeFilter vacío lista todos los tipos.
	ListOpen(ctx context.Context, childID string, typeFilter EventType) ([]Event, error)
}

// Tx expone las operaciones disponibles dentro de una transacción.
type Tx interface {
	// LockChild toma el row lock sobre el registro del child, serializando
	// los starts concurrentes del mismo sujeto. ErrNotFound si no existe.
	LockChild(ctx context.Context, childID string) error

	// LockEvent carga y bloquea el evento. ErrNotFound si no existe.
	LockEvent(ctx context.Context, id string) (Event, error)

	// FindOpenID busca el evento OPEN de (child, type). ErrNotFound si no hay.
	FindOpenID(ctx context.Context, childID string, t EventType) (string, error)

	// Insert crea la fila. Un OPEN duplicado contra el índice parcial de
	// unicidad devuelve ErrOpenExists.
	Insert(ctx context.Context, e Event) error

	// CloseIfOpen aplica la transición terminal con el guard condicional
	// WHERE state = 'OPEN'. Devuelve false si afectó cero filas.
	CloseIfOpen(ctx context.Context, e Event) (bool, error)

	// UpdateClosed reescribe los campos mutables de un evento ya CLOSED.
	UpdateClosed(ctx context.Context, e Event) error

	// La auditoría se inserta dentro de la misma transacción.
	audit.Recorder
}
