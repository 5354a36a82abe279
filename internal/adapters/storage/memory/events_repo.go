package memory

import (
	"context"
	"sort"
	"sync"

	"baby-care-log/internal/domain/audit"
	"baby-care-log/internal/domain/events"
)

// EventsRepo implementa events.Repository en memoria. InTx serializa todas
// las transacciones con un mutex y trabaja sobre una copia staged del mapa:
// si fn falla (auditoría incluida) la copia se descarta y nada queda escrito,
// el mismo contrato de rollback que Postgres.
type EventsRepo struct {
	mu       sync.Mutex
	children *ChildrenRepo
	events   map[string]events.Event
	auditLog []audit.Entry
}

func NewEventsRepo(children *ChildrenRepo) *EventsRepo {
	return &EventsRepo{
		children: children,
		events:   make(map[string]events.Event),
	}
}

func (r *EventsRepo) InTx(ctx context.Context, fn func(tx events.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]events.Event, len(r.events))
	for k, v := range r.events {
		staged[k] = cloneEvent(v)
	}

	tx := &eventsTx{
		repo:   r,
		staged: staged,
	}
	if err := fn(tx); err != nil {
		return err
	}

	r.events = tx.staged
	r.auditLog = append(r.auditLog, tx.auditStaged...)
	return nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return events.Event{}, events.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (r *EventsRepo) ListOpen(ctx context.Context, childID string, typeFilter events.EventType) ([]events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.Event, 0)
	for _, e := range r.events {
		if e.ChildID != childID || e.State != events.StateOpen {
			continue
		}
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		out = append(out, cloneEvent(e))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// AuditLog devuelve una copia de las entradas comiteadas. Solo para tests.
func (r *EventsRepo) AuditLog() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]audit.Entry, len(r.auditLog))
	copy(out, r.auditLog)
	return out
}

type eventsTx struct {
	repo        *EventsRepo
	staged      map[string]events.Event
	auditStaged []audit.Entry
}

func (t *eventsTx) LockChild(ctx context.Context, childID string) error {
	// El mutex del repo ya serializa; solo se valida existencia.
	if t.repo.children != nil && !t.repo.children.Exists(childID) {
		return events.ErrNotFound
	}
	return nil
}

func (t *eventsTx) LockEvent(ctx context.Context, id string) (events.Event, error) {
	e, ok := t.staged[id]
	if !ok {
		return events.Event{}, events.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (t *eventsTx) FindOpenID(ctx context.Context, childID string, typ events.EventType) (string, error) {
	for _, e := range t.staged {
		if e.ChildID == childID && e.Type == typ && e.State == events.StateOpen {
			return e.ID, nil
		}
	}
	return "", events.ErrNotFound
}

func (t *eventsTx) Insert(ctx context.Context, e events.Event) error {
	if e.State == events.StateOpen {
		// Emula el índice parcial de unicidad de Postgres.
		for _, existing := range t.staged {
			if existing.ChildID == e.ChildID && existing.Type == e.Type && existing.State == events.StateOpen {
				return events.ErrOpenExists
			}
		}
	}
	t.staged[e.ID] = cloneEvent(e)
	return nil
}

func (t *eventsTx) CloseIfOpen(ctx context.Context, e events.Event) (bool, error) {
	current, ok := t.staged[e.ID]
	if !ok {
		return false, events.ErrNotFound
	}
	if current.State != events.StateOpen {
		return false, nil
	}
	t.staged[e.ID] = cloneEvent(e)
	return true, nil
}

func (t *eventsTx) UpdateClosed(ctx context.Context, e events.Event) error {
	current, ok := t.staged[e.ID]
	if !ok {
		return events.ErrNotFound
	}
	if current.State != events.StateClosed {
		return events.ErrNotFound
	}
	t.staged[e.ID] = cloneEvent(e)
	return nil
}

func (t *eventsTx) RecordAudit(ctx context.Context, entry audit.Entry) error {
	t.auditStaged = append(t.auditStaged, entry)
	return nil
}

// cloneEvent corta el aliasing de los documentos: Postgres decodifica columnas
// JSONB frescas en cada lectura, así que el adapter en memoria tiene que
// copiar en profundidad para dar el mismo contrato (una mutación in-place
// sobre un evento leído nunca toca el estado comiteado hasta el commit).
func cloneEvent(e events.Event) events.Event {
	if e.Value != nil {
		e.Value = e.Value.Clone()
	}
	if e.Metadata != nil {
		e.Metadata = e.Metadata.Clone()
	}
	return e
}
