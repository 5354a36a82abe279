package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"baby-care-log/internal/domain/audit"
	"baby-care-log/internal/domain/events/document"
	"baby-care-log/internal/platform/logger"
)

// Acciones de auditoría por operación del ciclo de vida.
const (
	AuditEventCreated   = "EVENT_MANUAL_CREATED"
	AuditEventStarted   = "EVENT_MANUAL_STARTED"
	AuditEventCompleted = "EVENT_MANUAL_COMPLETED"
	AuditEventCanceled  = "EVENT_MANUAL_CANCELED"
	AuditEventUpdated   = "EVENT_MANUAL_UPDATED"
)

// metadataStateKey es la clave heredada que algunos clientes todavía mandan
// dentro de metadata. El estado vive en la columna state: cualquier intento de
// colar una transición por el documento se descarta.
const (
	metadataEntryModeKey    = "entry_mode"
	metadataStateKey        = "event_state"
	metadataCancelReasonKey = "cancel_reason"
	valueDurationKey        = "duration_min"
)

// Projector es el fan-out post-commit hacia las tablas de resumen. Un error
// aquí nunca falla la operación primaria.
type Projector interface {
	Project(ctx context.Context, childID string, t EventType, start time.Time, end *time.Time, value document.Document) error
}

// Actor identifica quién ejecuta la operación y el scope de auditoría
// (el dueño del child).
type Actor struct {
	UserID  string
	ScopeID string
}

type Service struct {
	repo Repository
	proj Projector // puede ser nil (sin tablas de resumen)
	log  logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, proj Projector, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo: repo,
		proj: proj,
		log:  log,
		now:  time.Now,
	}
}

type CreateInput struct {
	ChildID   string
	Type      EventType
	StartTime time.Time
	EndTime   *time.Time
	Value     document.Document
	Metadata  document.Document
	Source    Source
}

// CreateClosed inserta un evento ya terminado (state=CLOSED). Sin end_time
// explícito se materializa end_time = start_time (evento puntual, duración 0).
func (s *Service) CreateClosed(ctx context.Context, actor Actor, in CreateInput) (Event, error) {
	childID := strings.TrimSpace(in.ChildID)
	if childID == "" || strings.TrimSpace(actor.UserID) == "" {
		return Event{}, ErrInvalidInput
	}
	if !in.Type.Valid() {
		return Event{}, fmt.Errorf("%w: type is invalid", ErrInvalidInput)
	}
	if in.StartTime.IsZero() {
		return Event{}, fmt.Errorf("%w: start_time is required", ErrInvalidInput)
	}

	start := in.StartTime.UTC()
	end := start
	if in.EndTime != nil {
		end = in.EndTime.UTC()
		if end.Before(start) {
			return Event{}, fmt.Errorf("%w: end_time must not be before start_time", ErrInvalidInput)
		}
	}

	source := in.Source
	if source == "" {
		source = SourceManual
	} else if _, ok := ParseSource(string(source)); !ok {
		return Event{}, fmt.Errorf("%w: source is invalid", ErrInvalidInput)
	}

	now := s.now().UTC()
	e := Event{
		ID:        uuid.NewString(),
		ChildID:   childID,
		Type:      in.Type,
		State:     StateClosed,
		StartTime: start,
		EndTime:   &end,
		Value:     orEmpty(in.Value),
		Metadata:  stampMetadata(orEmpty(in.Metadata), EntryModeForm),
		Source:    source,
		CreatedBy: actor.UserID,
		CreatedAt: now,
	}

	err := s.repo.InTx(ctx, func(tx Tx) error {
		if err := tx.Insert(ctx, e); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, s.auditEntry(actor, AuditEventCreated, e))
	})
	if err != nil {
		return Event{}, err
	}

	s.project(ctx, e)
	return e, nil
}

type StartInput struct {
	ChildID   string
	Type      EventType
	StartTime time.Time
	Value     document.Document
	Metadata  document.Document
}

// Start abre un evento en curso (state=OPEN, sin end_time). Solo tipos
// startable. Si ya hay un OPEN del mismo (child, type), devuelve Conflict con
// el id existente para que el caller decida completar en vez de reintentar.
func (s *Service) Start(ctx context.Context, actor Actor, in StartInput) (Event, error) {
	childID := strings.TrimSpace(in.ChildID)
	if childID == "" || strings.TrimSpace(actor.UserID) == "" {
		return Event{}, ErrInvalidInput
	}
	if !in.Type.Valid() {
		return Event{}, fmt.Errorf("%w: type is invalid", ErrInvalidInput)
	}
	if !in.Type.Startable() {
		return Event{}, fmt.Errorf("%w: type does not support start/complete flow", ErrInvalidInput)
	}
	if in.StartTime.IsZero() {
		return Event{}, fmt.Errorf("%w: start_time is required", ErrInvalidInput)
	}

	e := Event{
		ID:        uuid.NewString(),
		ChildID:   childID,
		Type:      in.Type,
		State:     StateOpen,
		StartTime: in.StartTime.UTC(),
		EndTime:   nil,
		Value:     orEmpty(in.Value),
		Metadata:  stampMetadata(orEmpty(in.Metadata), EntryModeStart),
		Source:    SourceManual,
		CreatedBy: actor.UserID,
		CreatedAt: s.now().UTC(),
	}

	err := s.repo.InTx(ctx, func(tx Tx) error {
		// Serializa starts concurrentes del mismo child antes de chequear el abierto.
		if err := tx.LockChild(ctx, childID); err != nil {
			return err
		}

		existingID, err := tx.FindOpenID(ctx, childID, in.Type)
		if err == nil {
			return &ConflictError{
				Reason:          "open event already exists for this type",
				ExistingEventID: existingID,
			}
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := tx.Insert(ctx, e); err != nil {
			if errors.Is(err, ErrOpenExists) {
				// El índice parcial ganó una carrera que el lock no cubrió.
				return &ConflictError{Reason: "open event already exists for this type"}
			}
			return err
		}
		return tx.RecordAudit(ctx, s.auditEntry(actor, AuditEventStarted, e))
	})
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

type CompleteInput struct {
	EndTime       *time.Time
	ValuePatch    document.Document
	MetadataPatch document.Document
}

// Complete cierra un evento OPEN. end_time omitido resuelve a now().
func (s *Service) Complete(ctx context.Context, actor Actor, eventID string, in CompleteInput) (Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" || strings.TrimSpace(actor.UserID) == "" {
		return Event{}, ErrInvalidInput
	}

	var updated Event
	err := s.repo.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if e.State != StateOpen {
			return &ConflictError{Reason: "event is not open"}
		}

		end := s.now().UTC()
		if in.EndTime != nil {
			end = in.EndTime.UTC()
		}
		if end.Before(e.StartTime) {
			return fmt.Errorf("%w: end_time must not be before start_time", ErrInvalidInput)
		}

		e.State = StateClosed
		e.EndTime = &end
		e.Value = e.Value.Merge(in.ValuePatch)
		e.Metadata = stampMetadata(e.Metadata.Merge(in.MetadataPatch), EntryModeComplete)
		e.Value = recomputeDuration(e.Value, e.StartTime, &end)

		ok, err := tx.CloseIfOpen(ctx, e)
		if err != nil {
			return err
		}
		if !ok {
			// El lock debería impedirlo; el guard condicional queda como
			// segunda red contra lost updates.
			return &ConflictError{Reason: "event completion conflict"}
		}

		updated = e
		return tx.RecordAudit(ctx, s.auditEntry(actor, AuditEventCompleted, e))
	})
	if err != nil {
		return Event{}, err
	}

	s.project(ctx, updated)
	return updated, nil
}

// Cancel descarta un evento OPEN. end_time = max(now, start_time); nunca
// queda antes del inicio. Los cancelados no se proyectan.
func (s *Service) Cancel(ctx context.Context, actor Actor, eventID, reason string) (Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" || strings.TrimSpace(actor.UserID) == "" {
		return Event{}, ErrInvalidInput
	}

	var updated Event
	err := s.repo.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if e.State != StateOpen {
			return &ConflictError{Reason: "event is not open"}
		}

		end := s.now().UTC()
		if end.Before(e.StartTime) {
			end = e.StartTime
		}

		e.State = StateCanceled
		e.EndTime = &end
		e.Metadata = stampMetadata(e.Metadata, EntryModeCancel)
		if trimmed := strings.TrimSpace(reason); trimmed != "" {
			e.Metadata[metadataCancelReasonKey] = document.String(trimmed)
		}

		ok, err := tx.CloseIfOpen(ctx, e)
		if err != nil {
			return err
		}
		if !ok {
			return &ConflictError{Reason: "event cancel conflict"}
		}

		updated = e
		return tx.RecordAudit(ctx, s.auditEntry(actor, AuditEventCanceled, e))
	})
	if err != nil {
		return Event{}, err
	}
	return updated, nil
}

type UpdateInput struct {
	Type          *EventType
	StartTime     *time.Time
	EndTime       *time.Time
	ValuePatch    document.Document
	MetadataPatch document.Document
}

func (in UpdateInput) empty() bool {
	return in.Type == nil && in.StartTime == nil && in.EndTime == nil &&
		in.ValuePatch == nil && in.MetadataPatch == nil
}

// Update edita un evento ya CLOSED. Un OPEN se completa o cancela primero,
// nunca se edita directo; un CANCELED es inmutable.
func (s *Service) Update(ctx context.Context, actor Actor, eventID string, in UpdateInput) (Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" || strings.TrimSpace(actor.UserID) == "" {
		return Event{}, ErrInvalidInput
	}
	if in.empty() {
		return Event{}, fmt.Errorf("%w: at least one field must be provided for update", ErrInvalidInput)
	}
	if in.Type != nil && !in.Type.Valid() {
		return Event{}, fmt.Errorf("%w: type is invalid", ErrInvalidInput)
	}

	var updated Event
	err := s.repo.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		switch e.State {
		case StateOpen:
			return &ConflictError{Reason: "only closed events can be updated"}
		case StateCanceled:
			return &ConflictError{Reason: "canceled events are immutable"}
		}

		if in.Type != nil {
			e.Type = *in.Type
		}
		if in.StartTime != nil {
			start := in.StartTime.UTC()
			e.StartTime = start
		}
		if in.EndTime != nil {
			end := in.EndTime.UTC()
			e.EndTime = &end
		}
		if e.EndTime == nil {
			return fmt.Errorf("%w: end_time is required for closed events", ErrInvalidInput)
		}
		if e.EndTime.Before(e.StartTime) {
			return fmt.Errorf("%w: end_time must not be before start_time", ErrInvalidInput)
		}

		e.Value = e.Value.Merge(in.ValuePatch)
		e.Metadata = stampMetadata(e.Metadata.Merge(in.MetadataPatch), EntryModeEdit)
		e.Value = recomputeDuration(e.Value, e.StartTime, e.EndTime)

		if err := tx.UpdateClosed(ctx, e); err != nil {
			return err
		}

		updated = e
		return tx.RecordAudit(ctx, s.auditEntry(actor, AuditEventUpdated, e))
	})
	if err != nil {
		return Event{}, err
	}

	s.project(ctx, updated)
	return updated, nil
}

// ListOpen devuelve los eventos OPEN del child, más recientes primero.
func (s *Service) ListOpen(ctx context.Context, childID string, typeFilter EventType) ([]Event, error) {
	childID = strings.TrimSpace(childID)
	if childID == "" {
		return nil, ErrInvalidInput
	}
	if typeFilter != "" && !typeFilter.Valid() {
		return nil, fmt.Errorf("%w: type is invalid", ErrInvalidInput)
	}
	return s.repo.ListOpen(ctx, childID, typeFilter)
}

func (s *Service) GetByID(ctx context.Context, id string) (Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Event{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) auditEntry(actor Actor, action string, e Event) audit.Entry {
	return audit.Entry{
		ID:         uuid.NewString(),
		ScopeID:    actor.ScopeID,
		ActorID:    actor.UserID,
		Action:     action,
		TargetType: "Event",
		TargetID:   e.ID,
		Payload: map[string]any{
			"child_id": e.ChildID,
			"type":     string(e.Type),
		},
		CreatedAt: s.now().UTC(),
	}
}

// project corre el fan-out después del commit. El fallo se loguea con contexto
// suficiente para reproducir y se traga: una tabla de reporting caída nunca
// bloquea la mutación primaria ya comiteada.
func (s *Service) project(ctx context.Context, e Event) {
	if s.proj == nil {
		return
	}
	if err := s.proj.Project(ctx, e.ChildID, e.Type, e.StartTime, e.EndTime, e.Value); err != nil {
		fields := map[string]any{
			"event_id":   e.ID,
			"child_id":   e.ChildID,
			"type":       string(e.Type),
			"start_time": e.StartTime.UTC().Format(time.RFC3339),
			"err":        err.Error(),
		}
		if e.EndTime != nil {
			fields["end_time"] = e.EndTime.UTC().Format(time.RFC3339)
		}
		s.log.Warn("event projection failed", fields)
	}
}

func orEmpty(d document.Document) document.Document {
	if d == nil {
		return document.Document{}
	}
	return d
}

// stampMetadata fija los campos de control después del merge genérico: el
// entry_mode lo decide siempre el servicio y el event_state jamás viaja por
// el documento.
func stampMetadata(md document.Document, mode EntryMode) document.Document {
	delete(md, metadataStateKey)
	md[metadataEntryModeKey] = document.String(string(mode))
	return md
}

// recomputeDuration reescribe duration_min desde los timestamps cuando la
// clave está presente: los timestamps mandan, la duración es derivada.
func recomputeDuration(value document.Document, start time.Time, end *time.Time) document.Document {
	if _, ok := value[valueDurationKey]; !ok {
		return value
	}
	minutes := 0
	if end != nil {
		minutes = int(end.UTC().Sub(start.UTC()).Minutes())
		if minutes < 0 {
			minutes = 0
		}
	}
	value[valueDurationKey] = document.Number(float64(minutes))
	return value
}
