package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"baby-care-log/internal/domain/audit"
	"baby-care-log/internal/domain/events/document"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

type testRepo struct {
	children map[string]bool
	events   map[string]Event
	audit    []audit.Entry

	failAudit bool
}

func newTestRepo(childIDs ...string) *testRepo {
	children := make(map[string]bool)
	for _, id := range childIDs {
		children[id] = true
	}
	return &testRepo{
		children: children,
		events:   map[string]Event{},
	}
}

func (r *testRepo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	staged := make(map[string]Event, len(r.events))
	for k, v := range r.events {
		staged[k] = v
	}

	tx := &testTx{repo: r, staged: staged}
	if err := fn(tx); err != nil {
		return err
	}

	r.events = tx.staged
	r.audit = append(r.audit, tx.auditStaged...)
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Event, error) {
	e, ok := r.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (r *testRepo) ListOpen(ctx context.Context, childID string, typeFilter EventType) ([]Event, error) {
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.ChildID != childID || e.State != StateOpen {
			continue
		}
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type testTx struct {
	repo        *testRepo
	staged      map[string]Event
	auditStaged []audit.Entry
}

func (t *testTx) LockChild(ctx context.Context, childID string) error {
	if !t.repo.children[childID] {
		return ErrNotFound
	}
	return nil
}

func (t *testTx) LockEvent(ctx context.Context, id string) (Event, error) {
	e, ok := t.staged[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (t *testTx) FindOpenID(ctx context.Context, childID string, typ EventType) (string, error) {
	for _, e := range t.staged {
		if e.ChildID == childID && e.Type == typ && e.State == StateOpen {
			return e.ID, nil
		}
	}
	return "", ErrNotFound
}

func (t *testTx) Insert(ctx context.Context, e Event) error {
	if e.State == StateOpen {
		for _, existing := range t.staged {
			if existing.ChildID == e.ChildID && existing.Type == e.Type && existing.State == StateOpen {
				return ErrOpenExists
			}
		}
	}
	t.staged[e.ID] = e
	return nil
}

func (t *testTx) CloseIfOpen(ctx context.Context, e Event) (bool, error) {
	current, ok := t.staged[e.ID]
	if !ok {
		return false, ErrNotFound
	}
	if current.State != StateOpen {
		return false, nil
	}
	t.staged[e.ID] = e
	return true, nil
}

func (t *testTx) UpdateClosed(ctx context.Context, e Event) error {
	current, ok := t.staged[e.ID]
	if !ok || current.State != StateClosed {
		return ErrNotFound
	}
	t.staged[e.ID] = e
	return nil
}

func (t *testTx) RecordAudit(ctx context.Context, entry audit.Entry) error {
	if t.repo.failAudit {
		return errors.New("audit store down")
	}
	t.auditStaged = append(t.auditStaged, entry)
	return nil
}

// -------------------------
// Projector stub
// -------------------------

type projCall struct {
	childID string
	typ     EventType
	start   time.Time
	end     *time.Time
}

type stubProjector struct {
	calls []projCall
	err   error
}

func (p *stubProjector) Project(ctx context.Context, childID string, t EventType, start time.Time, end *time.Time, value document.Document) error {
	p.calls = append(p.calls, projCall{childID: childID, typ: t, start: start, end: end})
	return p.err
}

// -------------------------
// Tests
// -------------------------

var testActor = Actor{UserID: "caregiver-1", ScopeID: "owner-1"}

func fixedService(repo *testRepo, proj Projector, now time.Time) *Service {
	svc := NewService(repo, proj, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestService_CreateClosed_DefaultsEndToStart(t *testing.T) {
	repo := newTestRepo("child-1")
	proj := &stubProjector{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, proj, now)

	start := now.Add(-30 * time.Minute)
	e, err := svc.CreateClosed(context.Background(), testActor, CreateInput{
		ChildID:   "child-1",
		Type:      TypePee,
		StartTime: start,
	})
	if err != nil {
		t.Fatalf("CreateClosed error: %v", err)
	}
	if e.State != StateClosed {
		t.Fatalf("expected CLOSED, got %s", e.State)
	}
	if e.EndTime == nil || !e.EndTime.Equal(start) {
		t.Fatalf("expected end_time == start_time, got %v", e.EndTime)
	}
	if e.Source != SourceManual {
		t.Fatalf("expected default source MANUAL, got %s", e.Source)
	}
	if mode := e.Metadata.Text("entry_mode"); mode != string(EntryModeForm) {
		t.Fatalf("expected entry_mode manual_form, got %q", mode)
	}
	if len(repo.audit) != 1 || repo.audit[0].Action != AuditEventCreated {
		t.Fatalf("expected one EVENT_MANUAL_CREATED audit entry, got %#v", repo.audit)
	}
	if repo.audit[0].ScopeID != "owner-1" || repo.audit[0].ActorID != "caregiver-1" {
		t.Fatalf("audit scope/actor wrong: %#v", repo.audit[0])
	}
	if len(proj.calls) != 1 {
		t.Fatalf("expected one projection call, got %d", len(proj.calls))
	}
}

func TestService_CreateClosed_RejectsEndBeforeStart(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, now)

	start := now
	end := now.Add(-time.Minute)
	_, err := svc.CreateClosed(context.Background(), testActor, CreateInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: start,
		EndTime:   &end,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_CreateClosed_AllowsEndEqualStart(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, now)

	e, err := svc.CreateClosed(context.Background(), testActor, CreateInput{
		ChildID:   "child-1",
		Type:      TypeFormula,
		StartTime: now,
		EndTime:   &now,
	})
	if err != nil {
		t.Fatalf("CreateClosed error: %v", err)
	}
	if e.DurationMinutes() != 0 {
		t.Fatalf("expected zero duration, got %d", e.DurationMinutes())
	}
}

func TestService_Start_RejectsNonStartableType(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, now)

	_, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeMemo,
		StartTime: now,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for MEMO start, got %v", err)
	}
}

func TestService_Start_ConflictReturnsExistingID(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, now)

	first, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: now,
	})
	if err != nil {
		t.Fatalf("first Start error: %v", err)
	}

	_, err = svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: now.Add(time.Minute),
	})
	conflict, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ExistingEventID != first.ID {
		t.Fatalf("expected existing id %s, got %s", first.ID, conflict.ExistingEventID)
	}

	// Otro tipo sigue permitido.
	if _, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeFormula,
		StartTime: now,
	}); err != nil {
		t.Fatalf("Start of different type error: %v", err)
	}
}

func TestService_Start_UnknownChild(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, now)

	_, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "ghost",
		Type:      TypeSleep,
		StartTime: now,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Complete_MergesAndStampsMetadata(t *testing.T) {
	repo := newTestRepo("child-1")
	proj := &stubProjector{}
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, proj, start)

	opened, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: start,
		Value:     document.Document{"sleep_type": document.String("nap")},
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if len(proj.calls) != 0 {
		t.Fatalf("Start must not project, got %d calls", len(proj.calls))
	}

	svc.now = func() time.Time { return start.Add(45 * time.Minute) }
	completed, err := svc.Complete(context.Background(), testActor, opened.ID, CompleteInput{
		ValuePatch: document.Document{"quality": document.String("good")},
		MetadataPatch: document.Document{
			"event_state": document.String("CANCELED"), // debe descartarse
			"entry_mode":  document.String("spoofed"),  // debe pisarse
			"device":      document.String("phone"),
		},
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	if completed.State != StateClosed {
		t.Fatalf("expected CLOSED, got %s", completed.State)
	}
	if completed.EndTime == nil || !completed.EndTime.Equal(start.Add(45*time.Minute)) {
		t.Fatalf("expected end_time defaulted to now, got %v", completed.EndTime)
	}
	if completed.Value.Text("sleep_type") != "nap" || completed.Value.Text("quality") != "good" {
		t.Fatalf("expected merged value, got %#v", completed.Value)
	}
	if _, ok := completed.Metadata["event_state"]; ok {
		t.Fatalf("event_state must never survive a metadata patch")
	}
	if mode := completed.Metadata.Text("entry_mode"); mode != string(EntryModeComplete) {
		t.Fatalf("expected entry_mode manual_complete, got %q", mode)
	}
	if completed.Metadata.Text("device") != "phone" {
		t.Fatalf("expected merged metadata keys to survive")
	}
	if len(proj.calls) != 1 {
		t.Fatalf("expected projection after complete, got %d calls", len(proj.calls))
	}
}

func TestService_Complete_EndBeforeStartFails(t *testing.T) {
	repo := newTestRepo("child-1")
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, start)

	opened, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeFormula,
		StartTime: start,
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	bad := start.Add(-time.Minute)
	_, err = svc.Complete(context.Background(), testActor, opened.ID, CompleteInput{EndTime: &bad})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// end == start es válido (evento puntual).
	if _, err := svc.Complete(context.Background(), testActor, opened.ID, CompleteInput{EndTime: &start}); err != nil {
		t.Fatalf("Complete with end == start error: %v", err)
	}
}

func TestService_Complete_TerminalStatesConflict(t *testing.T) {
	repo := newTestRepo("child-1")
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, start)

	opened, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: start,
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if _, err := svc.Complete(context.Background(), testActor, opened.ID, CompleteInput{}); err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	if _, err := svc.Complete(context.Background(), testActor, opened.ID, CompleteInput{}); err == nil {
		t.Fatalf("expected conflict completing a CLOSED event")
	} else if _, ok := AsConflict(err); !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), testActor, opened.ID, ""); err == nil {
		t.Fatalf("expected conflict canceling a CLOSED event")
	} else if _, ok := AsConflict(err); !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestService_Cancel_NeverEndsBeforeStart(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	proj := &stubProjector{}
	svc := fixedService(repo, proj, now)

	// Inicio en el futuro: la cancelación inmediata no puede dejar end < start.
	futureStart := now.Add(10 * time.Minute)
	opened, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: futureStart,
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	canceled, err := svc.Cancel(context.Background(), testActor, opened.ID, "se durmió solo")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if canceled.State != StateCanceled {
		t.Fatalf("expected CANCELED, got %s", canceled.State)
	}
	if canceled.EndTime == nil || canceled.EndTime.Before(canceled.StartTime) {
		t.Fatalf("end_time must not be before start_time: %v < %v", canceled.EndTime, canceled.StartTime)
	}
	if canceled.Metadata.Text("cancel_reason") != "se durmió solo" {
		t.Fatalf("expected cancel_reason in metadata, got %#v", canceled.Metadata)
	}
	if len(proj.calls) != 0 {
		t.Fatalf("canceled events must never project, got %d calls", len(proj.calls))
	}
}

func TestService_Update_OnlyClosedEvents(t *testing.T) {
	repo := newTestRepo("child-1")
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, start)

	opened, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: start,
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	newType := TypeSleep
	_, err = svc.Update(context.Background(), testActor, opened.ID, UpdateInput{Type: &newType})
	if conflict, ok := AsConflict(err); !ok || conflict.Reason != "only closed events can be updated" {
		t.Fatalf("expected conflict on updating OPEN event, got %v", err)
	}

	canceled, err := svc.Cancel(context.Background(), testActor, opened.ID, "")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	_, err = svc.Update(context.Background(), testActor, canceled.ID, UpdateInput{Type: &newType})
	if conflict, ok := AsConflict(err); !ok || conflict.Reason != "canceled events are immutable" {
		t.Fatalf("expected conflict on updating CANCELED event, got %v", err)
	}
}

func TestService_Update_RecomputesDurationFromTimestamps(t *testing.T) {
	repo := newTestRepo("child-1")
	proj := &stubProjector{}
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(20 * time.Minute)
	svc := fixedService(repo, proj, start)

	created, err := svc.CreateClosed(context.Background(), testActor, CreateInput{
		ChildID:   "child-1",
		Type:      TypeFormula,
		StartTime: start,
		EndTime:   &end,
		Value: document.Document{
			"ml":           document.Number(120),
			"duration_min": document.Number(20),
		},
	})
	if err != nil {
		t.Fatalf("CreateClosed error: %v", err)
	}

	// Corre el fin una hora: duration_min debe derivarse de los timestamps,
	// no del valor anterior ni del patch.
	newEnd := start.Add(80 * time.Minute)
	updated, err := svc.Update(context.Background(), testActor, created.ID, UpdateInput{
		EndTime:    &newEnd,
		ValuePatch: document.Document{"duration_min": document.Number(999)},
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, ok := updated.Value.Number("duration_min")
	if !ok || got != 80 {
		t.Fatalf("expected duration_min recomputed to 80, got %v (ok=%v)", got, ok)
	}
	if ml, _ := updated.Value.Number("ml"); ml != 120 {
		t.Fatalf("expected untouched keys preserved, got ml=%v", ml)
	}
	if mode := updated.Metadata.Text("entry_mode"); mode != string(EntryModeEdit) {
		t.Fatalf("expected entry_mode manual_edit, got %q", mode)
	}
	// create + update proyectan; el total debe ser 2.
	if len(proj.calls) != 2 {
		t.Fatalf("expected 2 projection calls, got %d", len(proj.calls))
	}
}

func TestService_Update_EmptyPatchFails(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, now)

	created, err := svc.CreateClosed(context.Background(), testActor, CreateInput{
		ChildID:   "child-1",
		Type:      TypePoo,
		StartTime: now,
	})
	if err != nil {
		t.Fatalf("CreateClosed error: %v", err)
	}

	_, err = svc.Update(context.Background(), testActor, created.ID, UpdateInput{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty patch, got %v", err)
	}
}

func TestService_AuditFailureRollsBackEverything(t *testing.T) {
	repo := newTestRepo("child-1")
	repo.failAudit = true
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	proj := &stubProjector{}
	svc := fixedService(repo, proj, now)

	_, err := svc.CreateClosed(context.Background(), testActor, CreateInput{
		ChildID:   "child-1",
		Type:      TypeMedication,
		StartTime: now,
	})
	if err == nil {
		t.Fatalf("expected error when audit insert fails")
	}
	if len(repo.events) != 0 {
		t.Fatalf("event must not persist when audit fails, got %d events", len(repo.events))
	}
	if len(proj.calls) != 0 {
		t.Fatalf("projection must not run when the transaction rolls back")
	}
}

func TestService_ProjectionFailureDoesNotFailOperation(t *testing.T) {
	repo := newTestRepo("child-1")
	proj := &stubProjector{err: errors.New("summary table down")}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, proj, now)

	e, err := svc.CreateClosed(context.Background(), testActor, CreateInput{
		ChildID:   "child-1",
		Type:      TypeSleep,
		StartTime: now.Add(-time.Hour),
		EndTime:   &now,
	})
	if err != nil {
		t.Fatalf("CreateClosed must succeed despite projection failure, got %v", err)
	}
	if _, getErr := repo.GetByID(context.Background(), e.ID); getErr != nil {
		t.Fatalf("event must be persisted: %v", getErr)
	}
	if len(repo.audit) != 1 {
		t.Fatalf("audit must be committed, got %d entries", len(repo.audit))
	}
}

func TestService_ListOpen_FiltersByType(t *testing.T) {
	repo := newTestRepo("child-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := fixedService(repo, nil, now)

	if _, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID: "child-1", Type: TypeSleep, StartTime: now,
	}); err != nil {
		t.Fatalf("Start sleep error: %v", err)
	}
	if _, err := svc.Start(context.Background(), testActor, StartInput{
		ChildID: "child-1", Type: TypeFormula, StartTime: now,
	}); err != nil {
		t.Fatalf("Start formula error: %v", err)
	}

	all, err := svc.ListOpen(context.Background(), "child-1", "")
	if err != nil {
		t.Fatalf("ListOpen error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 open events, got %d", len(all))
	}

	onlySleep, err := svc.ListOpen(context.Background(), "child-1", TypeSleep)
	if err != nil {
		t.Fatalf("ListOpen filtered error: %v", err)
	}
	if len(onlySleep) != 1 || onlySleep[0].Type != TypeSleep {
		t.Fatalf("expected only the SLEEP event, got %#v", onlySleep)
	}
}
