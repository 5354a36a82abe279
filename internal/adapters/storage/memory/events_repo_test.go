package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"baby-care-log/internal/domain/audit"
	"baby-care-log/internal/domain/children"
	"baby-care-log/internal/domain/events"
	"baby-care-log/internal/domain/events/document"
)

func seedChild(t *testing.T, repo *ChildrenRepo, id string) {
	t.Helper()
	err := repo.Create(context.Background(), children.Child{
		ID:          id,
		OwnerUserID: "owner-1",
		Name:        "Test",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("seed child: %v", err)
	}
}

// Muchos starts concurrentes del mismo (child, type): exactamente uno gana.
func TestEventsRepo_ConcurrentStarts_OnlyOneOpenWins(t *testing.T) {
	childrenRepo := NewChildrenRepo()
	seedChild(t, childrenRepo, "child-1")
	repo := NewEventsRepo(childrenRepo)

	const workers = 32
	var wg sync.WaitGroup
	results := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = repo.InTx(context.Background(), func(tx events.Tx) error {
				if err := tx.LockChild(context.Background(), "child-1"); err != nil {
					return err
				}
				if _, err := tx.FindOpenID(context.Background(), "child-1", events.TypeSleep); err == nil {
					return &events.ConflictError{Reason: "open event already exists for this type"}
				}
				e := events.Event{
					ID:        fmt.Sprintf("evt-%d", n),
					ChildID:   "child-1",
					Type:      events.TypeSleep,
					State:     events.StateOpen,
					StartTime: time.Now().UTC(),
					CreatedBy: "caregiver-1",
					CreatedAt: time.Now().UTC(),
				}
				if err := tx.Insert(context.Background(), e); err != nil {
					return err
				}
				return tx.RecordAudit(context.Background(), audit.Entry{
					ID:       fmt.Sprintf("audit-%d", n),
					ScopeID:  "owner-1",
					ActorID:  "caregiver-1",
					Action:   "EVENT_MANUAL_STARTED",
					TargetID: e.ID,
				})
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var conflict *events.ConflictError
		if !errors.As(err, &conflict) && !errors.Is(err, events.ErrOpenExists) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	open, err := repo.ListOpen(context.Background(), "child-1", events.TypeSleep)
	if err != nil {
		t.Fatalf("ListOpen error: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected exactly one OPEN event, got %d", len(open))
	}
	if got := len(repo.AuditLog()); got != 1 {
		t.Fatalf("expected one committed audit entry, got %d", got)
	}
}

// El contrato de rollback: si fn falla después de Insert, nada queda escrito.
func TestEventsRepo_InTx_RollsBackStagedWrites(t *testing.T) {
	childrenRepo := NewChildrenRepo()
	seedChild(t, childrenRepo, "child-1")
	repo := NewEventsRepo(childrenRepo)

	boom := errors.New("audit store down")
	err := repo.InTx(context.Background(), func(tx events.Tx) error {
		e := events.Event{
			ID:        "evt-1",
			ChildID:   "child-1",
			Type:      events.TypePee,
			State:     events.StateClosed,
			StartTime: time.Now().UTC(),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Insert(context.Background(), e); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}

	if _, err := repo.GetByID(context.Background(), "evt-1"); !errors.Is(err, events.ErrNotFound) {
		t.Fatalf("staged insert must be discarded, got %v", err)
	}
	if got := len(repo.AuditLog()); got != 0 {
		t.Fatalf("expected no audit entries after rollback, got %d", got)
	}
}

// Una mutación in-place sobre el documento de un evento bloqueado no puede
// filtrarse al estado comiteado si la transacción se revierte.
func TestEventsRepo_InTx_RollsBackInPlaceDocumentMutation(t *testing.T) {
	childrenRepo := NewChildrenRepo()
	seedChild(t, childrenRepo, "child-1")
	repo := NewEventsRepo(childrenRepo)

	err := repo.InTx(context.Background(), func(tx events.Tx) error {
		return tx.Insert(context.Background(), events.Event{
			ID:        "evt-1",
			ChildID:   "child-1",
			Type:      events.TypeSleep,
			State:     events.StateOpen,
			StartTime: time.Now().UTC(),
			Metadata:  document.Document{"entry_mode": document.String("manual_start")},
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}

	boom := errors.New("audit store down")
	err = repo.InTx(context.Background(), func(tx events.Tx) error {
		e, err := tx.LockEvent(context.Background(), "evt-1")
		if err != nil {
			return err
		}
		// Mismo patrón que una cancelación: muta el mapa del evento
		// bloqueado antes de que la transacción falle.
		delete(e.Metadata, "entry_mode")
		e.Metadata["entry_mode"] = document.String("manual_cancel")
		e.Metadata["cancel_reason"] = document.String("oops")
		e.State = events.StateCanceled
		if _, err := tx.CloseIfOpen(context.Background(), e); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}

	got, err := repo.GetByID(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.State != events.StateOpen {
		t.Fatalf("rolled-back transition leaked, state=%s", got.State)
	}
	if mode := got.Metadata.Text("entry_mode"); mode != "manual_start" {
		t.Fatalf("rolled-back mutation leaked into committed state: entry_mode=%q", mode)
	}
	if _, ok := got.Metadata["cancel_reason"]; ok {
		t.Fatalf("rolled-back mutation leaked into committed state: cancel_reason present")
	}
}

func TestEventsRepo_CloseIfOpen_GuardsTerminalStates(t *testing.T) {
	childrenRepo := NewChildrenRepo()
	seedChild(t, childrenRepo, "child-1")
	repo := NewEventsRepo(childrenRepo)

	start := time.Now().UTC()
	end := start.Add(10 * time.Minute)

	err := repo.InTx(context.Background(), func(tx events.Tx) error {
		return tx.Insert(context.Background(), events.Event{
			ID:        "evt-1",
			ChildID:   "child-1",
			Type:      events.TypeSleep,
			State:     events.StateOpen,
			StartTime: start,
			CreatedAt: start,
		})
	})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}

	// Primer cierre: aplica.
	err = repo.InTx(context.Background(), func(tx events.Tx) error {
		e, err := tx.LockEvent(context.Background(), "evt-1")
		if err != nil {
			return err
		}
		e.State = events.StateClosed
		e.EndTime = &end
		ok, err := tx.CloseIfOpen(context.Background(), e)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("expected first close to apply")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("close error: %v", err)
	}

	// Segundo cierre: el guard devuelve false, no pisa el estado terminal.
	err = repo.InTx(context.Background(), func(tx events.Tx) error {
		e, err := tx.LockEvent(context.Background(), "evt-1")
		if err != nil {
			return err
		}
		e.State = events.StateCanceled
		ok, err := tx.CloseIfOpen(context.Background(), e)
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("expected second close to be rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second close tx error: %v", err)
	}

	got, err := repo.GetByID(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.State != events.StateClosed {
		t.Fatalf("terminal state must survive, got %s", got.State)
	}
}
