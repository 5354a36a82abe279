package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"baby-care-log/internal/domain/children"
)

var (
	ErrNotFound = errors.New("not found")
)

type ChildrenRepo struct {
	mu   sync.RWMutex
	byID map[string]children.Child
}

func NewChildrenRepo() *ChildrenRepo {
	return &ChildrenRepo{
		byID: make(map[string]children.Child),
	}
}

func (r *ChildrenRepo) Create(ctx context.Context, c children.Child) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(c.ID) == "" {
		return errors.New("child id required")
	}
	if _, exists := r.byID[c.ID]; exists {
		return errors.New("child already exists")
	}
	r.byID[c.ID] = c
	return nil
}

func (r *ChildrenRepo) GetByID(ctx context.Context, id string) (children.Child, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return children.Child{}, ErrNotFound
	}
	return c, nil
}

func (r *ChildrenRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]children.Child, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]children.Child, 0)
	for _, c := range r.byID {
		if c.OwnerUserID == ownerUserID {
			out = append(out, c)
		}
	}

	// Orden estable por created_at asc (solo para consistencia en dev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Exists se usa desde el event store en memoria para emular el row lock
// sobre el child: un child inexistente no puede abrir eventos.
func (r *ChildrenRepo) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byID[id]
	return ok
}
