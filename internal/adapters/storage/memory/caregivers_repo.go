package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"baby-care-log/internal/domain/caregivers"
)

type CaregiversRepo struct {
	mu   sync.RWMutex
	byID map[string]caregivers.Grant
}

func NewCaregiversRepo() *CaregiversRepo {
	return &CaregiversRepo{
		byID: make(map[string]caregivers.Grant),
	}
}

func (r *CaregiversRepo) Create(ctx context.Context, g caregivers.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(g.ID) == "" {
		return errors.New("grant id required")
	}
	if _, exists := r.byID[g.ID]; exists {
		return errors.New("grant already exists")
	}
	r.byID[g.ID] = g
	return nil
}

func (r *CaregiversRepo) Update(ctx context.Context, g caregivers.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[g.ID]; !exists {
		return ErrNotFound
	}
	r.byID[g.ID] = g
	return nil
}

func (r *CaregiversRepo) GetByID(ctx context.Context, id string) (caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byID[id]
	if !ok {
		return caregivers.Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *CaregiversRepo) ListByChild(ctx context.Context, childID string) ([]caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]caregivers.Grant, 0)
	for _, g := range r.byID {
		if g.ChildID == childID {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

func (r *CaregiversRepo) ListByGrantee(ctx context.Context, granteeUserID string) ([]caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]caregivers.Grant, 0)
	for _, g := range r.byID {
		if g.GranteeUserID == granteeUserID {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

func (r *CaregiversRepo) GetActiveGrant(ctx context.Context, childID, granteeUserID string) (caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var winner caregivers.Grant
	found := false
	for _, g := range r.byID {
		if g.ChildID != childID || g.GranteeUserID != granteeUserID || g.Status != caregivers.StatusActive {
			continue
		}
		if !found || g.UpdatedAt.After(winner.UpdatedAt) {
			winner = g
			found = true
		}
	}
	if !found {
		return caregivers.Grant{}, ErrNotFound
	}
	return winner, nil
}

func sortGrants(items []caregivers.Grant) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
