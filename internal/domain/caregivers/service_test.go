package caregivers

import (
	"context"
	"errors"
	"testing"
	"time"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

var errRepoNotFound = errors.New("repo: not found")

type testRepo struct {
	byID map[string]Grant
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Grant{}}
}

func (r *testRepo) Create(ctx context.Context, g Grant) error {
	if g.ID == "" {
		return errors.New("repo: id required")
	}
	if _, ok := r.byID[g.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[g.ID] = g
	return nil
}

func (r *testRepo) Update(ctx context.Context, g Grant) error {
	if g.ID == "" {
		return errors.New("repo: id required")
	}
	if _, ok := r.byID[g.ID]; !ok {
		return errRepoNotFound
	}
	r.byID[g.ID] = g
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Grant, error) {
	g, ok := r.byID[id]
	if !ok {
		return Grant{}, errRepoNotFound
	}
	return g, nil
}

func (r *testRepo) ListByChild(ctx context.Context, childID string) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, g := range r.byID {
		if g.ChildID == childID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *testRepo) ListByGrantee(ctx context.Context, granteeUserID string) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, g := range r.byID {
		if g.GranteeUserID == granteeUserID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *testRepo) GetActiveGrant(ctx context.Context, childID, granteeUserID string) (Grant, error) {
	var winner Grant
	has := false

	for _, g := range r.byID {
		if g.ChildID != childID || g.GranteeUserID != granteeUserID || g.Status != StatusActive {
			continue
		}
		if !has || g.UpdatedAt.After(winner.UpdatedAt) {
			winner = g
			has = true
		}
	}

	if !has {
		return Grant{}, errRepoNotFound
	}
	return winner, nil
}

// -------------------------
// Tests
// -------------------------

func TestService_Invite_DefaultScopes_WhenEmpty(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	g, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
		Scopes:        nil,
	})
	if err != nil {
		t.Fatalf("Invite returned error: %v", err)
	}
	if g.Status != StatusInvited {
		t.Fatalf("expected status invited, got %s", g.Status)
	}
	// default: child:read + events:read
	if !HasScope(g, ScopeChildRead) || !HasScope(g, ScopeEventsRead) {
		t.Fatalf("expected default scopes child:read + events:read, got %#v", g.Scopes)
	}
	if HasScope(g, ScopeEventsLog) || HasScope(g, ScopeEventsManage) {
		t.Fatalf("write scopes must never be default, got %#v", g.Scopes)
	}
}

func TestService_Invite_StrictScopes_RejectsUnknown(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	_, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
		Scopes:        []Scope{ScopeEventsRead, Scope("bad:scope")},
	})
	if err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_Invite_RejectsSelfInvite(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	_, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "owner-1",
	})
	if err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for self invite, got %v", err)
	}
}

func TestService_Invite_Dedup_UpdatesSameGrant(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	now1 := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	now2 := now1.Add(5 * time.Minute)

	svc.now = func() time.Time { return now1 }
	g1, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
		Scopes:        []Scope{ScopeEventsRead},
	})
	if err != nil {
		t.Fatalf("Invite #1 error: %v", err)
	}

	svc.now = func() time.Time { return now2 }
	g2, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
		Scopes:        []Scope{ScopeEventsRead, ScopeEventsLog},
	})
	if err != nil {
		t.Fatalf("Invite #2 error: %v", err)
	}

	if g2.ID != g1.ID {
		t.Fatalf("expected same grant ID (dedup), got %s vs %s", g1.ID, g2.ID)
	}
	if !HasScope(g2, ScopeEventsLog) {
		t.Fatalf("expected scopes updated, got %#v", g2.Scopes)
	}
}

func TestService_Accept_SetsActive_AndIdempotent(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	g, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
	})
	if err != nil {
		t.Fatalf("Invite error: %v", err)
	}

	accepted, err := svc.Accept(context.Background(), g.ID, "caregiver-1")
	if err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	if accepted.Status != StatusActive {
		t.Fatalf("expected active, got %s", accepted.Status)
	}

	// Segundo accept: idempotente.
	again, err := svc.Accept(context.Background(), g.ID, "caregiver-1")
	if err != nil {
		t.Fatalf("second Accept error: %v", err)
	}
	if again.Status != StatusActive {
		t.Fatalf("expected active on repeat, got %s", again.Status)
	}
}

func TestService_Accept_OnlyGrantee(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	g, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
	})
	if err != nil {
		t.Fatalf("Invite error: %v", err)
	}

	if _, err := svc.Accept(context.Background(), g.ID, "intruder"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestService_Revoke_OnlyOwner_AndIdempotent(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	g, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
	})
	if err != nil {
		t.Fatalf("Invite error: %v", err)
	}
	if _, err := svc.Accept(context.Background(), g.ID, "caregiver-1"); err != nil {
		t.Fatalf("Accept error: %v", err)
	}

	if _, err := svc.Revoke(context.Background(), g.ID, "caregiver-1"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for non-owner revoke, got %v", err)
	}

	revoked, err := svc.Revoke(context.Background(), g.ID, "owner-1")
	if err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if revoked.Status != StatusRevoked || revoked.RevokedAt == nil {
		t.Fatalf("expected revoked with timestamp, got %#v", revoked)
	}

	// Idempotente.
	if _, err := svc.Revoke(context.Background(), g.ID, "owner-1"); err != nil {
		t.Fatalf("second Revoke error: %v", err)
	}

	// El acceso activo desaparece.
	if _, err := svc.GetActiveGrant(context.Background(), "child-1", "caregiver-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}

	// Un grant revocado no se resucita: nueva invitación crea otro ID.
	fresh, err := svc.Invite(context.Background(), InviteInput{
		ChildID:       "child-1",
		OwnerUserID:   "owner-1",
		GranteeUserID: "caregiver-1",
	})
	if err != nil {
		t.Fatalf("re-Invite error: %v", err)
	}
	if fresh.ID == g.ID {
		t.Fatalf("expected a new grant after revoke, got same ID")
	}
	if fresh.Status != StatusInvited {
		t.Fatalf("expected invited, got %s", fresh.Status)
	}
}
