package children

import (
	"context"
	"errors"
	"testing"
)

type testRepo struct {
	byID map[string]Child
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Child{}}
}

func (r *testRepo) Create(ctx context.Context, c Child) error {
	if _, ok := r.byID[c.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[c.ID] = c
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Child, error) {
	c, ok := r.byID[id]
	if !ok {
		return Child{}, errors.New("repo: not found")
	}
	return c, nil
}

func (r *testRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]Child, error) {
	out := make([]Child, 0)
	for _, c := range r.byID {
		if c.OwnerUserID == ownerUserID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestService_Create_DefaultsSexToUnknown(t *testing.T) {
	svc := NewService(newTestRepo())

	c, err := svc.Create(context.Background(), "owner-1", CreateInput{Name: "  Emma  "})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if c.Sex != SexUnknown {
		t.Fatalf("expected unknown sex by default, got %s", c.Sex)
	}
	if c.Name != "Emma" {
		t.Fatalf("expected trimmed name, got %q", c.Name)
	}
}

func TestService_Create_NormalizesSex(t *testing.T) {
	svc := NewService(newTestRepo())

	c, err := svc.Create(context.Background(), "owner-1", CreateInput{Name: "Emma", Sex: " FEMALE "})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if c.Sex != SexFemale {
		t.Fatalf("expected female, got %s", c.Sex)
	}
}

func TestService_Create_RejectsInvalidInput(t *testing.T) {
	svc := NewService(newTestRepo())

	if _, err := svc.Create(context.Background(), "", CreateInput{Name: "Emma"}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput without owner, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "owner-1", CreateInput{Name: "   "}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput without name, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "owner-1", CreateInput{Name: "Emma", Sex: "robot"}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for bad sex, got %v", err)
	}
}

func TestService_OwnerOf(t *testing.T) {
	svc := NewService(newTestRepo())

	c, err := svc.Create(context.Background(), "owner-1", CreateInput{Name: "Emma"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	owner, err := svc.OwnerOf(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("OwnerOf error: %v", err)
	}
	if owner != "owner-1" {
		t.Fatalf("expected owner-1, got %s", owner)
	}
}
