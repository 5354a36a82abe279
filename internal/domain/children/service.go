package children

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type CreateInput struct {
	Name      string
	BirthDate *time.Time
	Sex       string
	Notes     string
}

func (s *Service) Create(ctx context.Context, ownerUserID string, in CreateInput) (Child, error) {
	if strings.TrimSpace(ownerUserID) == "" {
		return Child{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.Name) == "" {
		return Child{}, ErrInvalidInput
	}

	sex := Sex(strings.ToLower(strings.TrimSpace(in.Sex)))
	switch sex {
	case "":
		sex = SexUnknown
	case SexMale, SexFemale, SexUnknown:
	default:
		return Child{}, ErrInvalidInput
	}

	now := s.now()
	c := Child{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		Name:        strings.TrimSpace(in.Name),
		BirthDate:   in.BirthDate,
		Sex:         sex,
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return Child{}, err
	}
	return c, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Child, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerUserID string) ([]Child, error) {
	return s.repo.ListByOwner(ctx, ownerUserID)
}

// OwnerOf expone el ownerUserID de un child. Evita ciclos de import entre
// módulos (children <-> caregivers).
func (s *Service) OwnerOf(ctx context.Context, childID string) (string, error) {
	c, err := s.GetByID(ctx, childID)
	if err != nil {
		return "", err
	}
	return c.OwnerUserID, nil
}
