package users

import (
	"context"

	"github.com/collabform/collabform/internal/models"
)

// Service resolves user identities for response snapshots.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// ResolveUsernames maps userId -> username for the given ids. Unknown
// ids are simply absent from the result; callers fall back to the raw id.
func (s *Service) ResolveUsernames(ctx context.Context, ids []string) (map[string]string, error) {
	found, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(found))
	for id, u := range found {
		out[id] = u.Username
	}
	return out, nil
}
