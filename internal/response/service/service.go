package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/collabform/collabform/internal/form"
	"github.com/collabform/collabform/internal/response"
)

// Repository is the persistence surface the store builds on. Mutation
// goes through single atomic operations; there is no per-field lock
// or version check above them.
type Repository interface {
	Create(ctx context.Context, r *response.FormResponse) error
	Get(ctx context.Context, id string) (*response.FormResponse, error)
	FindByForm(ctx context.Context, formID string) (*response.FormResponse, error)
	ListByForm(ctx context.Context, formID string) ([]*response.FormResponse, error)
	AddCollaborator(ctx context.Context, responseID string, c response.Collaborator) error
	SetCollaboratorActive(ctx context.Context, responseID, userID string, active bool) error
	SetFieldValue(ctx context.Context, responseID, fieldID string, v response.Value, userID string, at time.Time) (*response.FieldValue, error)
	MarkComplete(ctx context.Context, responseID string) error
}

// IdentityResolver maps user ids to usernames for read snapshots.
type IdentityResolver interface {
	ResolveUsernames(ctx context.Context, ids []string) (map[string]string, error)
}

// Service is the Response Store: the durable, authoritative write
// path for the shared response document.
type Service struct {
	repo  Repository
	forms form.Definitions
	ids   IdentityResolver
}

// NewService builds a store over the given repository and form
// definitions. ids may be nil; snapshots then carry raw user ids only.
func NewService(repo Repository, forms form.Definitions, ids IdentityResolver) *Service {
	return &Service{repo: repo, forms: forms, ids: ids}
}

// JoinOrCreate returns the single response for formID, creating it on
// first join. The caller becomes (or re-becomes) an active
// collaborator. Two racing first joiners converge on one document:
// the losing insert observes the uniqueness conflict and falls back
// to the join path against the winner's document.
func (s *Service) JoinOrCreate(ctx context.Context, formID, userID string) (*response.FormResponse, error) {
	f, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, response.ErrFormInactive
	}

	existing, err := s.repo.FindByForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		created, err := s.create(ctx, f, userID)
		if err == nil {
			return s.resolve(ctx, created), nil
		}
		if err != response.ErrConflict {
			return nil, err
		}
		// lost the creation race; join the winner's document
		existing, err = s.repo.FindByForm(ctx, formID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, response.ErrNotFound
		}
	}
	if err := s.join(ctx, existing, userID); err != nil {
		return nil, err
	}
	return s.Get(ctx, existing.ID)
}

func (s *Service) create(ctx context.Context, f *form.Form, userID string) (*response.FormResponse, error) {
	now := time.Now().UTC()
	r := &response.FormResponse{
		ID:   uuid.NewString(),
		Form: f.ID,
		Collaborators: []response.Collaborator{
			{UserID: userID, JoinedAt: now, IsActive: true},
		},
	}
	// one empty value per form field, fixed for the response's lifetime
	r.FieldValues = make([]response.FieldValue, 0, len(f.Fields))
	for _, fd := range f.Fields {
		r.FieldValues = append(r.FieldValues, response.FieldValue{
			FieldID:       fd.FieldID,
			Value:         response.EmptyValue(),
			LastUpdatedBy: userID,
			LastUpdatedAt: now,
		})
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) join(ctx context.Context, r *response.FormResponse, userID string) error {
	if r.Collaborator(userID) != nil {
		return s.repo.SetCollaboratorActive(ctx, r.ID, userID, true)
	}
	return s.repo.AddCollaborator(ctx, r.ID, response.Collaborator{
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
		IsActive: true,
	})
}

// Get returns a read snapshot with collaborator identities resolved.
func (s *Service) Get(ctx context.Context, responseID string) (*response.FormResponse, error) {
	r, err := s.repo.Get(ctx, responseID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, r), nil
}

// UpdateField unconditionally overwrites one field value. Last write
// wins by persistence completion order; stale writes are neither
// merged nor rejected. Fails with ErrNotFound, ErrForbidden,
// ErrCompleted or ErrFieldNotFound.
func (s *Service) UpdateField(ctx context.Context, responseID, fieldID string, v response.Value, userID string) (*response.FieldValue, error) {
	r, err := s.repo.Get(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if !r.HasActiveCollaborator(userID) {
		return nil, response.ErrForbidden
	}
	if r.IsComplete {
		return nil, response.ErrCompleted
	}
	if r.Field(fieldID) == nil {
		return nil, response.ErrFieldNotFound
	}
	return s.repo.SetFieldValue(ctx, responseID, fieldID, v, userID, time.Now().UTC())
}

// ListByForm returns the responses recorded for a form (at most one
// under the current uniqueness constraint).
func (s *Service) ListByForm(ctx context.Context, formID string) ([]*response.FormResponse, error) {
	if _, err := s.forms.Get(ctx, formID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		s.resolve(ctx, r)
	}
	return list, nil
}

// MarkComplete flips IsComplete to true. Idempotent: completing a
// completed response is not an error.
func (s *Service) MarkComplete(ctx context.Context, responseID, userID string) (*response.FormResponse, error) {
	r, err := s.repo.Get(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if !r.HasActiveCollaborator(userID) {
		return nil, response.ErrForbidden
	}
	if !r.IsComplete {
		if err := s.repo.MarkComplete(ctx, responseID); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, responseID)
}

// resolve fills usernames onto a snapshot. Best effort: resolution
// failures leave raw ids in place.
func (s *Service) resolve(ctx context.Context, r *response.FormResponse) *response.FormResponse {
	if s.ids == nil || r == nil {
		return r
	}
	seen := map[string]bool{}
	ids := []string{}
	for _, c := range r.Collaborators {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			ids = append(ids, c.UserID)
		}
	}
	for _, fv := range r.FieldValues {
		if fv.LastUpdatedBy != "" && !seen[fv.LastUpdatedBy] {
			seen[fv.LastUpdatedBy] = true
			ids = append(ids, fv.LastUpdatedBy)
		}
	}
	names, err := s.ids.ResolveUsernames(ctx, ids)
	if err != nil {
		return r
	}
	for i := range r.Collaborators {
		r.Collaborators[i].Username = names[r.Collaborators[i].UserID]
	}
	for i := range r.FieldValues {
		r.FieldValues[i].LastUpdatedByName = names[r.FieldValues[i].LastUpdatedBy]
	}
	return r
}
