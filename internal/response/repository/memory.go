package repository

import (
	"context"
	"sync"
	"time"

	"github.com/collabform/collabform/internal/response"
)

// MemoryRepo is an in-memory response store used by unit tests and
// local development. It applies writes strictly in the order they
// reach the store, which is what makes completion-order races
// observable in tests: the BeforeApply hook runs before the store
// lock is taken, so a test can hold one write back while a later one
// completes first.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]*response.FormResponse
	byForm map[string]string

	beforeApply func(fieldID, userID string)
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]*response.FormResponse),
		byForm: make(map[string]string),
	}
}

// SetBeforeApply installs a hook invoked before a field write takes
// the store lock. Tests use it to interleave completion order.
func (m *MemoryRepo) SetBeforeApply(fn func(fieldID, userID string)) {
	m.beforeApply = fn
}

func (m *MemoryRepo) Create(ctx context.Context, r *response.FormResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byForm[r.Form]; ok {
		return response.ErrConflict
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := cloneResponse(r)
	m.byID[r.ID] = cp
	m.byForm[r.Form] = r.ID
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*response.FormResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	return cloneResponse(r), nil
}

func (m *MemoryRepo) FindByForm(ctx context.Context, formID string) (*response.FormResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byForm[formID]
	if !ok {
		return nil, nil
	}
	return cloneResponse(m.byID[id]), nil
}

func (m *MemoryRepo) ListByForm(ctx context.Context, formID string) ([]*response.FormResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*response.FormResponse{}
	if id, ok := m.byForm[formID]; ok {
		out = append(out, cloneResponse(m.byID[id]))
	}
	return out, nil
}

func (m *MemoryRepo) AddCollaborator(ctx context.Context, responseID string, c response.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[responseID]
	if !ok {
		return response.ErrNotFound
	}
	r.Collaborators = append(r.Collaborators, c)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) SetCollaboratorActive(ctx context.Context, responseID, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[responseID]
	if !ok {
		return response.ErrNotFound
	}
	for i := range r.Collaborators {
		if r.Collaborators[i].UserID == userID {
			r.Collaborators[i].IsActive = active
			r.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return response.ErrForbidden
}

// SetFieldValue overwrites a field unconditionally: whichever call
// reaches this point last wins, regardless of dispatch order.
func (m *MemoryRepo) SetFieldValue(ctx context.Context, responseID, fieldID string, v response.Value, userID string, at time.Time) (*response.FieldValue, error) {
	if m.beforeApply != nil {
		m.beforeApply(fieldID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[responseID]
	if !ok {
		return nil, response.ErrNotFound
	}
	fv := r.Field(fieldID)
	if fv == nil {
		return nil, response.ErrFieldNotFound
	}
	fv.Value = v
	fv.LastUpdatedBy = userID
	fv.LastUpdatedAt = at
	r.UpdatedAt = at
	out := *fv
	return &out, nil
}

func (m *MemoryRepo) MarkComplete(ctx context.Context, responseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[responseID]
	if !ok {
		return response.ErrNotFound
	}
	r.IsComplete = true
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneResponse(r *response.FormResponse) *response.FormResponse {
	cp := *r
	cp.FieldValues = append([]response.FieldValue(nil), r.FieldValues...)
	cp.Collaborators = append([]response.Collaborator(nil), r.Collaborators...)
	return &cp
}
