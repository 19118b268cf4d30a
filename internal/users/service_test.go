package users

import (
	"context"
	"testing"

	"github.com/collabform/collabform/internal/models"
)

type fakeRepo struct {
	users map[string]*models.User
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return f.users[id], nil
}

func (f *fakeRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func TestResolveUsernames(t *testing.T) {
	repo := &fakeRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Username: "alice", Email: "alice@example.com"},
		"u2": {ID: "u2", Username: "bob", Email: "bob@example.com"},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	names, err := svc.ResolveUsernames(ctx, []string{"u1", "u2", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names["u1"] != "alice" || names["u2"] != "bob" {
		t.Fatalf("unexpected resolution: %v", names)
	}
	if _, ok := names["missing"]; ok {
		t.Fatalf("expected unknown id to be absent, got: %v", names)
	}

	// empty input should not hit an error path
	none, err := svc.ResolveUsernames(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error on empty ids: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty map, got: %v", none)
	}
}
