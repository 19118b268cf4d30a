package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabform/collabform/internal/form"
	"github.com/collabform/collabform/internal/response"
	"github.com/collabform/collabform/internal/response/repository"
)

type staticResolver map[string]string

func (r staticResolver) ResolveUsernames(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if n, ok := r[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func testForm(id string, fieldIDs ...string) *form.Form {
	f := &form.Form{ID: id, Title: "t", Creator: "owner", ShareLink: "link-" + id, IsActive: true}
	for i, fid := range fieldIDs {
		f.Fields = append(f.Fields, form.Field{FieldID: fid, Label: fid, Type: form.FieldText, Order: i})
	}
	return f
}

func newTestService(t *testing.T, forms ...*form.Form) (*Service, *repository.MemoryRepo) {
	t.Helper()
	defs := form.NewMemoryDefinitions()
	for _, f := range forms {
		defs.Put(f)
	}
	repo := repository.NewMemoryRepo()
	return NewService(repo, defs, staticResolver{"uA": "alice", "uB": "bob"}), repo
}

func TestJoinOrCreate_SeedsOneEmptyValuePerField(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name", "email", "age"))
	ctx := context.Background()

	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)
	require.Len(t, r.FieldValues, 3)
	for _, fv := range r.FieldValues {
		require.True(t, fv.Value.IsEmpty())
	}
	require.Len(t, r.Collaborators, 1)
	require.True(t, r.Collaborators[0].IsActive)
	require.Equal(t, "alice", r.Collaborators[0].Username)
}

func TestJoinOrCreate_SecondUserJoinsSameDocument(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()

	r1, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)
	r2, err := svc.JoinOrCreate(ctx, "f1", "uB")
	require.NoError(t, err)

	require.Equal(t, r1.ID, r2.ID)
	require.Len(t, r2.Collaborators, 2)
	for _, c := range r2.Collaborators {
		require.True(t, c.IsActive)
	}
}

func TestJoinOrCreate_RejoinFlipsActiveWithoutDuplicate(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()

	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)

	// joining again must not append a second entry
	again, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)
	require.Equal(t, r.ID, again.ID)
	require.Len(t, again.Collaborators, 1)
	require.True(t, again.Collaborators[0].IsActive)
}

func TestJoinOrCreate_UnknownOrInactiveForm(t *testing.T) {
	inactive := testForm("f2", "name")
	inactive.IsActive = false
	svc, _ := newTestService(t, inactive)
	ctx := context.Background()

	_, err := svc.JoinOrCreate(ctx, "ghost", "uA")
	require.ErrorIs(t, err, form.ErrNotFound)

	_, err = svc.JoinOrCreate(ctx, "f2", "uA")
	require.ErrorIs(t, err, response.ErrFormInactive)
}

// Two simultaneous first joiners must converge on one document: the
// loser of the insert race detects the conflict and joins instead.
func TestJoinOrCreate_CreationRaceConverges(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*response.FormResponse, 2)
	errs := make([]error, 2)
	users := []string{"uA", "uB"}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.JoinOrCreate(ctx, "f1", users[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, results[0].ID, results[1].ID, "racing creators must converge on one document")

	final, err := svc.Get(ctx, results[0].ID)
	require.NoError(t, err)
	require.Len(t, final.Collaborators, 2)
}

func TestUpdateField_HappyPath(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()
	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)

	fv, err := svc.UpdateField(ctx, r.ID, "name", response.ScalarValue("Alice"), "uA")
	require.NoError(t, err)
	v, ok := fv.Value.Scalar()
	require.True(t, ok)
	require.Equal(t, "Alice", v)
	require.Equal(t, "uA", fv.LastUpdatedBy)
	require.False(t, fv.LastUpdatedAt.IsZero())
}

func TestUpdateField_ErrorTaxonomy(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()
	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)

	_, err = svc.UpdateField(ctx, "ghost", "name", response.ScalarValue("x"), "uA")
	require.ErrorIs(t, err, response.ErrNotFound)

	_, err = svc.UpdateField(ctx, r.ID, "ghost", response.ScalarValue("x"), "uA")
	require.ErrorIs(t, err, response.ErrFieldNotFound)

	_, err = svc.UpdateField(ctx, r.ID, "name", response.ScalarValue("x"), "stranger")
	require.ErrorIs(t, err, response.ErrForbidden)
}

func TestUpdateField_RejectedAfterComplete(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()
	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)

	_, err = svc.MarkComplete(ctx, r.ID, "uA")
	require.NoError(t, err)

	_, err = svc.UpdateField(ctx, r.ID, "name", response.ScalarValue("late"), "uA")
	require.ErrorIs(t, err, response.ErrCompleted)

	// value untouched
	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, got.Field("name").Value.IsEmpty())
}

// The persisted final value is whichever call's persistence completed
// last, independent of dispatch order.
func TestUpdateField_LastCompletedWriteWins(t *testing.T) {
	svc, repo := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()
	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)
	_, err = svc.JoinOrCreate(ctx, "f1", "uB")
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{})
	repo.SetBeforeApply(func(fieldID, userID string) {
		if userID == "uA" {
			close(entered)
			<-release
		}
	})

	doneA := make(chan struct{})
	go func() {
		defer close(doneA)
		_, err := svc.UpdateField(ctx, r.ID, "name", response.ScalarValue("first-dispatched"), "uA")
		require.NoError(t, err)
	}()
	<-entered

	_, err = svc.UpdateField(ctx, r.ID, "name", response.ScalarValue("second-dispatched"), "uB")
	require.NoError(t, err)

	close(release)
	<-doneA

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	v, _ := got.Field("name").Value.Scalar()
	require.Equal(t, "first-dispatched", v)
}

func TestMarkComplete_IdempotentAndGuarded(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()
	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)

	_, err = svc.MarkComplete(ctx, r.ID, "stranger")
	require.ErrorIs(t, err, response.ErrForbidden)

	first, err := svc.MarkComplete(ctx, r.ID, "uA")
	require.NoError(t, err)
	require.True(t, first.IsComplete)

	second, err := svc.MarkComplete(ctx, r.ID, "uA")
	require.NoError(t, err)
	require.True(t, second.IsComplete)
}

func TestListByForm(t *testing.T) {
	svc, _ := newTestService(t, testForm("f1", "name"))
	ctx := context.Background()
	r, err := svc.JoinOrCreate(ctx, "f1", "uA")
	require.NoError(t, err)

	list, err := svc.ListByForm(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, r.ID, list[0].ID)

	_, err = svc.ListByForm(ctx, "ghost")
	require.ErrorIs(t, err, form.ErrNotFound)
}
