package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newRecipeStore(m kv.Medium, opts Options[models.Recipe]) *Store[models.Recipe] {
	if opts.Key == "" {
		opts.Key = kv.Namespace("recipes", "recipes")
	}
	if opts.NewID == nil {
		opts.NewID = sequentialIDs()
	}
	opts.Now = func() time.Time { return fixedNow }
	return New(m, opts)
}

// failingMedium fails every call with err.
type failingMedium struct{ err error }

func (f failingMedium) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingMedium) Set(context.Context, string, string) error         { return f.err }
func (f failingMedium) Remove(context.Context, string) error              { return f.err }
func (f failingMedium) Keys(context.Context, string) ([]string, error)    { return nil, f.err }

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	s := newRecipeStore(m, Options[models.Recipe]{})
	_, _ = s.Load(ctx)

	_, err := s.Create(ctx, models.Recipe{Title: "Soup", CookTime: 20, Ingredients: []string{"water"}, Tags: []string{"warm"}})
	require.NoError(t, err)
	_, err = s.Create(ctx, models.Recipe{Meta: models.Meta{ID: "given"}, Title: "Salad"})
	require.NoError(t, err)

	reloaded := newRecipeStore(m, Options[models.Recipe]{})
	items, warn := reloaded.Load(ctx)
	require.NoError(t, warn)
	assert.Equal(t, s.List(), items)
	assert.Equal(t, "id-1", items[0].ID)
	assert.Equal(t, "given", items[1].ID)
	assert.Equal(t, fixedNow, items[0].CreatedAt)
}

func TestLoad_MissingKeySeedsDefaults(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	defaults := []models.Recipe{{Meta: models.Meta{ID: "d1"}, Title: "Default"}, {Title: "No id"}}
	s := newRecipeStore(m, Options[models.Recipe]{Defaults: defaults})

	items, warn := s.Load(ctx)
	require.NoError(t, warn)
	require.Len(t, items, 2)
	assert.Equal(t, "id-1", items[1].ID, "missing ids are assigned on load")

	raw, ok, _ := m.Get(ctx, s.Key())
	require.True(t, ok, "defaults are persisted at once")
	assert.Contains(t, raw, "Default")
}

func TestLoad_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	require.NoError(t, m.Set(ctx, "recipes_recipes", "{not json"))
	s := newRecipeStore(m, Options[models.Recipe]{Defaults: []models.Recipe{{Meta: models.Meta{ID: "d1"}, Title: "Default"}}})

	items, warn := s.Load(ctx)
	assert.ErrorIs(t, warn, ErrCorruptSnapshot)
	require.Len(t, items, 1)
	assert.Equal(t, "Default", items[0].Title)
}

func TestLoad_DuplicateIDsDropped(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	require.NoError(t, m.Set(ctx, "recipes_recipes", `[{"id":"a","title":"one"},{"id":"a","title":"two"},{"id":"b","title":"three"}]`))
	s := newRecipeStore(m, Options[models.Recipe]{})

	items, warn := s.Load(ctx)
	require.NoError(t, warn)
	require.Len(t, items, 2)
	assert.Equal(t, "one", items[0].Title)
}

func TestLoad_ReadFailure(t *testing.T) {
	s := newRecipeStore(failingMedium{err: errors.New("disk gone")}, Options[models.Recipe]{
		Defaults: []models.Recipe{{Title: "Default"}},
	})
	items, warn := s.Load(context.Background())
	var pe *PersistenceError
	require.ErrorAs(t, warn, &pe)
	assert.Equal(t, "load", pe.Op)
	assert.Len(t, items, 1)
}

func TestCreate_PersistenceFailureKeepsEntity(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	m.Quota = 40
	s := newRecipeStore(m, Options[models.Recipe]{})
	_, _ = s.Load(ctx)

	got, err := s.Create(ctx, models.Recipe{Title: "A very long recipe title that overflows the quota"})
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, kv.ErrQuotaExceeded)
	assert.Equal(t, "id-1", got.ID)
	assert.True(t, s.Has("id-1"), "the change stays in memory")
}

func TestCreate_IDPolicies(t *testing.T) {
	ctx := context.Background()
	s := newRecipeStore(kv.NewMemory(), Options[models.Recipe]{})
	_, err := s.Create(ctx, models.Recipe{Meta: models.Meta{ID: "x"}})
	require.NoError(t, err)
	_, err = s.Create(ctx, models.Recipe{Meta: models.Meta{ID: "x"}})
	assert.ErrorIs(t, err, ErrDuplicateID)

	caller := newRecipeStore(kv.NewMemory(), Options[models.Recipe]{IDs: CallerIDs})
	_, err = caller.Create(ctx, models.Recipe{Title: "no id"})
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Zero(t, caller.Len())
}

func TestInsert_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newRecipeStore(kv.NewMemory(), Options[models.Recipe]{})
	_, err := s.Create(ctx, models.Recipe{Meta: models.Meta{ID: "taken"}})
	require.NoError(t, err)

	_, err = s.Insert(ctx, models.Recipe{Title: "ok"}, models.Recipe{Meta: models.Meta{ID: "taken"}})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, s.Len())

	_, err = s.Insert(ctx, models.Recipe{Meta: models.Meta{ID: "d"}}, models.Recipe{Meta: models.Meta{ID: "d"}})
	assert.ErrorIs(t, err, ErrDuplicateID)

	stored, err := s.Insert(ctx, models.Recipe{Title: "a"}, models.Recipe{Title: "b"})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, 3, s.Len())
}

func TestUpdate_Policies(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	strict := newRecipeStore(kv.NewMemory(), Options[models.Recipe]{Update: Strict})
	_, err := strict.Update(ctx, models.Recipe{Meta: models.Meta{ID: "ghost"}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, strict.Len())

	_, err = strict.Create(ctx, models.Recipe{Meta: models.Meta{ID: "r", CreatedAt: created}, Title: "old"})
	require.NoError(t, err)
	got, err := strict.Update(ctx, models.Recipe{Meta: models.Meta{ID: "r"}, Title: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, created, got.CreatedAt, "CreatedAt is kept")
	assert.Equal(t, fixedNow, got.UpdatedAt)

	upsert := newRecipeStore(kv.NewMemory(), Options[models.Recipe]{Update: Upsert})
	got, err = upsert.Update(ctx, models.Recipe{Meta: models.Meta{ID: "ghost"}, Title: "born"})
	require.NoError(t, err)
	assert.Equal(t, "ghost", got.ID)
	assert.True(t, upsert.Has("ghost"))
	assert.Equal(t, "upsert", upsert.UpdatePolicy().String())
}

func TestRemove_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	s := newRecipeStore(m, Options[models.Recipe]{})
	for _, title := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, models.Recipe{Title: title})
		require.NoError(t, err)
	}

	require.NoError(t, s.Remove(ctx, "id-2"))
	once := s.List()
	persistedOnce, _, _ := m.Get(ctx, s.Key())

	require.NoError(t, s.Remove(ctx, "id-2"))
	assert.Equal(t, once, s.List())
	persistedTwice, _, _ := m.Get(ctx, s.Key())
	assert.Equal(t, persistedOnce, persistedTwice)

	got, ok := s.Get("id-3")
	require.True(t, ok)
	assert.Equal(t, "c", got.Title, "index is rebuilt after removal")
}

func TestClearAndDrop(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	defaults := []models.Recipe{{Meta: models.Meta{ID: "d"}, Title: "Default"}}
	s := newRecipeStore(m, Options[models.Recipe]{Defaults: defaults})
	_, _ = s.Load(ctx)
	_, err := s.Create(ctx, models.Recipe{Title: "mine"})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))
	raw, ok, _ := m.Get(ctx, s.Key())
	require.True(t, ok)
	assert.Equal(t, "[]", raw)

	items, _ := newRecipeStore(m, Options[models.Recipe]{Defaults: defaults}).Load(ctx)
	assert.Empty(t, items, "a cleared collection stays empty")

	require.NoError(t, s.Drop(ctx))
	_, ok, _ = m.Get(ctx, s.Key())
	assert.False(t, ok)
	items, _ = s.Load(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "Default", items[0].Title, "a dropped collection is re-seeded")
}

// Two stores on one key do not see each other: the last writer wins. This is
// a known limitation of the local-first model.
func TestSameKeyLastWriterWins(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	a := newRecipeStore(m, Options[models.Recipe]{})
	b := newRecipeStore(m, Options[models.Recipe]{NewID: func() string { return "from-b" }})
	_, _ = a.Load(ctx)
	_, _ = b.Load(ctx)

	_, err := a.Create(ctx, models.Recipe{Title: "written by a"})
	require.NoError(t, err)
	_, err = b.Create(ctx, models.Recipe{Title: "written by b"})
	require.NoError(t, err)

	items, _ := newRecipeStore(m, Options[models.Recipe]{}).Load(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "written by b", items[0].Title)
}

func TestRemoveWhere(t *testing.T) {
	ctx := context.Background()
	s := newRecipeStore(kv.NewMemory(), Options[models.Recipe]{})
	for _, c := range []string{"Thai", "Modern", "Thai"} {
		_, err := s.Create(ctx, models.Recipe{Cuisine: c})
		require.NoError(t, err)
	}
	removed, err := s.RemoveWhere(ctx, func(r models.Recipe) bool { return r.Cuisine == "Thai" })
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1", "id-3"}, removed)
	assert.Equal(t, 1, s.Len())
}
