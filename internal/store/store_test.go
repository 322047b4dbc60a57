package store_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/store"
	"github.com/nhle/smstask/internal/testutil"
)

func fill(t *testing.T, s *store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.Create(context.Background(), "5550100", fmt.Sprintf("task %d", i+1))
		require.NoError(t, err)
	}
}

func TestCreate_AssignsSequentialIDsUntilFull(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for want := 1; want <= model.MaxSlots; want++ {
		got, err := s.Create(ctx, "5550100", fmt.Sprintf("task %d", want))
		require.NoError(t, err)
		assert.Equal(t, want, got.ID)
	}

	_, err := s.Create(ctx, "5550100", "one too many")
	assert.ErrorIs(t, err, store.ErrCapacityExceeded)
	assert.Equal(t, store.Stats{Used: model.MaxSlots, Free: 0}, s.Stats())
}

func TestCreate_ReusesSmallestFreedID(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	fill(t, s, model.MaxSlots)

	_, ok, err := s.Delete(ctx, store.ByID(3))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Create(ctx, "5550100", "refill")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ID)
}

func TestCreate_DescriptionLength(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "5550100", strings.Repeat("a", model.MaxDescriptionLen+1))
	assert.ErrorIs(t, err, store.ErrValidation)

	got, err := s.Create(ctx, "5550100", strings.Repeat("a", model.MaxDescriptionLen))
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)

	// Length counts code points, not bytes.
	_, err = s.Create(ctx, "5550100", strings.Repeat("é", model.MaxDescriptionLen))
	assert.NoError(t, err)
}

func TestCreate_RequiresOwnerAndDescription(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "", "no owner")
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = s.Create(ctx, "5550100", "")
	assert.ErrorIs(t, err, store.ErrValidation)

	assert.Equal(t, 0, s.Stats().Used)
}

func TestDelete_NotFoundLeavesPoolUnchanged(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	fill(t, s, 2)

	before := s.FreeIDs()
	got, ok, err := s.Delete(ctx, store.ByID(7))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.Summary{}, got)
	assert.Equal(t, before, s.FreeIDs())
}

func TestDelete_FirstMatchOnly(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	fill(t, s, 3)

	got, ok, err := s.Delete(ctx, store.ByOwner("5550100"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.ID)

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestEndToEnd_CreateListDeleteRecycle(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "555-0100", "Pet the goose")
	require.NoError(t, err)
	assert.Equal(t, model.Summary{ID: 1, Description: "Pet the goose"}, created)

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.StatusPending, tasks[0].Status)
	assert.Equal(t, "555-0100", tasks[0].Owner)

	deleted, ok, err := s.Delete(ctx, store.ByID(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Summary{ID: 1, Description: "Pet the goose"}, deleted)

	tasks, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	again, err := s.Create(ctx, "555-0100", "Pet the goose")
	require.NoError(t, err)
	assert.Equal(t, 1, again.ID)
}

func TestList_SortedByID(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	fill(t, s, 5)

	_, _, err := s.Delete(ctx, store.ByID(2))
	require.NoError(t, err)
	_, err = s.Create(ctx, "5550100", "back in slot two")
	require.NoError(t, err)

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	ids := make([]int, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ids)
}

func TestFind_Conjunctive(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "alice", "feed cat")
	require.NoError(t, err)
	_, err = s.Create(ctx, "bob", "feed cat")
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", "fold clothes")
	require.NoError(t, err)

	owner, desc := "alice", "feed cat"
	got, err := s.Find(ctx, store.Filter{Owner: &owner, Description: &desc})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ID)

	got, err = s.Find(ctx, store.ByOwner("alice"))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Find(ctx, store.ByOwner("carol"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUpdate_AllowListedFields(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	fill(t, s, 3)

	changes, err := store.ParseChanges(map[string]any{"status": model.StatusDone})
	require.NoError(t, err)

	n, err := s.Update(ctx, store.ByOwner("5550100"), changes)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	done := model.StatusDone
	got, err := s.Find(ctx, store.Filter{Status: &done})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	n, err = s.Update(ctx, store.ByID(9), changes)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate_RejectsInvalidChanges(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	fill(t, s, 1)

	long := strings.Repeat("x", model.MaxDescriptionLen+1)
	bogus := "archived"

	_, err := s.Update(ctx, store.ByID(1), store.Changes{Description: &long})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = s.Update(ctx, store.ByID(1), store.Changes{Status: &bogus})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = s.Update(ctx, store.ByID(1), store.Changes{})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestParseChanges(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		wantErr bool
	}{
		{name: "status", fields: map[string]any{"status": "done"}},
		{name: "description", fields: map[string]any{"description": "new text"}},
		{name: "id is immutable", fields: map[string]any{"id": 4}, wantErr: true},
		{name: "owner is immutable", fields: map[string]any{"owner": "mallory"}, wantErr: true},
		{name: "unknown field", fields: map[string]any{"priority": "high"}, wantErr: true},
		{name: "wrong type", fields: map[string]any{"status": 3}, wantErr: true},
		{name: "empty", fields: map[string]any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ParseChanges(tt.fields)
			if tt.wantErr {
				assert.ErrorIs(t, err, store.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClear_RequiresPIN(t *testing.T) {
	s := testutil.NewTestStore(t, store.WithPIN("1010"))
	ctx := context.Background()
	fill(t, s, 4)

	for _, pin := range []string{"", "101", "abcd", "9999", "10100"} {
		assert.ErrorIs(t, s.Clear(ctx, pin), store.ErrPINRejected, "pin %q", pin)
	}
	assert.Equal(t, 4, s.Stats().Used)

	require.NoError(t, s.Clear(ctx, "1010"))
	assert.Equal(t, store.Stats{Used: 0, Free: model.MaxSlots}, s.Stats())

	got, err := s.Create(ctx, "5550100", "fresh start")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)
}

func TestClear_WithoutConfiguredPIN(t *testing.T) {
	s := testutil.NewTestStore(t)
	assert.ErrorIs(t, s.Clear(context.Background(), "0000"), store.ErrPINRejected)
}

func TestOpen_RebuildsPoolFromBackingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	logger := testutil.DiscardLogger()

	first, err := store.Open(ctx, store.NewYAMLBackend(path), "tasks", store.WithLogger(logger))
	require.NoError(t, err)
	fill(t, first, 4)
	_, _, err = first.Delete(ctx, store.ByID(2))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := store.Open(ctx, store.NewYAMLBackend(path), "tasks", store.WithLogger(logger))
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, []int{2, 5, 6, 7, 8, 9, 10}, second.FreeIDs())
	got, err := second.Create(ctx, "5550100", "slot two again")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ID)
}

func TestOpen_RejectsCorruptIDs(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		tasks []model.Task
	}{
		{name: "out of range", tasks: []model.Task{{ID: 11, Owner: "a", Description: "x", Status: "pending"}}},
		{name: "zero", tasks: []model.Task{{ID: 0, Owner: "a", Description: "x", Status: "pending"}}},
		{name: "duplicate", tasks: []model.Task{
			{ID: 1, Owner: "a", Description: "x", Status: "pending"},
			{ID: 1, Owner: "b", Description: "y", Status: "pending"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := store.NewYAMLBackend(filepath.Join(t.TempDir(), "tasks.yaml"))
			require.NoError(t, backend.Save(ctx, "tasks", tt.tasks))

			_, err := store.Open(ctx, backend, "tasks", store.WithLogger(testutil.DiscardLogger()))
			assert.ErrorIs(t, err, store.ErrCorrupt)
		})
	}
}

type failingBackend struct {
	store.Backend
	fail bool
}

func (b *failingBackend) Save(ctx context.Context, table string, tasks []model.Task) error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.Backend.Save(ctx, table, tasks)
}

func TestSaveFailure_RestoresPool(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{Backend: store.NewYAMLBackend(filepath.Join(t.TempDir(), "tasks.yaml"))}
	s, err := store.Open(ctx, backend, "tasks", store.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	fill(t, s, 2)

	backend.fail = true
	before := s.FreeIDs()

	_, err = s.Create(ctx, "5550100", "doomed")
	assert.Error(t, err)
	assert.Equal(t, before, s.FreeIDs())

	_, ok, err := s.Delete(ctx, store.ByID(1))
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, s.FreeIDs())
	assert.Equal(t, 2, s.Stats().Used)
}

func TestObserver_SeesEveryMutation(t *testing.T) {
	var seen []store.Stats
	s := testutil.NewTestStore(t, store.WithObserver(func(st store.Stats) {
		seen = append(seen, st)
	}))
	ctx := context.Background()

	fill(t, s, 2)
	_, _, err := s.Delete(ctx, store.ByID(1))
	require.NoError(t, err)

	assert.Equal(t, []store.Stats{
		{Used: 0, Free: 10},
		{Used: 1, Free: 9},
		{Used: 2, Free: 8},
		{Used: 1, Free: 9},
	}, seen)
}

func TestConcurrentCreateDelete_NoDuplicateIDs(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				got, err := s.Create(ctx, "5550100", fmt.Sprintf("w%d-%d", w, i))
				if err != nil {
					continue
				}
				if i%2 == 0 {
					_, _, _ = s.Delete(ctx, store.ByID(got.ID))
				}
			}
		}(w)
	}
	wg.Wait()

	tasks, err := s.List(ctx)
	require.NoError(t, err)

	used := make([]int, 0, len(tasks))
	seen := map[int]bool{}
	for _, task := range tasks {
		assert.False(t, seen[task.ID], "duplicate id %d", task.ID)
		seen[task.ID] = true
		used = append(used, task.ID)
	}

	all := append(used, s.FreeIDs()...)
	sort.Ints(all)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, all)
}

func TestLogs_MaskOwner(t *testing.T) {
	var buf bytes.Buffer
	s := testutil.NewTestStore(t, store.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	created, err := s.Create(context.Background(), "5550100", "buy milk")
	require.NoError(t, err)
	_, _, err = s.Delete(context.Background(), store.ByID(created.ID))
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "5550100")
	assert.Contains(t, out, `"owner":"`+logging.MaskOwner("5550100")+`"`)
	assert.Contains(t, out, `"`+logging.KeyTaskID+`":1`)
	assert.Contains(t, out, `"`+logging.KeyComponent+`":"store"`)
	assert.NotContains(t, out, `"id":`)
}
