package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/spmbatch/internal/batch"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	store := openStore(t)
	runs, err := store.List(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRecordAndList(t *testing.T) {
	store := openStore(t)

	report := batch.Report{
		Selected:  3,
		Total:     3,
		Succeeded: 2,
		Errors: []batch.ItemError{
			{Target: batch.Target{Title: "Phase", Filename: "scan.gwy", Channel: 1}, Err: errors.New("boom")},
		},
	}

	started := time.Now().Add(-time.Minute)
	id, err := store.Record("crop", report, started, time.Now())
	require.NoError(t, err)
	assert.Positive(t, id)

	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, "crop", run.Operation)
	assert.Equal(t, "partial success", run.Outcome)
	assert.Equal(t, 3, run.Selected)
	assert.Equal(t, 2, run.Succeeded)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "boom")
	assert.Equal(t, started.Unix(), run.StartedAt.Unix())
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	store := openStore(t)

	base := time.Now().Add(-time.Hour)
	for i, op := range []string{"palette", "rename", "export"} {
		_, err := store.Record(op, batch.Report{Selected: 1, Total: 1, Succeeded: 1},
			base.Add(time.Duration(i)*time.Minute), base.Add(time.Duration(i)*time.Minute+time.Second))
		require.NoError(t, err)
	}

	runs, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "export", runs[0].Operation)
	assert.Equal(t, "rename", runs[1].Operation)
}

func TestOpen_Reopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Record("palette", batch.Report{Selected: 1, Total: 1, Succeeded: 1},
		time.Now(), time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = store2.Close() }()

	runs, err := store2.List(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
