package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/sample/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := database.NewFromEnv(context.Background(), &database.Config{
		FileName:    filepath.Join(t.TempDir(), "samples.db"),
		OpenTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return New(db)
}

func TestDB_AppendAndFind(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	coding := []model.Sample{
		model.NewSample("coding", "ATGAAACCC", 1, time.Now()),
		model.NewSample("coding", "ATGGGGTAA", 0.5, time.Now()),
	}
	noncoding := model.NewSample("noncoding", "TTTTTTTTT", 1, time.Now())

	require.NoError(t, db.AppendMany(ctx, coding))
	require.NoError(t, db.Store(ctx, noncoding))

	keys, err := db.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"coding", "noncoding"}, keys)

	n, err := db.CountByClass("coding")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.CountByClass("unknown")
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := db.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := db.FindByClass("coding", func(s model.Sample) bool { return s.Weight == 1 })
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, coding[0].ID, found[0].ID)
	assert.Equal(t, "ATGAAACCC", found[0].Seq)

	missing, err := db.FindByClass("unknown", nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestDB_OverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	sample := model.NewSample("coding", "ATGAAACCC", 1, time.Now())
	require.NoError(t, db.Store(ctx, sample))

	sample.Status = model.StatusTrained
	require.NoError(t, db.AppendMany(ctx, []model.Sample{sample}))

	found, err := db.FindByClass("coding", nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].IsTrained())

	require.NoError(t, db.Delete(ctx, sample))
	n, err := db.CountByClass("coding")
	require.NoError(t, err)
	assert.Zero(t, n)

	other := model.NewSample("other", "ACGT", 1, time.Now())
	require.NoError(t, db.DeleteMany(ctx, []model.Sample{other}))
}

func TestDB_UpdateExisting(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	kept := model.NewSample("coding", "ATGAAACCC", 1, time.Now())
	pruned := model.NewSample("coding", "ATGCCCAAA", 1, time.Now())
	require.NoError(t, db.AppendMany(ctx, []model.Sample{kept, pruned}))
	require.NoError(t, db.Delete(ctx, pruned))

	kept.Status, pruned.Status = model.StatusTrained, model.StatusTrained
	n, err := db.UpdateExisting(ctx, []model.Sample{kept, pruned, model.NewSample("absent", "ACGT", 1, time.Now())})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := db.FindByClass("coding", nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, kept.ID, found[0].ID)
	assert.True(t, found[0].IsTrained())

	absent, err := db.CountByClass("absent")
	require.NoError(t, err)
	assert.Zero(t, absent)
}
