package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/icm"
	"github.com/go-scimm/scimm/internal/profile/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedModel(t *testing.T, seqs ...string) *icm.Model {
	t.Helper()
	tr, err := icm.NewTrainer(icm.Config{ModelLen: 4, ModelDepth: 2, Periodicity: 3})
	require.NoError(t, err)
	for _, s := range seqs {
		require.NoError(t, tr.Accumulate(icm.Example{Seq: s, P: 1}))
	}
	m, err := tr.Finalize()
	require.NoError(t, err)
	return m
}

func TestDB_StoreFind(t *testing.T) {
	ctx := context.Background()
	sdb, err := database.NewFromEnv(ctx, &database.Config{
		FileName:    filepath.Join(t.TempDir(), "profiles.db"),
		OpenTimeout: time.Second,
	})
	require.NoError(t, err)
	defer sdb.Close(ctx)
	db := New(sdb)

	_, err = db.Find(ctx, "coding")
	require.True(t, errors.Is(err, ErrNotFound))

	m := trainedModel(t, "ATGAAACCCGGGTTTTAGATGCCCAAATGA", "ATGCGCGCGTATATAGCGCTAA")
	require.NoError(t, db.Store(ctx, model.NewProfile("coding", 2, m)))
	require.NoError(t, db.Store(ctx, model.NewProfile("noncoding", 1, trainedModel(t, "TTTTAAAATTTTAAAATATA"))))

	keys, err := db.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"coding", "noncoding"}, keys)

	p, err := db.Find(ctx, "coding")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Samples)
	for f := 0; f < 3; f++ {
		want, err := m.ScoreString("ATGCCCGGGAAATTT", f)
		require.NoError(t, err)
		got, err := p.Model.ScoreString("ATGCCCGGGAAATTT", f)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	all, err := db.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, db.Delete(ctx, "coding"))
	_, err = db.Find(ctx, "coding")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestProfile_MarshalEmptyModel(t *testing.T) {
	_, err := model.Profile{Class: "empty"}.MarshalBinary()
	assert.Error(t, err)
}
