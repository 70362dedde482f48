package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/notify/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB(t *testing.T) {
	ctx := context.Background()
	sDB, err := database.NewFromEnv(ctx, &database.Config{FileName: filepath.Join(t.TempDir(), "notify.db"), OpenTimeout: time.Second})
	require.NoError(t, err)
	defer sDB.Close(ctx)
	db := New(sDB)

	events, err := db.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	a := model.Event{ID: uuid.New(), Class: "a", Samples: 3}
	b := model.Event{ID: uuid.New(), Class: "b", Samples: 5}
	require.NoError(t, db.Store(ctx, a, b))

	events, err = db.FindAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Event{a, b}, events)

	require.NoError(t, db.Delete(ctx, a))
	events, err = db.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Event{b}, events)
}
