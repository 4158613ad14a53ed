package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/jobwatch/internal/module/tracking/adapter/sqlite"
	"github.com/jinford/jobwatch/internal/module/tracking/domain"
	"github.com/jinford/jobwatch/internal/platform/database"
)

func openTestStore(t *testing.T, path string) (*sqlite.IntentStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := sqlite.NewIntentStore(db)
	require.NoError(t, err)
	return store, db
}

func TestIntentStore_RecordAndList(t *testing.T) {
	// Setup
	ctx := context.Background()
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "intents.db"))
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	// Execute
	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-2",
		ResourceID: "project-1",
		JobClass:   domain.JobClassArchiveIngest,
		CreatedAt:  base.Add(time.Minute),
	}))
	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-1",
		ResourceID: "project-1",
		JobClass:   domain.JobClassIndexBuild,
		CreatedAt:  base,
	}))

	intents, err := store.ListActive(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, intents, 2)
	// 登録時刻の昇順で返ること
	assert.Equal(t, "job-1", intents[0].JobID)
	assert.Equal(t, domain.JobClassIndexBuild, intents[0].JobClass)
	assert.Equal(t, "job-2", intents[1].JobID)
	assert.True(t, base.Equal(intents[0].CreatedAt.UTC()))
}

func TestIntentStore_RecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "intents.db"))
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-1",
		ResourceID: "project-1",
		JobClass:   domain.JobClassIndexBuild,
		CreatedAt:  base,
	}))
	// 再登録してもレコードは増えず、created_atは最初の値を保持する
	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-1",
		ResourceID: "project-2",
		JobClass:   domain.JobClassIndexBuild,
		CreatedAt:  base.Add(time.Hour),
	}))

	intents, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "project-2", intents[0].ResourceID)
	assert.True(t, base.Equal(intents[0].CreatedAt.UTC()))
}

func TestIntentStore_RecordRequiresJobID(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "intents.db"))

	err := store.Record(ctx, domain.IntentRecord{ResourceID: "project-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIntentStore_Forget(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "intents.db"))

	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-1",
		ResourceID: "project-1",
		JobClass:   domain.JobClassIndexBuild,
	}))

	require.NoError(t, store.Forget(ctx, "job-1"))

	intents, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, intents)

	// 存在しないジョブIDの削除もエラーにならない
	assert.NoError(t, store.Forget(ctx, "job-1"))
}

func TestIntentStore_FindActive(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, filepath.Join(t.TempDir(), "intents.db"))
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-new",
		ResourceID: "project-1",
		JobClass:   domain.JobClassArchiveIngest,
		CreatedAt:  base.Add(time.Minute),
	}))
	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-old",
		ResourceID: "project-1",
		JobClass:   domain.JobClassArchiveIngest,
		CreatedAt:  base,
	}))
	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-other",
		ResourceID: "project-2",
		JobClass:   domain.JobClassIndexBuild,
		CreatedAt:  base,
	}))

	// 同一キーが複数ある場合は最も古いレコードが返ること
	found, err := store.FindActive(ctx, domain.JobClassArchiveIngest, "project-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "job-old", found.JobID)

	// 一致しない場合はnilが返ること
	found, err = store.FindActive(ctx, domain.JobClassAssessmentRun, "project-1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestIntentStore_SurvivesReopen(t *testing.T) {
	// プロセス再起動後のresumeを支えるため、レコードはDB再オープン後も読めること
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "intents.db")

	store, db := openTestStore(t, path)
	require.NoError(t, store.Record(ctx, domain.IntentRecord{
		JobID:      "job-1",
		ResourceID: "project-1",
		JobClass:   domain.JobClassIndexBuild,
	}))
	require.NoError(t, db.Close())

	reopened, _ := openTestStore(t, path)
	intents, err := reopened.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "job-1", intents[0].JobID)
	assert.Equal(t, domain.JobClassIndexBuild, intents[0].JobClass)
}
