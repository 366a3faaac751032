package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/internal/repository"
	"github.com/aimd54/lifescope-insights/internal/repository/repotest"
)

var day = time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

func accumulate(t *testing.T, repo *repository.LedgerRepository, userID uint, date time.Time, app, category string, mins int) {
	t.Helper()
	err := repo.Accumulate(context.Background(), &models.LedgerEntry{
		UserID:     userID,
		RecordDate: date,
		AppName:    app,
		Category:   category,
		UsageMins:  mins,
	})
	require.NoError(t, err)
}

func TestLedgerRepository_AccumulateAddsMinutes(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))
	ctx := context.Background()

	accumulate(t, repo, 1, day, "A", models.CategorySocial, 20)
	accumulate(t, repo, 1, day, "A", models.CategorySocial, 25)

	entry, err := repo.GetEntry(ctx, 1, day, "A")
	require.NoError(t, err)
	assert.Equal(t, 45, entry.UsageMins)
	assert.Equal(t, models.CategorySocial, entry.Category)

	entries, err := repo.ListDay(ctx, 1, day)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "same key must never produce a second row")
}

func TestLedgerRepository_AccumulateKeepsFirstCategory(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	accumulate(t, repo, 1, day, "Browser", models.CategoryBrowser, 10)
	accumulate(t, repo, 1, day, "Browser", models.CategoryWork, 5)

	entry, err := repo.GetEntry(context.Background(), 1, day, "Browser")
	require.NoError(t, err)
	assert.Equal(t, 15, entry.UsageMins)
	assert.Equal(t, models.CategoryBrowser, entry.Category)
}

func TestLedgerRepository_AccumulateConcurrent(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Accumulate(context.Background(), &models.LedgerEntry{
				UserID: 7, RecordDate: day, AppName: "Chat", Category: models.CategorySocial, UsageMins: 3,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, err := repo.GetEntry(context.Background(), 7, day, "Chat")
	require.NoError(t, err)
	assert.Equal(t, 60, entry.UsageMins)
}

func TestLedgerRepository_ListDayIsScopedAndOrdered(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	accumulate(t, repo, 1, day, "X", models.CategoryGame, 30)
	accumulate(t, repo, 1, day, "Y", models.CategoryGame, 30)
	accumulate(t, repo, 1, day.AddDate(0, 0, -1), "Z", models.CategoryWork, 99)
	accumulate(t, repo, 2, day, "W", models.CategoryWork, 50)
	accumulate(t, repo, 1, day, "X", models.CategoryGame, 1)

	entries, err := repo.ListDay(context.Background(), 1, day)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "X", entries[0].AppName)
	assert.Equal(t, 31, entries[0].UsageMins)
	assert.Equal(t, "Y", entries[1].AppName)
}

func TestLedgerRepository_SumByApp(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	accumulate(t, repo, 1, day, "X", models.CategoryGame, 30)
	accumulate(t, repo, 1, day, "Y", models.CategorySocial, 30)
	accumulate(t, repo, 1, day, "X", models.CategoryGame, 10)

	rows, err := repo.SumByApp(context.Background(), 1, day)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AppUsage{AppName: "X", Category: models.CategoryGame, UsageMins: 40}, rows[0])
	assert.Equal(t, models.AppUsage{AppName: "Y", Category: models.CategorySocial, UsageMins: 30}, rows[1])

	empty, err := repo.SumByApp(context.Background(), 1, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedgerRepository_TopApps(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	accumulate(t, repo, 1, day, "A", models.CategorySocial, 10)
	accumulate(t, repo, 1, day, "B", models.CategoryGame, 40)
	accumulate(t, repo, 1, day.AddDate(0, 0, 1), "A", models.CategorySocial, 35)
	accumulate(t, repo, 1, day.AddDate(0, 0, 1), "C", models.CategoryWork, 5)
	accumulate(t, repo, 1, day.AddDate(0, 0, 9), "C", models.CategoryWork, 500)

	rows, err := repo.TopApps(context.Background(), 1, day, day.AddDate(0, 0, 7), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].AppName)
	assert.Equal(t, 45, rows[0].UsageMins)
	assert.Equal(t, "B", rows[1].AppName)
}

func TestLedgerRepository_ActiveUserIDs(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	accumulate(t, repo, 3, day, "A", models.CategorySocial, 10)
	accumulate(t, repo, 1, day, "A", models.CategorySocial, 10)
	accumulate(t, repo, 1, day, "B", models.CategorySocial, 10)
	accumulate(t, repo, 2, day.AddDate(0, 0, -1), "A", models.CategorySocial, 10)

	ids, err := repo.ActiveUserIDs(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 3}, ids)
}

func TestLedgerRepository_GetEntryNotFound(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	_, err := repo.GetEntry(context.Background(), 1, day, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestLedgerRepository_AccumulateReturnsStoredRow(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))
	ctx := context.Background()

	first := &models.LedgerEntry{UserID: 1, RecordDate: day, AppName: "A", Category: models.CategorySocial, UsageMins: 20}
	require.NoError(t, repo.Accumulate(ctx, first))
	assert.Equal(t, 20, first.UsageMins)

	second := &models.LedgerEntry{UserID: 1, RecordDate: day, AppName: "A", Category: models.CategoryWork, UsageMins: 25}
	require.NoError(t, repo.Accumulate(ctx, second))
	assert.Equal(t, 45, second.UsageMins, "holds the running total, not the added minutes")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.CategorySocial, second.Category)
}

func TestLedgerRepository_DayTotal(t *testing.T) {
	repo := repository.NewLedgerRepository(repotest.NewDB(t))
	ctx := context.Background()

	total, err := repo.DayTotal(ctx, 1, day)
	require.NoError(t, err)
	assert.Zero(t, total)

	accumulate(t, repo, 1, day, "A", models.CategorySocial, 20)
	accumulate(t, repo, 1, day, "B", models.CategoryWork, 15)
	accumulate(t, repo, 1, day.AddDate(0, 0, -1), "A", models.CategorySocial, 99)
	accumulate(t, repo, 2, day, "A", models.CategorySocial, 99)

	total, err = repo.DayTotal(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 35, total)
}
