package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/internal/repository"
	"github.com/aimd54/lifescope-insights/internal/repository/repotest"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// Monday.
var weekStart = time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc         *Service
	metricsRepo *repository.MetricsRepository
	ledgerRepo  *repository.LedgerRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := repotest.NewDB(t)
	f := &fixture{
		metricsRepo: repository.NewMetricsRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
	f.svc = NewService(f.metricsRepo, f.ledgerRepo, logger.NewNop())
	return f
}

func (f *fixture) day(t *testing.T, offset int, social, work int) {
	t.Helper()
	require.NoError(t, f.metricsRepo.Upsert(context.Background(), &models.DailyMetrics{
		UserID:          1,
		MetricDate:      weekStart.AddDate(0, 0, offset),
		SocialMins:      social,
		WorkMins:        work,
		TotalActiveMins: social + work,
	}))
}

func (f *fixture) usage(t *testing.T, offset int, app string, mins int) {
	t.Helper()
	require.NoError(t, f.ledgerRepo.Accumulate(context.Background(), &models.LedgerEntry{
		UserID:     1,
		RecordDate: weekStart.AddDate(0, 0, offset),
		AppName:    app,
		Category:   models.CategoryWork,
		UsageMins:  mins,
	}))
}

func TestCompareTotals(t *testing.T) {
	tests := []struct {
		name              string
		current, previous int
		want              Change
	}{
		{"no previous", 100, 0, Change{"+", 0}},
		{"increase", 150, 100, Change{"+", 50}},
		{"decrease", 50, 200, Change{"-", 75}},
		{"flat", 80, 80, Change{"+", 0}},
		{"rounds", 101, 300, Change{"-", 66}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareTotals(tt.current, tt.previous))
		})
	}
	assert.Equal(t, "-75%", CompareTotals(50, 200).String())
}

func TestWeekly_Summary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.day(t, -3, 100, 0)
	f.day(t, 0, 60, 120)
	f.day(t, 2, 30, 10)
	f.day(t, 6, 200, 100)
	f.day(t, 7, 999, 0)
	f.usage(t, 0, "IDE", 120)
	f.usage(t, 6, "IDE", 100)
	f.usage(t, 6, "Chat", 200)
	f.usage(t, 7, "Chat", 999)

	w, err := f.svc.Weekly(ctx, 1, weekStart.Add(9*time.Hour))
	require.NoError(t, err)

	assert.True(t, w.WeekStart.Equal(weekStart))
	assert.True(t, w.WeekEnd.Equal(weekStart.AddDate(0, 0, 6)))
	assert.Equal(t, 3, w.ActiveDays)
	assert.Equal(t, 520, w.TotalMins)
	assert.Equal(t, 290, w.SocialMins)
	assert.Equal(t, 230, w.WorkMins)
	assert.InDelta(t, 173.3, w.AvgMinsPerDay, 0.001)
	assert.True(t, w.PeakDay.Date.Equal(weekStart.AddDate(0, 0, 6)))
	assert.Equal(t, 300, w.PeakDay.Mins)
	assert.True(t, w.LowDay.Date.Equal(weekStart.AddDate(0, 0, 2)))
	assert.Equal(t, 40, w.LowDay.Mins)
	assert.Equal(t, "IDE", w.TopApp)
	assert.Equal(t, 220, w.TopAppMins)
	assert.Equal(t, 100, w.PreviousTotal)
	assert.Equal(t, Change{"+", 420}, w.Change)
}

func TestWeekly_NoData(t *testing.T) {
	f := setup(t)
	f.day(t, 7, 10, 10)

	_, err := f.svc.Weekly(context.Background(), 1, weekStart)
	assert.ErrorIs(t, err, apperr.ErrNoData)
}

func TestTopApps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.usage(t, 0, "A", 10)
	f.usage(t, 0, "B", 30)
	f.usage(t, 1, "A", 20)
	f.usage(t, 1, "C", 30)

	apps, err := f.svc.TopApps(ctx, 1, weekStart, weekStart.AddDate(0, 0, 2), 0)
	require.NoError(t, err)
	require.Len(t, apps, 3)
	assert.Equal(t, "A", apps[0].AppName)
	assert.Equal(t, 30, apps[0].UsageMins)
	assert.Equal(t, "B", apps[1].AppName, "ties keep first-seen order")
	assert.Equal(t, "C", apps[2].AppName)

	apps, err = f.svc.TopApps(ctx, 1, weekStart, weekStart.AddDate(0, 0, 1), 1)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "B", apps[0].AppName)

	apps, err = f.svc.TopApps(ctx, 2, weekStart, weekStart.AddDate(0, 0, 1), 5)
	require.NoError(t, err)
	assert.NotNil(t, apps)
	assert.Empty(t, apps)
}

func TestTopApps_InvalidRange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.TopApps(ctx, 1, weekStart, weekStart, 5)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.TopApps(ctx, 1, weekStart, weekStart.AddDate(2, 0, 0), 5)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
