package badges

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/cache"
	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/internal/repository"
	"github.com/aimd54/lifescope-insights/internal/repository/repotest"
	"github.com/aimd54/lifescope-insights/internal/service/aggregator"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

var day = time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc         *Service
	badgeRepo   *repository.BadgeRepository
	metricsRepo *repository.MetricsRepository
	clock       *quartz.Mock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db := repotest.NewDB(t)
	var layer *cache.Layer
	metricsRepo := repository.NewMetricsRepository(db)
	agg := aggregator.NewService(repository.NewLedgerRepository(db), metricsRepo, layer, logger.NewNop())

	clock := quartz.NewMock(t)
	clock.Set(day.Add(22 * time.Hour))

	badgeRepo := repository.NewBadgeRepository(db)
	return &fixture{
		svc:         NewService(badgeRepo, agg, nil, clock, logger.NewNop()),
		badgeRepo:   badgeRepo,
		metricsRepo: metricsRepo,
		clock:       clock,
	}
}

func (f *fixture) badge(t *testing.T, code, kind, metric string, value float64) *models.Badge {
	t.Helper()
	b := &models.Badge{
		Code:            code,
		Name:            code,
		Icon:            "*",
		ConditionType:   kind,
		ConditionMetric: metric,
		ConditionValue:  value,
	}
	require.NoError(t, f.badgeRepo.Create(context.Background(), b))
	return b
}

func (f *fixture) metrics(t *testing.T, userID uint, date time.Time, social, work int) {
	t.Helper()
	require.NoError(t, f.metricsRepo.Upsert(context.Background(), &models.DailyMetrics{
		UserID:          userID,
		MetricDate:      date,
		SocialMins:      social,
		WorkMins:        work,
		TotalActiveMins: social + work,
	}))
}

func TestEvaluateAndAward_GrantsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.badge(t, "social_butterfly", KindDailyOver, "social_mins", 240)
	f.metrics(t, 1, day, 250, 0)

	before := testutil.ToFloat64(prommetrics.BadgesAwardedTotal.WithLabelValues("social_butterfly"))

	awarded, err := f.svc.EvaluateAndAward(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"social_butterfly"}, awarded)

	awarded, err = f.svc.EvaluateAndAward(ctx, 1, day)
	require.NoError(t, err)
	assert.Empty(t, awarded)

	views, err := f.svc.GetUserBadges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "social_butterfly", views[0].Code)
	assert.True(t, views[0].EarnedAt.Equal(day.Add(22*time.Hour)))

	assert.Equal(t, before+1, testutil.ToFloat64(prommetrics.BadgesAwardedTotal.WithLabelValues("social_butterfly")))
	assert.Equal(t, float64(1), testutil.ToFloat64(prommetrics.ActiveBadgeHolders.WithLabelValues("social_butterfly")))
}

func TestEvaluateAndAward_ThresholdIsStrict(t *testing.T) {
	f := setup(t)
	f.badge(t, "social_butterfly", KindDailyOver, "social_mins", 240)
	f.metrics(t, 1, day, 240, 0)

	awarded, err := f.svc.EvaluateAndAward(context.Background(), 1, day)
	require.NoError(t, err)
	assert.Empty(t, awarded)
}

func TestEvaluateAndAward_CatalogOrder(t *testing.T) {
	f := setup(t)
	f.badge(t, "worker", KindDailyWork, "", 60)
	f.badge(t, "light_day", KindDailyUnder, "", 200)
	f.badge(t, "social", KindDailySocial, "", 10)
	f.badge(t, "gamer", KindDailyGame, "", 10)
	f.metrics(t, 1, day, 20, 90)

	awarded, err := f.svc.EvaluateAndAward(context.Background(), 1, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"worker", "light_day", "social"}, awarded)
}

func TestEvaluateAndAward_NoMetrics(t *testing.T) {
	f := setup(t)
	f.badge(t, "social_butterfly", KindDailyOver, "social_mins", 240)

	awarded, err := f.svc.EvaluateAndAward(context.Background(), 1, day)
	assert.ErrorIs(t, err, apperr.ErrNoData)
	assert.Empty(t, awarded)
}

func TestEvaluateAndAward_SkipsUnknownConditions(t *testing.T) {
	f := setup(t)
	f.badge(t, "mystery", "weekly_streak", "", 1)
	f.badge(t, "steps", KindDailyOver, "steps", 1)
	f.badge(t, "busy", KindDailyOver, "", 100)
	f.metrics(t, 1, day, 100, 100)

	awarded, err := f.svc.EvaluateAndAward(context.Background(), 1, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"busy"}, awarded)
}

func TestEvaluateAndAward_ConcurrentRunsGrantOnce(t *testing.T) {
	f := setup(t)
	f.badge(t, "social_butterfly", KindDailyOver, "social_mins", 240)
	f.metrics(t, 1, day, 300, 0)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			awarded, err := f.svc.EvaluateAndAward(context.Background(), 1, day)
			assert.NoError(t, err)
			mu.Lock()
			total += len(awarded)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	views, err := f.svc.GetUserBadges(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestGetUserBadges_OrderedByEarnedAt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.badge(t, "first", KindDailyOver, "", 10)
	f.badge(t, "second", KindDailyOver, "", 100)
	f.metrics(t, 1, day, 50, 0)
	f.metrics(t, 1, day.AddDate(0, 0, 1), 150, 0)

	_, err := f.svc.EvaluateAndAward(ctx, 1, day)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.EvaluateAndAward(ctx, 1, day.AddDate(0, 0, 1))
	require.NoError(t, err)

	views, err := f.svc.GetUserBadges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "first", views[0].Code)
	assert.Equal(t, "second", views[1].Code)

	catalog, err := f.svc.GetBadgeCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, 2)
}

// flakyBadgeRepo fails the award of one badge.
type flakyBadgeRepo struct {
	BadgeRepository
	failBadgeID uint
}

func (r *flakyBadgeRepo) Award(ctx context.Context, userID, badgeID uint, earnedAt time.Time) (bool, error) {
	if badgeID == r.failBadgeID {
		return false, fmt.Errorf("%w: award badge: %w", apperr.ErrStorage, errors.New("connection reset"))
	}
	return r.BadgeRepository.Award(ctx, userID, badgeID, earnedAt)
}

func TestEvaluateAndAward_StopsOnStorageFailure(t *testing.T) {
	f := setup(t)
	f.badge(t, "a", KindDailyOver, "", 10)
	broken := f.badge(t, "b", KindDailyOver, "", 10)
	f.badge(t, "c", KindDailyOver, "", 10)
	f.metrics(t, 1, day, 50, 0)

	svc := NewService(&flakyBadgeRepo{BadgeRepository: f.badgeRepo, failBadgeID: broken.ID}, f.svc.metrics, nil, f.clock, logger.NewNop())

	awarded, err := svc.EvaluateAndAward(context.Background(), 1, day)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, []string{"a"}, awarded)

	ids, err := f.badgeRepo.GetEarnedBadgeIDs(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1, "grants before the failure stay committed")
}
