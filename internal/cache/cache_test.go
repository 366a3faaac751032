package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/pkg/logger"
	"github.com/aimd54/lifescope-insights/test/mocks"
)

var day = time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client, time.Second)
}

func TestKeyShapes(t *testing.T) {
	assert.Equal(t, "user:1:daily:2025-02-03", LedgerKey(1, day))
	assert.Equal(t, "user:1:metrics:2025-02-03", MetricsKey(1, day))
	assert.Equal(t, "user:1:report:2025-02-03", ReportKey(1, day))
	assert.Equal(t, "user:1:weekly_report:2025-02-03", WeeklyReportKey(1, day))
}

func TestRedisStore_SetGetMiss(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok, "a miss is not an error")

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Hour))
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(value))
	assert.Equal(t, time.Hour, mr.TTL("k"))
}

func TestRedisStore_ErrorWhenDown(t *testing.T) {
	mr, store := setupRedis(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestLayer_LedgerRoundTripAndTTL(t *testing.T) {
	mr, store := setupRedis(t)
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()

	_, ok := layer.GetLedger(ctx, 1, day)
	assert.False(t, ok)

	entries := []models.AppUsage{
		{AppName: "X", Category: models.CategoryGame, UsageMins: 30},
		{AppName: "Y", Category: models.CategorySocial, UsageMins: 30},
	}
	layer.PutLedger(ctx, 1, day, entries)

	got, ok := layer.GetLedger(ctx, 1, day)
	require.True(t, ok)
	assert.Equal(t, entries, got)
	assert.Equal(t, 25*time.Hour, mr.TTL(LedgerKey(1, day)))

	raw, err := mr.Get(LedgerKey(1, day))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"app_name":"X","category":"game","usage_mins":30},{"app_name":"Y","category":"social","usage_mins":30}]`, raw)
}

func TestLayer_MetricsAndReport(t *testing.T) {
	mr, store := setupRedis(t)
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()

	m := &models.DailyMetrics{ID: 4, UserID: 1, MetricDate: day, TotalActiveMins: 90, SocialMins: 90, TopApp: "Chat"}
	layer.PutMetrics(ctx, m)

	got, ok := layer.GetMetrics(ctx, 1, day)
	require.True(t, ok)
	assert.Equal(t, 90, got.TotalActiveMins)
	assert.Equal(t, "Chat", got.TopApp)
	assert.True(t, got.MetricDate.Equal(day))
	assert.Equal(t, 7*24*time.Hour, mr.TTL(MetricsKey(1, day)))

	layer.PutReport(ctx, 1, day, "hello")
	content, ok := layer.GetReport(ctx, 1, day)
	require.True(t, ok)
	assert.Equal(t, "hello", content)
	raw, err := mr.Get(ReportKey(1, day))
	require.NoError(t, err)
	assert.Equal(t, "hello", raw, "report content is stored as a plain string")
}

func TestLayer_FailuresDegradeToMiss(t *testing.T) {
	store := mocks.NewStore()
	store.Fail = true
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()

	layer.PutMetrics(ctx, &models.DailyMetrics{UserID: 1, MetricDate: day})
	_, ok := layer.GetMetrics(ctx, 1, day)
	assert.False(t, ok)
	assert.Equal(t, 0, layer.EvictStale(ctx, 1, 7*24*time.Hour, day))
}

func TestLayer_CorruptValueIsMiss(t *testing.T) {
	store := mocks.NewStore()
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, MetricsKey(1, day), []byte("{not json"), time.Hour))
	_, ok := layer.GetMetrics(ctx, 1, day)
	assert.False(t, ok)
}

func TestLayer_NilIsEmpty(t *testing.T) {
	var layer *Layer
	ctx := context.Background()

	layer.PutReport(ctx, 1, day, "x")
	_, ok := layer.GetReport(ctx, 1, day)
	assert.False(t, ok)
	assert.Equal(t, 0, layer.EvictStale(ctx, 1, time.Hour, day))
}

func TestLayer_EvictStale(t *testing.T) {
	_, store := setupRedis(t)
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()
	now := day.Add(10 * time.Hour)

	old := day.AddDate(0, 0, -8)
	edge := day.AddDate(0, 0, -7)
	layer.PutLedger(ctx, 1, old, nil)
	layer.PutReport(ctx, 1, old, "old")
	layer.PutLedger(ctx, 1, edge, nil)
	layer.PutMetrics(ctx, &models.DailyMetrics{UserID: 1, MetricDate: day})
	layer.PutLedger(ctx, 2, old, nil)
	require.NoError(t, store.Set(ctx, "user:1:profile", []byte("x"), time.Hour))

	removed := layer.EvictStale(ctx, 1, 7*24*time.Hour, now)
	assert.Equal(t, 2, removed)

	keys, err := store.Scan(ctx, "user:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		LedgerKey(1, edge),
		MetricsKey(1, day),
		LedgerKey(2, old),
		"user:1:profile",
	}, keys)
}

func TestRedisStore_DeleteMatching(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("user:1:daily:%03d", i), "x"))
	}
	require.NoError(t, mr.Set("user:10:daily:2025-02-03", "x"))

	removed, err := store.DeleteMatching(ctx, "user:1:")
	require.NoError(t, err)
	assert.Equal(t, 250, removed)
	assert.Equal(t, []string{"user:10:daily:2025-02-03"}, mr.Keys())
}

func TestLayer_ClearUser(t *testing.T) {
	store := mocks.NewStore()
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()

	layer.PutLedger(ctx, 1, day, nil)
	layer.PutReport(ctx, 1, day, "r")
	layer.PutLedger(ctx, 2, day, nil)

	assert.Equal(t, 2, layer.ClearUser(ctx, 1))
	assert.False(t, store.Has(LedgerKey(1, day)))
	assert.True(t, store.Has(LedgerKey(2, day)))

	store.Fail = true
	assert.Equal(t, 0, layer.ClearUser(ctx, 2))

	var nilLayer *Layer
	assert.Equal(t, 0, nilLayer.ClearUser(ctx, 1))
}

func TestRedisStore_SetIfAbsent(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	ok, err := store.SetIfAbsent(ctx, "k", []byte("first"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetIfAbsent(ctx, "k", []byte("second"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "first", value)
	assert.Equal(t, time.Hour, mr.TTL("k"))
}

func TestLayer_FailedWriteDropsPreviousValue(t *testing.T) {
	store := mocks.NewStore()
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()

	layer.PutLedger(ctx, 1, day, []models.AppUsage{{AppName: "A", UsageMins: 20}})
	layer.PutMetrics(ctx, &models.DailyMetrics{UserID: 1, MetricDate: day, TotalActiveMins: 20})

	store.FailWrites = true
	layer.PutLedger(ctx, 1, day, []models.AppUsage{{AppName: "A", UsageMins: 45}})
	layer.PutMetrics(ctx, &models.DailyMetrics{UserID: 1, MetricDate: day, TotalActiveMins: 45})
	store.FailWrites = false

	_, ok := layer.GetLedger(ctx, 1, day)
	assert.False(t, ok, "an outdated ledger must not survive a failed refresh")
	_, ok = layer.GetMetrics(ctx, 1, day)
	assert.False(t, ok, "outdated metrics must not survive a failed refresh")
}

func TestLayer_FillMetricsKeepsNewerValue(t *testing.T) {
	store := mocks.NewStore()
	layer := NewLayer(store, DefaultTTLs(), logger.NewNop())
	ctx := context.Background()

	layer.FillMetrics(ctx, &models.DailyMetrics{UserID: 1, MetricDate: day, TotalActiveMins: 20})
	m, ok := layer.GetMetrics(ctx, 1, day)
	require.True(t, ok)
	assert.Equal(t, 20, m.TotalActiveMins)
	assert.Equal(t, DefaultTTLs().Metrics, store.TTL(MetricsKey(1, day)))

	layer.PutMetrics(ctx, &models.DailyMetrics{UserID: 1, MetricDate: day, TotalActiveMins: 45})
	layer.FillMetrics(ctx, &models.DailyMetrics{UserID: 1, MetricDate: day, TotalActiveMins: 20})

	m, ok = layer.GetMetrics(ctx, 1, day)
	require.True(t, ok)
	assert.Equal(t, 45, m.TotalActiveMins)

	layer.DropLedger(ctx, 1, day)
	var nilLayer *Layer
	nilLayer.FillMetrics(ctx, m)
	nilLayer.DropLedger(ctx, 1, day)
}
