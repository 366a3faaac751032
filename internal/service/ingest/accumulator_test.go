package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	"github.com/aimd54/lifescope-insights/pkg/logger"
	"github.com/aimd54/lifescope-insights/test/mocks"
)

var day = time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

type fixture struct {
	acc   *Accumulator
	repo  *repository.LedgerRepository
	layer *cache.Layer
	store *mocks.Store
	clock *quartz.Mock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	clock := quartz.NewMock(t)
	clock.Set(day.Add(15 * time.Hour))

	store := mocks.NewStore()
	layer := cache.NewLayer(store, cache.DefaultTTLs(), logger.NewNop())
	repo := repository.NewLedgerRepository(repotest.NewDB(t))

	return &fixture{
		acc:   NewAccumulator(repo, layer, clock, time.UTC, logger.NewNop()),
		repo:  repo,
		layer: layer,
		store: store,
		clock: clock,
	}
}

func event(userID interface{}, date, app string, mins interface{}, category string) map[string]interface{} {
	return map[string]interface{}{
		"user_id":     userID,
		"record_date": date,
		"app_name":    app,
		"usage_mins":  mins,
		"category":    category,
	}
}

func TestIngest_AccumulatesSameKey(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 20, "social"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	out, err = f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 25, "social"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	entry, err := f.repo.GetEntry(ctx, 1, day, "A")
	require.NoError(t, err)
	assert.Equal(t, 45, entry.UsageMins)

	cached, ok := f.layer.GetLedger(ctx, 1, day)
	require.True(t, ok)
	assert.Equal(t, []models.AppUsage{{AppName: "A", Category: models.CategorySocial, UsageMins: 45}}, cached)
	assert.Equal(t, 25*time.Hour, f.store.TTL(cache.LedgerKey(1, day)))
}

func TestIngest_CachesWholeDayInInsertionOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, e := range []map[string]interface{}{
		event(1, "2025-02-03", "Y", 10, "game"),
		event(1, "2025-02-03", "X", 30, "work"),
		event(1, "2025-02-03", "Y", 5, "game"),
		event(2, "2025-02-03", "Z", 99, "work"),
	} {
		out, err := f.acc.Ingest(ctx, e)
		require.NoError(t, err)
		require.True(t, out.Accepted)
	}

	cached, ok := f.layer.GetLedger(ctx, 1, day)
	require.True(t, ok)
	assert.Equal(t, []models.AppUsage{
		{AppName: "Y", Category: models.CategoryGame, UsageMins: 15},
		{AppName: "X", Category: models.CategoryWork, UsageMins: 30},
	}, cached)
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		reason  string
	}{
		{
			name:    "missing usage",
			payload: map[string]interface{}{"user_id": 1, "record_date": "2025-02-03", "app_name": "A"},
			reason:  ReasonMissingField,
		},
		{
			name:    "null user",
			payload: event(nil, "2025-02-03", "A", 10, "social"),
			reason:  ReasonMissingField,
		},
		{name: "non numeric user", payload: event("abc", "2025-02-03", "A", 10, "social"), reason: ReasonInvalidUserID},
		{name: "negative user", payload: event(-3, "2025-02-03", "A", 10, "social"), reason: ReasonInvalidUserID},
		{name: "fractional user", payload: event(1.5, "2025-02-03", "A", 10, "social"), reason: ReasonInvalidUserID},
		{name: "bool user", payload: event(true, "2025-02-03", "A", 10, "social"), reason: ReasonInvalidUserID},
		{name: "blank app", payload: event(1, "2025-02-03", "   ", 10, "social"), reason: ReasonEmptyAppName},
		{name: "zero usage", payload: event(1, "2025-02-03", "A", 0, "social"), reason: ReasonUsageOutOfRange},
		{name: "usage over a day", payload: event(1, "2025-02-03", "A", 1441, "social"), reason: ReasonUsageOutOfRange},
		{name: "text usage", payload: event(1, "2025-02-03", "A", "lots", "social"), reason: ReasonInvalidUsage},
		{name: "fractional usage", payload: event(1, "2025-02-03", "A", 2.5, "social"), reason: ReasonInvalidUsage},
		{name: "hex usage", payload: event(1, "2025-02-03", "A", "0x14", "social"), reason: ReasonInvalidUsage},
		{name: "binary usage", payload: event(1, "2025-02-03", "A", "0b11", "social"), reason: ReasonInvalidUsage},
		{name: "underscored usage", payload: event(1, "2025-02-03", "A", "1_0", "social"), reason: ReasonInvalidUsage},
		{name: "blank usage", payload: event(1, "2025-02-03", "A", "  ", "social"), reason: ReasonInvalidUsage},
		{name: "hex user", payload: event("0x1", "2025-02-03", "A", 10, "social"), reason: ReasonInvalidUserID},
		{name: "bad date", payload: event(1, "2025/02/03", "A", 10, "social"), reason: ReasonInvalidDate},
		{name: "future date", payload: event(1, "2025-02-04", "A", 10, "social"), reason: ReasonFutureDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			before := testutil.ToFloat64(prommetrics.IngestRejectionsTotal.WithLabelValues(tt.reason))

			out, err := f.acc.Ingest(ctx, tt.payload)
			require.NoError(t, err)
			assert.False(t, out.Accepted)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Nil(t, out.Entry)

			entries, err := f.repo.ListDay(ctx, 1, day)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Equal(t, before+1, testutil.ToFloat64(prommetrics.IngestRejectionsTotal.WithLabelValues(tt.reason)))
		})
	}
}

func TestIngest_AcceptedNumericForms(t *testing.T) {
	forms := []interface{}{7, int64(7), float64(7), json.Number("7"), "7", " 7 "}

	for _, form := range forms {
		t.Run(fmt.Sprintf("%T", form), func(t *testing.T) {
			f := setup(t)
			out, err := f.acc.Ingest(context.Background(), event(form, "2025-02-03", "A", form, "work"))
			require.NoError(t, err)
			require.True(t, out.Accepted, "reason: %s", out.Reason)
			assert.Equal(t, uint(7), out.Entry.UserID)
			assert.Equal(t, 7, out.Entry.UsageMins)
		})
	}
}

func TestIngest_LeadingZerosAreDecimal(t *testing.T) {
	f := setup(t)

	out, err := f.acc.Ingest(context.Background(), event("010", "2025-02-03", "A", "010", "work"))
	require.NoError(t, err)
	require.True(t, out.Accepted, "reason: %s", out.Reason)
	assert.Equal(t, uint(10), out.Entry.UserID)
	assert.Equal(t, 10, out.Entry.UsageMins)
}

func TestIngest_OutcomeCarriesRunningTotal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 20, "social"))
	require.NoError(t, err)
	assert.Equal(t, 20, first.Entry.UsageMins)

	second, err := f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 25, "social"))
	require.NoError(t, err)
	assert.Equal(t, 45, second.Entry.UsageMins)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
}

func TestIngest_UsageBoundsInclusive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 1, "work"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	out, err = f.acc.Ingest(ctx, event(1, "2025-02-03", "B", 1440, "work"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
}

func TestIngest_NormalizesCategoryAndTrimsApp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.acc.Ingest(ctx, event(1, "2025-02-03", "  Notes ", 10, "Others"))
	require.NoError(t, err)
	require.True(t, out.Accepted)
	assert.Equal(t, "Notes", out.Entry.AppName)
	assert.Equal(t, models.CategoryOther, out.Entry.Category)

	payload := event(1, "2025-02-03", "Chat", 10, "")
	delete(payload, "category")
	out, err = f.acc.Ingest(ctx, payload)
	require.NoError(t, err)
	require.True(t, out.Accepted)
	assert.Equal(t, models.CategoryOther, out.Entry.Category)
}

func TestIngest_TodayFollowsConfiguredTimezone(t *testing.T) {
	f := setup(t)
	f.clock.Set(day.Add(23*time.Hour + 30*time.Minute))
	ahead := NewAccumulator(f.repo, f.layer, f.clock, time.FixedZone("UTC+8", 8*3600), logger.NewNop())

	out, err := ahead.Ingest(context.Background(), event(1, "2025-02-04", "A", 10, "work"))
	require.NoError(t, err)
	assert.True(t, out.Accepted, "it is already Feb 4 at UTC+8")

	out, err = f.acc.Ingest(context.Background(), event(1, "2025-02-04", "A", 10, "work"))
	require.NoError(t, err)
	assert.Equal(t, ReasonFutureDate, out.Reason)
}

type failingLedger struct {
	err error
}

func (f *failingLedger) Accumulate(context.Context, *models.LedgerEntry) error {
	return f.err
}

func (f *failingLedger) SumByApp(context.Context, uint, time.Time) ([]models.AppUsage, error) {
	return nil, f.err
}

func TestIngest_StorageFailureIsReturned(t *testing.T) {
	store := mocks.NewStore()
	layer := cache.NewLayer(store, cache.DefaultTTLs(), logger.NewNop())
	clock := quartz.NewMock(t)
	clock.Set(day)

	storeErr := fmt.Errorf("%w: accumulate: %w", apperr.ErrStorage, errors.New("connection refused"))
	acc := NewAccumulator(&failingLedger{err: storeErr}, layer, clock, time.UTC, logger.NewNop())

	_, err := acc.Ingest(context.Background(), event(1, "2025-02-03", "A", 10, "work"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.False(t, store.Has(cache.LedgerKey(1, day)))
}

func TestIngest_CacheFailureDoesNotFailIngest(t *testing.T) {
	f := setup(t)
	f.store.Fail = true

	out, err := f.acc.Ingest(context.Background(), event(1, "2025-02-03", "A", 10, "work"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	entry, err := f.repo.GetEntry(context.Background(), 1, day, "A")
	require.NoError(t, err)
	assert.Equal(t, 10, entry.UsageMins)
}

// reloadFailingLedger commits writes but cannot read the day back.
type reloadFailingLedger struct {
	*repository.LedgerRepository
}

func (reloadFailingLedger) SumByApp(context.Context, uint, time.Time) ([]models.AppUsage, error) {
	return nil, fmt.Errorf("%w: sum ledger by app: %w", apperr.ErrStorage, errors.New("connection reset"))
}

func TestIngest_FailedReloadDropsCachedDay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 20, "social"))
	require.NoError(t, err)
	require.True(t, f.store.Has(cache.LedgerKey(1, day)))

	acc := NewAccumulator(reloadFailingLedger{f.repo}, f.layer, f.clock, time.UTC, logger.NewNop())
	out, err := acc.Ingest(ctx, event(1, "2025-02-03", "A", 25, "social"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, 45, out.Entry.UsageMins)
	assert.False(t, f.store.Has(cache.LedgerKey(1, day)), "the outdated day must not stay cached")
}

func TestIngest_FailedCacheWriteDropsCachedDay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 20, "social"))
	require.NoError(t, err)

	f.store.FailWrites = true
	_, err = f.acc.Ingest(ctx, event(1, "2025-02-03", "A", 25, "social"))
	require.NoError(t, err)
	f.store.FailWrites = false

	_, ok := f.layer.GetLedger(ctx, 1, day)
	assert.False(t, ok)
}
