package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// Key kinds, used in keys and as metric labels.
const (
	KindLedger       = "daily"
	KindMetrics      = "metrics"
	KindReport       = "report"
	KindWeeklyReport = "weekly_report"
)

// TTLs holds the expiry of each cached value kind.
type TTLs struct {
	Ledger  time.Duration
	Metrics time.Duration
	Report  time.Duration
}

// DefaultTTLs keeps the raw ledger past local midnight and the derived
// values for a reporting week.
func DefaultTTLs() TTLs {
	return TTLs{
		Ledger:  25 * time.Hour,
		Metrics: 7 * 24 * time.Hour,
		Report:  7 * 24 * time.Hour,
	}
}

// LedgerKey is user:{id}:daily:{date}.
func LedgerKey(userID uint, date time.Time) string {
	return key(userID, KindLedger, date)
}

// MetricsKey is user:{id}:metrics:{date}.
func MetricsKey(userID uint, date time.Time) string {
	return key(userID, KindMetrics, date)
}

// ReportKey is user:{id}:report:{date}.
func ReportKey(userID uint, date time.Time) string {
	return key(userID, KindReport, date)
}

// WeeklyReportKey is user:{id}:weekly_report:{week start}.
func WeeklyReportKey(userID uint, weekStart time.Time) string {
	return key(userID, KindWeeklyReport, weekStart)
}

func key(userID uint, kind string, date time.Time) string {
	return fmt.Sprintf("user:%d:%s:%s", userID, kind, date.Format(models.DateLayout))
}

func userPrefix(userID uint) string {
	return fmt.Sprintf("user:%d:", userID)
}

// Layer is the typed cache used by the services. It never returns cache
// errors: a failure is logged, counted and turned into a miss or a no-op.
// A nil *Layer behaves as an always-empty cache.
type Layer struct {
	store Store
	ttl   TTLs
	log   *logger.Logger
}

// NewLayer creates a cache layer over store.
func NewLayer(store Store, ttl TTLs, log *logger.Logger) *Layer {
	return &Layer{store: store, ttl: ttl, log: log}
}

// PutLedger caches the full ledger of a user's day.
func (l *Layer) PutLedger(ctx context.Context, userID uint, date time.Time, entries []models.AppUsage) {
	l.putJSON(ctx, KindLedger, LedgerKey(userID, date), entries, l.ttl.Ledger)
}

// DropLedger removes the cached ledger of a user's day.
func (l *Layer) DropLedger(ctx context.Context, userID uint, date time.Time) {
	l.drop(ctx, LedgerKey(userID, date))
}

// GetLedger returns the cached ledger of a user's day.
func (l *Layer) GetLedger(ctx context.Context, userID uint, date time.Time) ([]models.AppUsage, bool) {
	var entries []models.AppUsage
	if !l.getJSON(ctx, KindLedger, LedgerKey(userID, date), &entries) {
		return nil, false
	}
	return entries, true
}

// PutMetrics caches the aggregated metrics of a user's day.
func (l *Layer) PutMetrics(ctx context.Context, m *models.DailyMetrics) {
	l.putJSON(ctx, KindMetrics, MetricsKey(m.UserID, m.MetricDate), m, l.ttl.Metrics)
}

// FillMetrics caches metrics read from the durable store. It never replaces
// a value already cached, which may have been written by a newer
// aggregation.
func (l *Layer) FillMetrics(ctx context.Context, m *models.DailyMetrics) {
	if l == nil {
		return
	}
	key := MetricsKey(m.UserID, m.MetricDate)
	raw, err := json.Marshal(m)
	if err != nil {
		l.fail("encode", key, err)
		return
	}
	if _, err := l.store.SetIfAbsent(ctx, key, raw, l.ttl.Metrics); err != nil {
		l.fail("setnx", key, err)
		l.drop(ctx, key)
	}
}

// GetMetrics returns the cached metrics of a user's day.
func (l *Layer) GetMetrics(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, bool) {
	var m models.DailyMetrics
	if !l.getJSON(ctx, KindMetrics, MetricsKey(userID, date), &m) {
		return nil, false
	}
	return &m, true
}

// PutReport caches the content of a daily report as a plain string.
func (l *Layer) PutReport(ctx context.Context, userID uint, date time.Time, content string) {
	l.putRaw(ctx, KindReport, ReportKey(userID, date), []byte(content), l.ttl.Report)
}

// GetReport returns the cached content of a daily report.
func (l *Layer) GetReport(ctx context.Context, userID uint, date time.Time) (string, bool) {
	raw, ok := l.getRaw(ctx, KindReport, ReportKey(userID, date))
	return string(raw), ok
}

// PutWeeklyReport caches the content of a weekly report.
func (l *Layer) PutWeeklyReport(ctx context.Context, userID uint, weekStart time.Time, content string) {
	l.putRaw(ctx, KindWeeklyReport, WeeklyReportKey(userID, weekStart), []byte(content), l.ttl.Report)
}

// GetWeeklyReport returns the cached content of a weekly report.
func (l *Layer) GetWeeklyReport(ctx context.Context, userID uint, weekStart time.Time) (string, bool) {
	raw, ok := l.getRaw(ctx, KindWeeklyReport, WeeklyReportKey(userID, weekStart))
	return string(raw), ok
}

// EvictStale deletes the user's cached values whose date is strictly before
// now minus olderThan and returns how many keys were removed.
func (l *Layer) EvictStale(ctx context.Context, userID uint, olderThan time.Duration, now time.Time) int {
	if l == nil {
		return 0
	}

	cutoff := models.Day(now.Add(-olderThan))
	keys, err := l.store.Scan(ctx, userPrefix(userID))
	if err != nil {
		l.fail("scan", "", err)
		return 0
	}

	var stale []string
	for _, k := range keys {
		idx := strings.LastIndexByte(k, ':')
		if idx < 0 {
			continue
		}
		date, err := time.Parse(models.DateLayout, k[idx+1:])
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			stale = append(stale, k)
		}
	}

	if err := l.store.Delete(ctx, stale...); err != nil {
		l.fail("delete", "", err)
		return 0
	}
	return len(stale)
}

// ClearUser drops every cached value of a user and returns how many keys
// were removed.
func (l *Layer) ClearUser(ctx context.Context, userID uint) int {
	if l == nil {
		return 0
	}
	n, err := l.store.DeleteMatching(ctx, userPrefix(userID))
	if err != nil {
		l.fail("delete_matching", userPrefix(userID), err)
	}
	return n
}

func (l *Layer) putJSON(ctx context.Context, kind, key string, value interface{}, ttl time.Duration) {
	if l == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		l.fail("encode", key, err)
		l.drop(ctx, key)
		return
	}
	l.putRaw(ctx, kind, key, raw, ttl)
}

func (l *Layer) getJSON(ctx context.Context, kind, key string, dst interface{}) bool {
	raw, ok := l.getRaw(ctx, kind, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		l.fail("decode", key, err)
		return false
	}
	return true
}

func (l *Layer) putRaw(ctx context.Context, kind, key string, value []byte, ttl time.Duration) {
	if l == nil {
		return
	}
	if err := l.store.Set(ctx, key, value, ttl); err != nil {
		l.fail("set", key, err)
		// The previous value no longer matches the durable store.
		l.drop(ctx, key)
		return
	}
	l.log.Debug().Str("key", key).Str("kind", kind).Dur("ttl", ttl).Msg("Cache populated")
}

func (l *Layer) getRaw(ctx context.Context, kind, key string) ([]byte, bool) {
	if l == nil {
		return nil, false
	}
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.fail("get", key, err)
		prommetrics.RecordCacheRequest(kind, "error")
		return nil, false
	}
	if !ok {
		prommetrics.RecordCacheRequest(kind, "miss")
		return nil, false
	}
	prommetrics.RecordCacheRequest(kind, "hit")
	return raw, true
}

// drop deletes key, best effort.
func (l *Layer) drop(ctx context.Context, key string) {
	if l == nil {
		return
	}
	if err := l.store.Delete(ctx, key); err != nil {
		l.fail("delete", key, err)
	}
}

func (l *Layer) fail(op, key string, err error) {
	prommetrics.RecordCacheError(op)
	l.log.Warn().Err(err).Str("op", op).Str("key", key).Msg("Cache operation failed, falling back to durable store")
}
