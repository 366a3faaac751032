// Package aggregator folds a user's daily usage ledger into DailyMetrics.
package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

const (
	sourceCache = "cache"
	sourceStore = "store"
)

// LedgerReader reads the grouped per-app ledger of a day.
type LedgerReader interface {
	SumByApp(ctx context.Context, userID uint, date time.Time) ([]models.AppUsage, error)
	DayTotal(ctx context.Context, userID uint, date time.Time) (int, error)
}

// MetricsStore persists daily metrics.
type MetricsStore interface {
	Upsert(ctx context.Context, m *models.DailyMetrics) error
	GetByDate(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error)
}

// Cache is the subset of the cache layer used for aggregation.
type Cache interface {
	GetLedger(ctx context.Context, userID uint, date time.Time) ([]models.AppUsage, bool)
	PutLedger(ctx context.Context, userID uint, date time.Time, entries []models.AppUsage)
	PutMetrics(ctx context.Context, m *models.DailyMetrics)
	FillMetrics(ctx context.Context, m *models.DailyMetrics)
	GetMetrics(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, bool)
}

// Service aggregates ledgers into daily metrics.
type Service struct {
	ledger  LedgerReader
	metrics MetricsStore
	cache   Cache
	log     *logger.Logger
}

// NewService creates a new aggregator service.
func NewService(ledger LedgerReader, metrics MetricsStore, cache Cache, log *logger.Logger) *Service {
	return &Service{
		ledger:  ledger,
		metrics: metrics,
		cache:   cache,
		log:     log,
	}
}

// Aggregate recomputes and stores the metrics of a user's day. Running it
// again over an unchanged ledger leaves the stored record unchanged.
func (s *Service) Aggregate(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error) {
	start := time.Now()
	day := models.Day(date)

	rows, source, err := s.loadLedger(ctx, userID, day)
	if err != nil {
		prommetrics.RecordAggregationRun("error", source)
		return nil, err
	}

	m := Fold(userID, day, rows)
	if err := s.metrics.Upsert(ctx, m); err != nil {
		prommetrics.RecordAggregationRun("error", source)
		s.log.Error().
			Err(err).
			Uint("user_id", userID).
			Str("date", day.Format(models.DateLayout)).
			Msg("Failed to store daily metrics")
		return nil, err
	}

	s.cache.PutMetrics(ctx, m)

	prommetrics.RecordAggregationRun("success", source)
	prommetrics.ObserveAggregationDuration(time.Since(start).Seconds())

	s.log.Debug().
		Uint("user_id", userID).
		Str("date", day.Format(models.DateLayout)).
		Str("source", source).
		Int("apps", len(rows)).
		Int("total_mins", m.TotalActiveMins).
		Str("top_app", m.TopApp).
		Msg("Daily metrics aggregated")

	return m, nil
}

// GetMetrics returns the stored metrics of a user's day without
// recomputing them. It fails with apperr.ErrNoData when the day was never
// aggregated.
func (s *Service) GetMetrics(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error) {
	day := models.Day(date)
	if m, ok := s.cache.GetMetrics(ctx, userID, day); ok {
		return m, nil
	}

	m, err := s.metrics.GetByDate(ctx, userID, day)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrNoData
	}
	if err != nil {
		return nil, err
	}

	s.cache.FillMetrics(ctx, m)
	return m, nil
}

// loadLedger prefers the cached day ledger, but only while its total still
// matches the durable one. Ledger minutes only grow, so equal totals mean
// the cached snapshot is current.
func (s *Service) loadLedger(ctx context.Context, userID uint, day time.Time) ([]models.AppUsage, string, error) {
	cached, ok := s.cache.GetLedger(ctx, userID, day)
	if ok {
		total, err := s.ledger.DayTotal(ctx, userID, day)
		if err != nil {
			return nil, sourceStore, err
		}
		if sumMinutes(cached) == total {
			return cached, sourceCache, nil
		}
		s.log.Warn().
			Uint("user_id", userID).
			Str("date", day.Format(models.DateLayout)).
			Int("cached_mins", sumMinutes(cached)).
			Int("stored_mins", total).
			Msg("Cached ledger is outdated, reading durable ledger")
	}

	rows, err := s.ledger.SumByApp(ctx, userID, day)
	if err != nil {
		return nil, sourceStore, err
	}
	s.cache.PutLedger(ctx, userID, day, rows)
	return rows, sourceStore, nil
}

func sumMinutes(rows []models.AppUsage) int {
	total := 0
	for _, row := range rows {
		total += row.UsageMins
	}
	return total
}

// Fold buckets ledger rows by category and picks the top app. rows must be
// in first-seen order; on equal minutes the earlier app wins.
func Fold(userID uint, day time.Time, rows []models.AppUsage) *models.DailyMetrics {
	m := &models.DailyMetrics{
		UserID:     userID,
		MetricDate: models.Day(day),
	}

	perApp := make(map[string]int, len(rows))
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		switch models.NormalizeCategory(row.Category) {
		case models.CategorySocial:
			m.SocialMins += row.UsageMins
		case models.CategoryGame:
			m.GameMins += row.UsageMins
		case models.CategoryWork:
			m.WorkMins += row.UsageMins
		case models.CategoryBrowser:
			m.BrowserMins += row.UsageMins
		default:
			m.OtherMins += row.UsageMins
		}

		if _, seen := perApp[row.AppName]; !seen {
			order = append(order, row.AppName)
		}
		perApp[row.AppName] += row.UsageMins
	}

	m.TotalActiveMins = m.SocialMins + m.GameMins + m.WorkMins + m.BrowserMins + m.OtherMins

	best := 0
	for _, app := range order {
		if perApp[app] > best {
			best = perApp[app]
			m.TopApp = app
		}
	}

	return m
}
