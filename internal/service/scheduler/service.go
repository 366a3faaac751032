// Package scheduler runs the nightly batch: aggregate every active user's
// previous day, evaluate badges, then evict stale cache entries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/config"
	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

const nightlyJob = "nightly_batch"

// ActiveUsers lists the users with ledger rows on a date.
type ActiveUsers interface {
	ActiveUserIDs(ctx context.Context, date time.Time) ([]uint, error)
}

// Aggregator recomputes a user's day.
type Aggregator interface {
	Aggregate(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error)
}

// BadgeEvaluator grants the badges a user's day qualifies for.
type BadgeEvaluator interface {
	EvaluateAndAward(ctx context.Context, userID uint, date time.Time) ([]string, error)
}

// CacheEvictor drops a user's cached values older than a cutoff.
type CacheEvictor interface {
	EvictStale(ctx context.Context, userID uint, olderThan time.Duration, now time.Time) int
}

// Deps groups the collaborators of the scheduler. Cache is optional.
type Deps struct {
	Users      ActiveUsers
	Aggregator Aggregator
	Badges     BadgeEvaluator
	Cache      CacheEvictor
}

// Summary describes one batch run.
type Summary struct {
	Date          time.Time
	Users         int
	Failed        int
	BadgesGranted int
	Evicted       int
}

// Service handles nightly batch scheduling.
type Service struct {
	cfg         config.SchedulerConfig
	evictionAge time.Duration
	deps        Deps
	clock       quartz.Clock
	log         *logger.Logger
	cron        *cron.Cron
	location    *time.Location

	// newBackOff builds the retry policy for one user's aggregation.
	newBackOff func() backoff.BackOff
}

// NewService creates a new scheduler service.
func NewService(cfg config.SchedulerConfig, evictionAge time.Duration, deps Deps, clock quartz.Clock, log *logger.Logger) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	s := &Service{
		cfg:         cfg,
		evictionAge: evictionAge,
		deps:        deps,
		clock:       clock,
		log:         log,
		location:    time.UTC,
	}
	s.newBackOff = func() backoff.BackOff {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = s.cfg.MaxRetryElapsed
		return eb
	}
	return s
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.cfg.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.cfg.Timezone, err)
	}
	s.location = location

	s.cron = cron.New(cron.WithLocation(location))

	cronExpr, err := s.buildCronExpression()
	if err != nil {
		return fmt.Errorf("failed to build cron expression: %w", err)
	}

	_, err = s.cron.AddFunc(cronExpr, func() {
		if _, err := s.RunNightly(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("Nightly batch failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register nightly batch job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", cronExpr).
		Str("timezone", s.cfg.Timezone).
		Str("time", s.cfg.Time).
		Int("workers", s.cfg.Workers).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running batch.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildCronExpression generates a daily cron expression from the HH:MM time.
func (s *Service) buildCronExpression() (string, error) {
	parts := strings.Split(s.cfg.Time, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", s.cfg.Time)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	// Format: "minute hour day month weekday"
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// RunNightly processes the calendar day before now in the scheduler's timezone.
func (s *Service) RunNightly(ctx context.Context) (*Summary, error) {
	now := s.clock.Now().In(s.location)
	yesterday := models.Day(now).AddDate(0, 0, -1)
	return s.RunForDate(ctx, yesterday)
}

// RunForDate aggregates, evaluates badges and evicts stale cache entries for
// every user active on date. A failing user is logged and counted, and does
// not stop the others.
func (s *Service) RunForDate(ctx context.Context, date time.Time) (*Summary, error) {
	start := time.Now()
	day := models.Day(date)

	defer func() {
		prommetrics.ObserveSchedulerJobDuration(nightlyJob, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(nightlyJob)
	}()

	s.log.Info().Str("date", day.Format(models.DateLayout)).Msg("Running nightly batch")

	userIDs, err := s.deps.Users.ActiveUserIDs(ctx, day)
	if err != nil {
		prommetrics.RecordSchedulerJobRun(nightlyJob, "error")
		return nil, err
	}

	var failed, granted, evicted atomic.Int64
	now := s.clock.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, userID := range userIDs {
		g.Go(func() error {
			codes, n, err := s.processUser(gctx, userID, day, now)
			granted.Add(int64(len(codes)))
			evicted.Add(int64(n))
			if err != nil {
				failed.Add(1)
				prommetrics.RecordSchedulerUserProcessed("error")
				s.log.Error().
					Err(err).
					Uint("user_id", userID).
					Str("date", day.Format(models.DateLayout)).
					Msg("Nightly batch failed for user")
				return nil
			}
			prommetrics.RecordSchedulerUserProcessed("success")
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{
		Date:          day,
		Users:         len(userIDs),
		Failed:        int(failed.Load()),
		BadgesGranted: int(granted.Load()),
		Evicted:       int(evicted.Load()),
	}

	status := "success"
	if err := ctx.Err(); err != nil {
		prommetrics.RecordSchedulerJobRun(nightlyJob, "cancelled")
		return summary, err
	}
	if summary.Failed > 0 {
		status = "partial"
	}
	prommetrics.RecordSchedulerJobRun(nightlyJob, status)

	s.log.Info().
		Str("date", day.Format(models.DateLayout)).
		Int("users", summary.Users).
		Int("failed", summary.Failed).
		Int("badges_awarded", summary.BadgesGranted).
		Int("cache_evicted", summary.Evicted).
		Dur("duration", time.Since(start)).
		Msg("Nightly batch completed")

	return summary, nil
}

// processUser runs the three steps for one user. Aggregation is idempotent
// and retried on storage errors; the other steps are not retried.
func (s *Service) processUser(ctx context.Context, userID uint, day, now time.Time) ([]string, int, error) {
	err := backoff.RetryNotify(func() error {
		_, err := s.deps.Aggregator.Aggregate(ctx, userID, day)
		if err != nil && !errors.Is(err, apperr.ErrStorage) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.newBackOff(), ctx), func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Uint("user_id", userID).Dur("retry_in", wait).Msg("Aggregation failed, retrying")
	})
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate: %w", err)
	}

	codes, err := s.deps.Badges.EvaluateAndAward(ctx, userID, day)
	if err != nil && !errors.Is(err, apperr.ErrNoData) {
		return codes, 0, fmt.Errorf("evaluate badges: %w", err)
	}

	evicted := 0
	if s.deps.Cache != nil && s.evictionAge > 0 {
		evicted = s.deps.Cache.EvictStale(ctx, userID, s.evictionAge, now)
	}
	return codes, evicted, nil
}
