// Package stats provides period summaries over stored daily metrics.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

const (
	defaultTopApps = 10
	maxTopApps     = 50
	maxRangeDays   = 366
)

// MetricsRepository interface for metrics operations.
type MetricsRepository interface {
	GetRange(ctx context.Context, userID uint, start, end time.Time) ([]models.DailyMetrics, error)
}

// LedgerRepository interface for ledger operations.
type LedgerRepository interface {
	TopApps(ctx context.Context, userID uint, start, end time.Time, limit int) ([]models.AppUsage, error)
}

// DayTotal is the active minutes of one day.
type DayTotal struct {
	Date time.Time `json:"date"`
	Mins int       `json:"mins"`
}

// Change is a signed, rounded percentage difference between two periods.
type Change struct {
	Sign string `json:"sign"`
	Pct  int    `json:"pct"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s%d%%", c.Sign, c.Pct)
}

// CompareTotals returns the change from previous to current. Without a
// previous value there is no change.
func CompareTotals(current, previous int) Change {
	if previous <= 0 {
		return Change{Sign: "+", Pct: 0}
	}
	sign := "+"
	if current < previous {
		sign = "-"
	}
	pct := math.Round(math.Abs(float64(current-previous)) / float64(previous) * 100)
	return Change{Sign: sign, Pct: int(pct)}
}

// WeeklySummary represents a user's week of daily metrics.
type WeeklySummary struct {
	UserID        uint      `json:"user_id"`
	WeekStart     time.Time `json:"week_start"`
	WeekEnd       time.Time `json:"week_end"`
	ActiveDays    int       `json:"active_days"`
	TotalMins     int       `json:"total_mins"`
	AvgMinsPerDay float64   `json:"avg_mins_per_day"`
	SocialMins    int       `json:"social_mins"`
	GameMins      int       `json:"game_mins"`
	WorkMins      int       `json:"work_mins"`
	BrowserMins   int       `json:"browser_mins"`
	OtherMins     int       `json:"other_mins"`
	PeakDay       DayTotal  `json:"peak_day"`
	LowDay        DayTotal  `json:"low_day"`
	TopApp        string    `json:"top_app"`
	TopAppMins    int       `json:"top_app_mins"`
	PreviousTotal int       `json:"previous_total_mins"`
	Change        Change    `json:"change"`
}

// Service computes period statistics.
type Service struct {
	metricsRepo MetricsRepository
	ledgerRepo  LedgerRepository
	log         *logger.Logger
}

// NewService creates a new stats service.
func NewService(metricsRepo MetricsRepository, ledgerRepo LedgerRepository, log *logger.Logger) *Service {
	return &Service{
		metricsRepo: metricsRepo,
		ledgerRepo:  ledgerRepo,
		log:         log,
	}
}

// Weekly summarises the seven days starting at start. It fails with
// apperr.ErrNoData when none of them was aggregated.
func (s *Service) Weekly(ctx context.Context, userID uint, start time.Time) (*WeeklySummary, error) {
	weekStart := models.Day(start)
	weekEnd := weekStart.AddDate(0, 0, 7)

	days, err := s.metricsRepo.GetRange(ctx, userID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, apperr.ErrNoData
	}

	summary := &WeeklySummary{
		UserID:     userID,
		WeekStart:  weekStart,
		WeekEnd:    weekEnd.AddDate(0, 0, -1),
		ActiveDays: len(days),
	}

	for i, d := range days {
		summary.TotalMins += d.TotalActiveMins
		summary.SocialMins += d.SocialMins
		summary.GameMins += d.GameMins
		summary.WorkMins += d.WorkMins
		summary.BrowserMins += d.BrowserMins
		summary.OtherMins += d.OtherMins

		day := DayTotal{Date: models.Day(d.MetricDate), Mins: d.TotalActiveMins}
		if i == 0 || day.Mins > summary.PeakDay.Mins {
			summary.PeakDay = day
		}
		if i == 0 || day.Mins < summary.LowDay.Mins {
			summary.LowDay = day
		}
	}
	summary.AvgMinsPerDay = math.Round(float64(summary.TotalMins)/float64(summary.ActiveDays)*10) / 10

	top, err := s.ledgerRepo.TopApps(ctx, userID, weekStart, weekEnd, 1)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		summary.TopApp = top[0].AppName
		summary.TopAppMins = top[0].UsageMins
	}

	previous, err := s.metricsRepo.GetRange(ctx, userID, weekStart.AddDate(0, 0, -7), weekStart)
	if err != nil {
		return nil, err
	}
	for _, d := range previous {
		summary.PreviousTotal += d.TotalActiveMins
	}
	summary.Change = CompareTotals(summary.TotalMins, summary.PreviousTotal)

	s.log.Debug().
		Uint("user_id", userID).
		Str("week_start", weekStart.Format(models.DateLayout)).
		Int("active_days", summary.ActiveDays).
		Int("total_mins", summary.TotalMins).
		Msg("Weekly summary computed")

	return summary, nil
}

// TopApps returns the applications with the most minutes in [start, end).
// limit defaults to 10 and is capped at 50.
func (s *Service) TopApps(ctx context.Context, userID uint, start, end time.Time, limit int) ([]models.AppUsage, error) {
	start, end = models.Day(start), models.Day(end)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", apperr.ErrValidation)
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range longer than %d days", apperr.ErrValidation, maxRangeDays)
	}
	switch {
	case limit <= 0:
		limit = defaultTopApps
	case limit > maxTopApps:
		limit = maxTopApps
	}

	apps, err := s.ledgerRepo.TopApps(ctx, userID, start, end, limit)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []models.AppUsage{}
	}
	return apps, nil
}
