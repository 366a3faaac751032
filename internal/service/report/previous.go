package report

import (
	"context"
	"errors"
	"time"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/models"
)

// PreviousPeriod supplies the total active minutes of the day before date.
// ok is false when that day has no data.
type PreviousPeriod interface {
	PreviousTotal(ctx context.Context, userID uint, date time.Time) (total int, ok bool, err error)
}

// ChallengeStatus describes the user's active challenge, if any.
type ChallengeStatus interface {
	Status(ctx context.Context, userID uint, date time.Time) (string, error)
}

// MetricsSource returns stored daily metrics, failing with apperr.ErrNoData
// when the day was never aggregated.
type MetricsSource interface {
	GetMetrics(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error)
}

// previousDay reads yesterday's metrics through the same cache-then-store
// path as today's.
type previousDay struct {
	metrics MetricsSource
}

// NewPreviousDay returns the default PreviousPeriod.
func NewPreviousDay(metrics MetricsSource) PreviousPeriod {
	return &previousDay{metrics: metrics}
}

func (p *previousDay) PreviousTotal(ctx context.Context, userID uint, date time.Time) (int, bool, error) {
	m, err := p.metrics.GetMetrics(ctx, userID, models.Day(date).AddDate(0, 0, -1))
	if errors.Is(err, apperr.ErrNoData) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return m.TotalActiveMins, true, nil
}

type noChallengeStatus struct{}

func (noChallengeStatus) Status(context.Context, uint, time.Time) (string, error) {
	return noChallenge, nil
}
