// Package badges evaluates badge conditions against daily metrics and
// grants each badge to a user at most once.
package badges

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	GetAll(ctx context.Context) ([]models.Badge, error)
	GetEarnedBadgeIDs(ctx context.Context, userID uint) ([]uint, error)
	Award(ctx context.Context, userID, badgeID uint, earnedAt time.Time) (bool, error)
	GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error)
	GetBadgeHoldersCount(ctx context.Context, badgeID uint) (int64, error)
}

// MetricsSource returns stored daily metrics, failing with apperr.ErrNoData
// when the day was never aggregated.
type MetricsSource interface {
	GetMetrics(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error)
}

// UserBadgeView is an earned badge as shown to users.
type UserBadgeView struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
}

// Service handles badge evaluation and awarding.
type Service struct {
	badgeRepo BadgeRepository
	metrics   MetricsSource
	registry  *Registry
	clock     quartz.Clock
	log       *logger.Logger
}

// NewService creates a new badge service. A nil registry means
// DefaultRegistry.
func NewService(badgeRepo BadgeRepository, metrics MetricsSource, registry *Registry, clock quartz.Clock, log *logger.Logger) *Service {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Service{
		badgeRepo: badgeRepo,
		metrics:   metrics,
		registry:  registry,
		clock:     clock,
		log:       log,
	}
}

// EvaluateAndAward checks every badge the user has not earned yet against
// the day's metrics and grants the ones that hold. It returns the codes of
// the badges granted by this call, in catalog order. Re-running it never
// grants a badge twice.
func (s *Service) EvaluateAndAward(ctx context.Context, userID uint, date time.Time) ([]string, error) {
	day := models.Day(date)

	catalog, err := s.badgeRepo.GetAll(ctx)
	if err != nil {
		prommetrics.RecordBadgeEvaluationRun("error")
		return nil, err
	}

	earnedIDs, err := s.badgeRepo.GetEarnedBadgeIDs(ctx, userID)
	if err != nil {
		prommetrics.RecordBadgeEvaluationRun("error")
		return nil, err
	}
	earned := make(map[uint]struct{}, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = struct{}{}
	}

	m, err := s.metrics.GetMetrics(ctx, userID, day)
	if err != nil {
		if errors.Is(err, apperr.ErrNoData) {
			prommetrics.RecordBadgeEvaluationRun("no_data")
		} else {
			prommetrics.RecordBadgeEvaluationRun("error")
		}
		return nil, err
	}

	var awarded []string
	for i := range catalog {
		badge := &catalog[i]
		if _, ok := earned[badge.ID]; ok {
			continue
		}
		if !s.holds(badge, m, userID) {
			continue
		}

		created, err := s.badgeRepo.Award(ctx, userID, badge.ID, s.clock.Now())
		if err != nil {
			prommetrics.RecordBadgeEvaluationRun("error")
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("badge", badge.Code).
				Msg("Failed to award badge")
			return awarded, err
		}
		if !created {
			// A concurrent evaluation got there first.
			continue
		}

		awarded = append(awarded, badge.Code)
		s.recordAward(ctx, badge)

		s.log.Info().
			Uint("user_id", userID).
			Str("badge", badge.Code).
			Str("date", day.Format(models.DateLayout)).
			Msg("Badge awarded")
	}

	prommetrics.RecordBadgeEvaluationRun("success")
	return awarded, nil
}

func (s *Service) holds(badge *models.Badge, m *models.DailyMetrics, userID uint) bool {
	condition, ok := s.registry.Lookup(badge.ConditionType)
	if !ok {
		s.log.Warn().
			Str("badge", badge.Code).
			Str("condition_type", badge.ConditionType).
			Msg("Unknown badge condition type, skipping")
		return false
	}
	if _, ok := m.Metric(badge.ConditionMetric); !ok {
		s.log.Warn().
			Str("badge", badge.Code).
			Str("condition_metric", badge.ConditionMetric).
			Msg("Unknown badge condition metric, skipping")
		return false
	}

	ok = condition(m, badge.ConditionMetric, badge.ConditionValue)
	s.log.Debug().
		Uint("user_id", userID).
		Str("badge", badge.Code).
		Bool("holds", ok).
		Msg("Badge condition evaluated")
	return ok
}

func (s *Service) recordAward(ctx context.Context, badge *models.Badge) {
	prommetrics.RecordBadgeAwarded(badge.Code)

	count, err := s.badgeRepo.GetBadgeHoldersCount(ctx, badge.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("badge", badge.Code).Msg("Failed to count badge holders")
		return
	}
	prommetrics.SetActiveBadgeHolders(badge.Code, int(count))
}

// GetUserBadges retrieves all badges earned by a user, oldest first.
func (s *Service) GetUserBadges(ctx context.Context, userID uint) ([]UserBadgeView, error) {
	earned, err := s.badgeRepo.GetUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]UserBadgeView, 0, len(earned))
	for _, ub := range earned {
		views = append(views, UserBadgeView{
			Code:        ub.Badge.Code,
			Name:        ub.Badge.Name,
			Icon:        ub.Badge.Icon,
			Description: ub.Badge.Description,
			EarnedAt:    ub.EarnedAt,
		})
	}
	return views, nil
}

// GetBadgeCatalog retrieves all available badges.
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.Badge, error) {
	return s.badgeRepo.GetAll(ctx)
}
