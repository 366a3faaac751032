package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/lifescope-insights/internal/models"
)

// derivedMetricColumns are overwritten on every aggregation. peak_hour and
// task_completion_rate are not derived yet and keep whatever is stored.
var derivedMetricColumns = []string{
	"total_active_mins",
	"social_mins",
	"game_mins",
	"work_mins",
	"browser_mins",
	"other_mins",
	"top_app",
}

// MetricsRepository handles database operations for daily metrics.
type MetricsRepository struct {
	db *DB
}

// NewMetricsRepository creates a new metrics repository.
func NewMetricsRepository(db *DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// Upsert creates or overwrites the metrics row for (user, date) in one
// transaction and reloads m from the stored row.
func (r *MetricsRepository) Upsert(ctx context.Context, m *models.DailyMetrics) error {
	m.MetricDate = models.Day(m.MetricDate)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "metric_date"}},
			DoUpdates: clause.AssignmentColumns(derivedMetricColumns),
		}).Create(m).Error
		if err != nil {
			return err
		}

		var stored models.DailyMetrics
		if err := tx.Where("user_id = ? AND metric_date = ?", m.UserID, m.MetricDate).First(&stored).Error; err != nil {
			return err
		}
		*m = stored
		return nil
	})
	if err != nil {
		return storageErr("upsert daily metrics", err)
	}
	return nil
}

// GetByDate retrieves the metrics for a user's day.
func (r *MetricsRepository) GetByDate(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error) {
	var m models.DailyMetrics
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND metric_date = ?", userID, models.Day(date)).
		First(&m).Error
	if err != nil {
		return nil, storageErr("get daily metrics", err)
	}
	return &m, nil
}

// GetRange retrieves a user's metrics for days in [start, end), oldest first.
func (r *MetricsRepository) GetRange(ctx context.Context, userID uint, start, end time.Time) ([]models.DailyMetrics, error) {
	var metrics []models.DailyMetrics
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND metric_date >= ? AND metric_date < ?", userID, models.Day(start), models.Day(end)).
		Order("metric_date ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, storageErr("get daily metrics range", err)
	}
	return metrics, nil
}
