package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/lifescope-insights/internal/models"
)

// ReportRepository handles generated report persistence.
type ReportRepository struct {
	db *DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create stores a newly generated report.
func (r *ReportRepository) Create(ctx context.Context, report *models.AIReport) error {
	report.ReportDate = models.Day(report.ReportDate)
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return storageErr("create report", err)
	}
	return nil
}

// GetByID retrieves a report by ID.
func (r *ReportRepository) GetByID(ctx context.Context, id uint) (*models.AIReport, error) {
	var report models.AIReport
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, storageErr("get report", err)
	}
	return &report, nil
}

// GetLatest returns the most recent report of a type for a user's day.
func (r *ReportRepository) GetLatest(ctx context.Context, userID uint, date time.Time, reportType string) (*models.AIReport, error) {
	var report models.AIReport
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND report_date = ? AND report_type = ?", userID, models.Day(date), reportType).
		Order("created_at DESC").
		Order("id DESC").
		First(&report).Error
	if err != nil {
		return nil, storageErr("get latest report", err)
	}
	return &report, nil
}

// List returns a page of a user's reports, newest first, and the total count.
// An empty reportType matches every type.
func (r *ReportRepository) List(ctx context.Context, userID uint, reportType string, offset, limit int) ([]models.AIReport, int64, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.AIReport{}).Where("user_id = ?", userID)
		if reportType != "" {
			query = query.Where("report_type = ?", reportType)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, storageErr("count reports", err)
	}

	var reports []models.AIReport
	err := scoped().
		Order("report_date DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, 0, storageErr("list reports", err)
	}
	return reports, total, nil
}

// UpdateFlags sets the engagement flags that are not nil.
func (r *ReportRepository) UpdateFlags(ctx context.Context, id uint, liked, shared *bool) error {
	updates := make(map[string]interface{}, 2)
	if liked != nil {
		updates["is_liked"] = *liked
	}
	if shared != nil {
		updates["is_shared"] = *shared
	}
	if len(updates) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.AIReport{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return storageErr("update report flags", err)
	}
	return nil
}
