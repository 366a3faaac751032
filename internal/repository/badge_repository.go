package repository

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/lifescope-insights/internal/models"
)

// BadgeRepository handles badge catalog and grant operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create creates a new badge in the database.
func (r *BadgeRepository) Create(ctx context.Context, badge *models.Badge) error {
	if err := r.db.WithContext(ctx).Create(badge).Error; err != nil {
		return storageErr("create badge", err)
	}
	return nil
}

// UpsertByCode inserts the badge or refreshes the catalog fields of the
// badge with the same code.
func (r *BadgeRepository) UpsertByCode(ctx context.Context, badge *models.Badge) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "icon", "condition_type", "condition_metric", "condition_value", "updated_at",
			}),
		}).
		Create(badge).Error
	if err != nil {
		return storageErr("upsert badge", err)
	}
	return nil
}

// GetByCode retrieves a badge by its code.
func (r *BadgeRepository) GetByCode(ctx context.Context, code string) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&badge).Error; err != nil {
		return nil, storageErr("get badge", err)
	}
	return &badge, nil
}

// GetAll retrieves the catalog in a stable order.
func (r *BadgeRepository) GetAll(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&badges).Error; err != nil {
		return nil, storageErr("list badges", err)
	}
	return badges, nil
}

// GetEarnedBadgeIDs returns the ids of every badge the user holds.
func (r *BadgeRepository) GetEarnedBadgeIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ids).Error
	if err != nil {
		return nil, storageErr("list earned badges", err)
	}
	return ids, nil
}

// Award grants a badge. The unique (user_id, badge_id) index makes the
// insert a no-op when the grant already exists; created reports whether
// this call inserted the row.
func (r *BadgeRepository) Award(ctx context.Context, userID, badgeID uint, earnedAt time.Time) (created bool, err error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
			DoNothing: true,
		}).
		Create(&models.UserBadge{
			UserID:   userID,
			BadgeID:  badgeID,
			EarnedAt: earnedAt,
		})
	if result.Error != nil {
		return false, storageErr("award badge", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// GetUserBadges retrieves all grants of a user with badge details, oldest first.
func (r *BadgeRepository) GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("earned_at ASC").
		Order("id ASC").
		Find(&userBadges).Error
	if err != nil {
		return nil, storageErr("list user badges", err)
	}
	return userBadges, nil
}

// GetUserBadgesBetween retrieves grants earned in [start, end).
func (r *BadgeRepository) GetUserBadgesBetween(ctx context.Context, userID uint, start, end time.Time) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND earned_at >= ? AND earned_at < ?", userID, start, end).
		Preload("Badge").
		Order("earned_at ASC").
		Order("id ASC").
		Find(&userBadges).Error
	if err != nil {
		return nil, storageErr("list user badges in range", err)
	}
	return userBadges, nil
}

// GetBadgeHoldersCount returns the number of users who have earned a specific badge.
func (r *BadgeRepository) GetBadgeHoldersCount(ctx context.Context, badgeID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserBadge{}).
		Where("badge_id = ?", badgeID).
		Count(&count).Error
	if err != nil {
		return 0, storageErr("count badge holders", err)
	}
	return count, nil
}
