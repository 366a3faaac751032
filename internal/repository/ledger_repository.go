package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/lifescope-insights/internal/models"
)

// LedgerRepository handles the per-app daily usage ledger.
type LedgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Accumulate adds entry.UsageMins to the ledger row for
// (user, date, app), creating it on first sight. The addition happens in a
// single upsert statement so concurrent writers never lose minutes. The
// category of an existing row is kept. On success entry holds the stored
// row, so UsageMins is the accumulated total.
func (r *LedgerRepository) Accumulate(ctx context.Context, entry *models.LedgerEntry) error {
	entry.RecordDate = models.Day(entry.RecordDate)

	var stored models.LedgerEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "record_date"}, {Name: "app_name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"usage_mins": gorm.Expr("ledger_entries.usage_mins + excluded.usage_mins"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).Create(entry).Error
		if err != nil {
			return err
		}
		return tx.
			Where("user_id = ? AND record_date = ? AND app_name = ?", entry.UserID, entry.RecordDate, entry.AppName).
			First(&stored).Error
	})
	if err != nil {
		return storageErr("accumulate ledger entry", err)
	}
	*entry = stored
	return nil
}

// DayTotal returns the sum of a user's ledger minutes for a day.
func (r *LedgerRepository) DayTotal(ctx context.Context, userID uint, date time.Time) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(usage_mins), 0)").
		Where("user_id = ? AND record_date = ?", userID, models.Day(date)).
		Scan(&total).Error
	if err != nil {
		return 0, storageErr("sum ledger day", err)
	}
	return total, nil
}

// GetEntry returns the ledger row for (user, date, app).
func (r *LedgerRepository) GetEntry(ctx context.Context, userID uint, date time.Time, appName string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND record_date = ? AND app_name = ?", userID, models.Day(date), appName).
		First(&entry).Error
	if err != nil {
		return nil, storageErr("get ledger entry", err)
	}
	return &entry, nil
}

// ListDay returns every ledger row of a user's day in insertion order.
func (r *LedgerRepository) ListDay(ctx context.Context, userID uint, date time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND record_date = ?", userID, models.Day(date)).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, storageErr("list ledger day", err)
	}
	return entries, nil
}

// SumByApp returns minutes grouped by application and category for a day,
// ordered by the first time each application was seen.
func (r *LedgerRepository) SumByApp(ctx context.Context, userID uint, date time.Time) ([]models.AppUsage, error) {
	var rows []models.AppUsage
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("app_name, category, SUM(usage_mins) AS usage_mins").
		Where("user_id = ? AND record_date = ?", userID, models.Day(date)).
		Group("app_name, category").
		Order("MIN(id) ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("sum ledger by app", err)
	}
	return rows, nil
}

// TopApps returns the applications with the most minutes in [start, end).
// Ties keep first-seen order.
func (r *LedgerRepository) TopApps(ctx context.Context, userID uint, start, end time.Time, limit int) ([]models.AppUsage, error) {
	var rows []models.AppUsage
	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("app_name, MIN(category) AS category, SUM(usage_mins) AS usage_mins").
		Where("user_id = ? AND record_date >= ? AND record_date < ?", userID, models.Day(start), models.Day(end)).
		Group("app_name").
		Order("SUM(usage_mins) DESC").
		Order("MIN(id) ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, storageErr("top apps", err)
	}
	return rows, nil
}

// ActiveUserIDs returns the users with at least one ledger row on date.
func (r *LedgerRepository) ActiveUserIDs(ctx context.Context, date time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("record_date = ?", models.Day(date)).
		Distinct().
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, storageErr("list active users", err)
	}
	return ids, nil
}
