// Package models defines the persisted entities of the insight pipeline.
package models

import (
	"time"
)

// Badge is a catalog entry that can be earned once per user.
type Badge struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Code            string    `gorm:"uniqueIndex;not null;size:64" json:"code"`
	Name            string    `gorm:"not null;size:100" json:"name"`
	Description     string    `gorm:"type:text" json:"description"`
	Icon            string    `gorm:"size:50" json:"icon"`
	ConditionType   string    `gorm:"not null;size:50" json:"condition_type"`
	ConditionMetric string    `gorm:"size:50" json:"condition_metric,omitempty"` // empty means total_active_mins
	ConditionValue  float64   `gorm:"not null" json:"condition_value"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// UserBadge records a badge granted to a user. Rows are never updated.
type UserBadge struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_user_badges_user_badge,priority:1" json:"user_id"`
	BadgeID  uint      `gorm:"not null;uniqueIndex:idx_user_badges_user_badge,priority:2;index" json:"badge_id"`
	Badge    Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}
