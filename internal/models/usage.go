package models

import (
	"strings"
	"time"
)

// Usage categories. Anything else is folded into CategoryOther.
const (
	CategorySocial  = "social"
	CategoryGame    = "game"
	CategoryWork    = "work"
	CategoryBrowser = "browser"
	CategoryOther   = "other"
)

// DateLayout is the calendar date format used in payloads and cache keys.
const DateLayout = "2006-01-02"

// NormalizeCategory maps a free-form category tag onto a known bucket.
func NormalizeCategory(category string) string {
	switch c := strings.ToLower(strings.TrimSpace(category)); c {
	case CategorySocial, CategoryGame, CategoryWork, CategoryBrowser:
		return c
	default:
		return CategoryOther
	}
}

// Day truncates t to midnight UTC of its calendar date in t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LedgerEntry holds the accumulated minutes for one app on one day.
type LedgerEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_ledger_user_date_app,priority:1" json:"user_id"`
	RecordDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_ledger_user_date_app,priority:2" json:"record_date"`
	AppName    string    `gorm:"not null;size:255;uniqueIndex:idx_ledger_user_date_app,priority:3" json:"app_name"`
	Category   string    `gorm:"not null;size:20;default:other" json:"category"`
	UsageMins  int       `gorm:"not null" json:"usage_mins"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for LedgerEntry model.
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// AppUsage is one row of the grouped-sum ledger query.
type AppUsage struct {
	AppName   string `json:"app_name"`
	Category  string `json:"category"`
	UsageMins int    `json:"usage_mins"`
}

// DailyMetrics is the derived summary of a user's ledger for one day.
type DailyMetrics struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex:idx_daily_metrics_user_date,priority:1" json:"user_id"`
	MetricDate         time.Time `gorm:"type:date;not null;uniqueIndex:idx_daily_metrics_user_date,priority:2" json:"metric_date"`
	TotalActiveMins    int       `gorm:"not null;default:0" json:"total_active_mins"`
	SocialMins         int       `gorm:"not null;default:0" json:"social_mins"`
	GameMins           int       `gorm:"not null;default:0" json:"game_mins"`
	WorkMins           int       `gorm:"not null;default:0" json:"work_mins"`
	BrowserMins        int       `gorm:"not null;default:0" json:"browser_mins"`
	OtherMins          int       `gorm:"not null;default:0" json:"other_mins"`
	TopApp             string    `gorm:"size:255" json:"top_app"`
	PeakHour           *int      `json:"peak_hour,omitempty"`
	TaskCompletionRate *float64  `json:"task_completion_rate,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// TableName specifies the table name for DailyMetrics model.
func (DailyMetrics) TableName() string {
	return "daily_metrics"
}

// CategoryMins returns the minutes recorded for a category bucket.
func (m *DailyMetrics) CategoryMins(category string) int {
	switch category {
	case CategorySocial:
		return m.SocialMins
	case CategoryGame:
		return m.GameMins
	case CategoryWork:
		return m.WorkMins
	case CategoryBrowser:
		return m.BrowserMins
	default:
		return m.OtherMins
	}
}

// Metric returns a named numeric field. ok is false for unknown names.
func (m *DailyMetrics) Metric(name string) (value float64, ok bool) {
	switch name {
	case "", "total_active_mins":
		return float64(m.TotalActiveMins), true
	case "social_mins":
		return float64(m.SocialMins), true
	case "game_mins":
		return float64(m.GameMins), true
	case "work_mins":
		return float64(m.WorkMins), true
	case "browser_mins":
		return float64(m.BrowserMins), true
	case "other_mins":
		return float64(m.OtherMins), true
	default:
		return 0, false
	}
}
