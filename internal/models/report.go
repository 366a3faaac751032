package models

import (
	"time"
)

// Report types.
const (
	ReportTypeDaily  = "daily"
	ReportTypeWeekly = "weekly"
)

// AIReport is a generated narrative. Content never changes after insert.
type AIReport struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index:idx_ai_reports_user_date,priority:1" json:"user_id"`
	ReportDate time.Time `gorm:"type:date;not null;index:idx_ai_reports_user_date,priority:2" json:"report_date"`
	ReportType string    `gorm:"not null;size:20;default:daily" json:"report_type"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Style      string    `gorm:"size:20" json:"style"`
	IsLiked    bool      `gorm:"not null;default:false" json:"is_liked"`
	IsShared   bool      `gorm:"not null;default:false" json:"is_shared"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for AIReport model.
func (AIReport) TableName() string {
	return "ai_reports"
}
