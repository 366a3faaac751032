package models

import (
	"time"
)

// User is the minimal identity the pipeline needs for reports.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}
