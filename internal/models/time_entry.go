package models

import (
	"time"

	"gorm.io/gorm"
)

// TimeEntry is a closed interval of work on a task. Entries are never
// edited, only created and deleted.
type TimeEntry struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	TaskID          string     `gorm:"size:36;not null;index" json:"task_id"`
	Task            *Task      `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
	StartTime       time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationMinutes int64      `gorm:"not null;default:0" json:"duration_minutes"`
	Notes           string     `gorm:"type:text" json:"notes"`
	UserID          string     `gorm:"size:36;not null;index" json:"user_id"`
	User            *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}

func (TimeEntry) TableName() string { return "time_entries" }

func (e *TimeEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	return nil
}

// ActiveTimer is the running timer of a user. The unique index on user_id
// keeps at most one running timer per user.
type ActiveTimer struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TaskID    string    `gorm:"size:36;not null;uniqueIndex" json:"task_id"`
	Task      *Task     `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	StartTime time.Time `gorm:"not null" json:"start_time"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (ActiveTimer) TableName() string { return "active_timers" }

func (a *ActiveTimer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return nil
}
