package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

const (
	DefaultTaskCategory = "General"
	DefaultTaskPriority = "normal"
)

// Task is owned by one user and optionally filed under one of that user's
// projects. Status is in_progress while an active timer references it.
type Task struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:500;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Category    string     `gorm:"size:100;not null" json:"category"`
	Status      TaskStatus `gorm:"size:20;not null;index" json:"status"`
	Priority    string     `gorm:"size:20;not null" json:"priority"`
	StartDate   *string    `gorm:"size:32" json:"start_date"`
	DueDate     *string    `gorm:"size:32" json:"due_date"`
	ProjectID   *string    `gorm:"size:36;index" json:"project_id"`
	Project     *Project   `gorm:"foreignKey:ProjectID;constraint:OnDelete:SET NULL" json:"-"`
	UserID      string     `gorm:"size:36;not null;index" json:"user_id"`
	User        *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `gorm:"index" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	if t.Category == "" {
		t.Category = DefaultTaskCategory
	}
	if t.Priority == "" {
		t.Priority = DefaultTaskPriority
	}
	return nil
}
