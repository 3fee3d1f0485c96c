package models

import (
	"time"

	"gorm.io/gorm"
)

const DefaultProjectColor = "#3b82f6"

// Project groups tasks for a single owner. Deleting a project detaches its
// tasks instead of removing them.
type Project struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Color       string    `gorm:"size:20;not null" json:"color"`
	Description string    `gorm:"type:text" json:"description"`
	UserID      string    `gorm:"size:36;not null;index" json:"user_id"`
	User        *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Color == "" {
		p.Color = DefaultProjectColor
	}
	return nil
}
