package models

import "time"

// SystemConfig holds runtime-adjustable settings stored in the database
type SystemConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:config_key;uniqueIndex;size:100;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:20;default:string" json:"type"` // string, int, bool
	Label     string    `gorm:"size:200" json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemConfig) TableName() string { return "system_configs" }

const (
	ConfigKeyLogRetentionDays        = "log_retention_days"
	ConfigKeyAccessTokenExpireHours  = "auth_access_token_expire_hours"
	ConfigKeyRefreshTokenExpireHours = "auth_refresh_token_expire_hours"
)
