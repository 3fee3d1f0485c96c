package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

// editableSetting describes an integer setting changeable over the API.
type editableSetting struct {
	label string
	min   int
}

var editableSettings = map[string]editableSetting{
	models.ConfigKeyLogRetentionDays:        {label: "System Log Retention Days", min: 0},
	models.ConfigKeyAccessTokenExpireHours:  {label: "Access Token Lifetime (hours)", min: 1},
	models.ConfigKeyRefreshTokenExpireHours: {label: "Refresh Token Lifetime (hours)", min: 1},
}

type UpdateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where("config_key = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetPositiveInt reads an integer setting, falling back to defaultValue when
// it is missing, malformed or not positive.
func (s *SystemConfigService) GetPositiveInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(s.GetWithDefault(key, strconv.Itoa(defaultValue)))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where("config_key = ?", key).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
			Type:  "int",
		}
		if setting, ok := editableSettings[key]; ok {
			cfg.Label = setting.label
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

// List returns the stored settings ordered by key.
func (s *SystemConfigService) List(caller authz.Identity) ([]models.SystemConfig, error) {
	if err := authz.RequireElevated(caller); err != nil {
		return nil, err
	}
	var configs []models.SystemConfig
	if err := s.db.Order("config_key ASC").Find(&configs).Error; err != nil {
		return nil, response.WrapServerError("failed to list settings", err)
	}
	return configs, nil
}

// UpdateSetting changes one editable setting. Only a superadmin may do so.
func (s *SystemConfigService) UpdateSetting(caller authz.Identity, key string, req *UpdateSettingRequest) (*models.SystemConfig, error) {
	if caller.Role != models.RoleSuperadmin {
		return nil, response.NewForbidden("only a superadmin can change settings")
	}
	setting, ok := editableSettings[key]
	if !ok {
		return nil, response.NewNotFound("setting not found")
	}
	n, err := strconv.Atoi(strings.TrimSpace(req.Value))
	if err != nil || n < setting.min {
		return nil, response.NewBadRequest("value must be an integer of at least " + strconv.Itoa(setting.min))
	}

	if err := s.Set(key, strconv.Itoa(n)); err != nil {
		return nil, response.WrapServerError("failed to save setting", err)
	}

	var cfg models.SystemConfig
	if err := s.db.Where("config_key = ?", key).First(&cfg).Error; err != nil {
		return nil, response.WrapServerError("failed to load setting", err)
	}
	return &cfg, nil
}
