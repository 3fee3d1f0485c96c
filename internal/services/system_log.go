package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/logger"
	"github.com/huangang/tasktimer/pkg/response"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

type SystemLogService struct {
	db        *gorm.DB
	configSvc *SystemConfigService
	now       func() time.Time
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db, configSvc: NewSystemConfigService(db), now: time.Now}
}

type SystemLogListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	UserID    string `form:"user_id"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

type RetentionRequest struct {
	Days int `json:"days" binding:"min=0,max=3650"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.SystemLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.UserID != "" {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return nil, response.NewBadRequest("invalid start_date, expected YYYY-MM-DD")
		}
		query = query.Where("created_at >= ?", start)
	}
	if req.EndDate != "" {
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return nil, response.NewBadRequest("invalid end_date, expected YYYY-MM-DD")
		}
		query = query.Where("created_at < ?", end.AddDate(0, 0, 1))
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, response.WrapServerError("failed to count system logs", err)
	}

	logs := make([]models.SystemLog, 0)
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, response.WrapServerError("failed to list system logs", err)
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

func (s *SystemLogService) GetModules() ([]string, error) {
	modules := make([]string, 0)
	if err := s.db.Model(&models.SystemLog{}).Distinct("module").Pluck("module", &modules).Error; err != nil {
		return nil, response.WrapServerError("failed to list log modules", err)
	}
	return modules, nil
}

// Record persists one audit task. It is the processor behind both queue
// implementations.
func (s *SystemLogService) Record(_ context.Context, task *AuditTask) error {
	var extra string
	if task.Extra != nil {
		if b, err := json.Marshal(task.Extra); err == nil {
			extra = string(b)
		}
	}

	var userID *string
	if task.UserID != "" {
		uid := task.UserID
		userID = &uid
	}

	createdAt := task.At
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	entry := &models.SystemLog{
		Level:     task.Level,
		Module:    task.Module,
		Action:    task.Action,
		Message:   task.Message,
		UserID:    userID,
		IP:        task.IP,
		UserAgent: truncate(task.UserAgent, 500),
		Extra:     extra,
		CreatedAt: createdAt.UTC(),
	}
	return s.db.Create(entry).Error
}

// CleanupOldLogs deletes logs older than retentionDays and returns how many
// rows were removed.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// GetRetentionDays reads the retention setting. Zero disables cleanup.
func (s *SystemLogService) GetRetentionDays() int {
	value, err := s.configSvc.Get(models.ConfigKeyLogRetentionDays)
	if err != nil {
		return 30
	}
	days, err := strconv.Atoi(value)
	if err != nil || days < 0 {
		return 30
	}
	return days
}

func (s *SystemLogService) SetRetentionDays(days int) error {
	if days < 0 {
		return response.NewBadRequest("retention days must not be negative")
	}
	if err := s.configSvc.Set(models.ConfigKeyLogRetentionDays, strconv.Itoa(days)); err != nil {
		return response.WrapServerError("failed to save retention days", err)
	}
	return nil
}

const logCleanupLockName = "system_log_cleanup"

// runCleanup applies the retention setting. Instances sharing the database
// claim each minute's run so only one of them deletes.
func (s *SystemLogService) runCleanup() {
	retentionDays := s.GetRetentionDays()
	if retentionDays <= 0 {
		logger.Debug().Msg("system log cleanup disabled")
		return
	}

	now := s.now().UTC()
	acquired, err := TryAcquireSchedulerLock(s.db, logCleanupLockName, now.Truncate(time.Minute).Format(time.RFC3339), time.Hour, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim system log cleanup")
		return
	}
	if !acquired {
		logger.Debug().Msg("system log cleanup already claimed by another instance")
		return
	}

	deleted, err := s.CleanupOldLogs(retentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("failed to clean up system logs")
		return
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("cleaned up system logs")
	}
}

// StartLogCleanupScheduler runs the retention cleanup once, then on every
// tick of the cron schedule. Stop the returned cron on shutdown.
func StartLogCleanupScheduler(db *gorm.DB, schedule string) (*cron.Cron, error) {
	service := NewSystemLogService(db)
	c := cron.New()
	if _, err := c.AddFunc(schedule, service.runCleanup); err != nil {
		return nil, err
	}
	go service.runCleanup()
	c.Start()
	logger.Info().Str("schedule", schedule).Msg("system log cleanup scheduler started")
	return c, nil
}
