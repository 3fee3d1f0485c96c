package services

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/logger"
	"gorm.io/gorm"
)

var schedulerLockHolder = func() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}()

// TryAcquireSchedulerLock claims the run of job name identified by key. It
// reports false when another instance already claimed that run. Expired
// claims are removed first.
func TryAcquireSchedulerLock(db *gorm.DB, name, key string, ttl time.Duration, now time.Time) (bool, error) {
	if err := db.Where("expires_at < ?", now).Delete(&models.SchedulerLock{}).Error; err != nil {
		logger.Warn().Err(err).Msg("failed to purge expired scheduler locks")
	}

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  schedulerLockHolder,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.Create(&lock).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
