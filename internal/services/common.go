package services

import (
	"errors"
	"strings"

	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

func notFound(entity string) error {
	return response.NewNotFound(entity + " not found")
}

// lookupError maps a single-row lookup failure to NotFound or an internal
// error carrying the storage cause.
func lookupError(entity string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity)
	}
	return response.WrapServerError("failed to load "+entity, err)
}

// normalizeProjectID maps the "no project" sentinels to nil.
func normalizeProjectID(projectID *string) *string {
	if projectID == nil {
		return nil
	}
	id := strings.TrimSpace(*projectID)
	if id == "" || id == "default" {
		return nil
	}
	return &id
}

// nullableString stores empty strings as NULL.
func nullableString(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// ownedTask loads the task only if caller owns it.
func ownedTask(db *gorm.DB, userID, taskID string) (*models.Task, error) {
	var task models.Task
	if err := db.Where("id = ? AND user_id = ?", taskID, userID).First(&task).Error; err != nil {
		return nil, lookupError("task", err)
	}
	return &task, nil
}
