package services

import (
	"errors"
	"strings"
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type SubtaskService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSubtaskService(db *gorm.DB) *SubtaskService {
	return &SubtaskService{db: db, now: time.Now}
}

type CreateSubtaskRequest struct {
	Title string `json:"title" binding:"required"`
}

type UpdateSubtaskRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
	Position  *int    `json:"position"`
}

func (s *SubtaskService) List(caller authz.Identity, taskID string) ([]models.Subtask, error) {
	if _, err := ownedTask(s.db, caller.UserID, taskID); err != nil {
		return nil, err
	}
	subtasks := make([]models.Subtask, 0)
	if err := s.db.Where("task_id = ? AND user_id = ?", taskID, caller.UserID).
		Order("position ASC, created_at ASC").
		Find(&subtasks).Error; err != nil {
		return nil, response.WrapServerError("failed to list subtasks", err)
	}
	return subtasks, nil
}

// Create appends a subtask after the task's current last position.
func (s *SubtaskService) Create(caller authz.Identity, taskID string, req *CreateSubtaskRequest) (*models.Subtask, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, response.NewBadRequest("title is required")
	}
	if _, err := ownedTask(s.db, caller.UserID, taskID); err != nil {
		return nil, err
	}

	subtask := models.Subtask{
		TaskID:    taskID,
		Title:     title,
		UserID:    caller.UserID,
		CreatedAt: s.now().UTC(),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&models.Subtask{}).
			Where("task_id = ?", taskID).
			Select("COALESCE(MAX(position), -1)").
			Scan(&maxPos).Error; err != nil {
			return err
		}
		subtask.Position = maxPos + 1
		return tx.Create(&subtask).Error
	})
	if err != nil {
		return nil, response.WrapServerError("failed to create subtask", err)
	}
	return &subtask, nil
}

func (s *SubtaskService) Update(caller authz.Identity, id string, req *UpdateSubtaskRequest) (*models.Subtask, error) {
	subtask, err := s.owned(caller.UserID, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, response.NewBadRequest("title cannot be empty")
		}
		updates["title"] = title
	}
	if req.Completed != nil {
		updates["completed"] = *req.Completed
	}
	if req.Position != nil {
		if *req.Position < 0 {
			return nil, response.NewBadRequest("position must not be negative")
		}
		updates["position"] = *req.Position
	}
	if len(updates) == 0 {
		return subtask, nil
	}

	if err := s.db.Model(&models.Subtask{}).
		Where("id = ? AND user_id = ?", id, caller.UserID).
		Updates(updates).Error; err != nil {
		return nil, response.WrapServerError("failed to update subtask", err)
	}
	return s.owned(caller.UserID, id)
}

func (s *SubtaskService) Delete(caller authz.Identity, id string) error {
	res := s.db.Where("id = ? AND user_id = ?", id, caller.UserID).Delete(&models.Subtask{})
	if res.Error != nil {
		return response.WrapServerError("failed to delete subtask", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("subtask")
	}
	return nil
}

func (s *SubtaskService) owned(userID, id string) (*models.Subtask, error) {
	var subtask models.Subtask
	err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&subtask).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("subtask")
	}
	if err != nil {
		return nil, response.WrapServerError("failed to load subtask", err)
	}
	return &subtask, nil
}
