package services

import (
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type TimeEntryService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTimeEntryService(db *gorm.DB) *TimeEntryService {
	return &TimeEntryService{db: db, now: time.Now}
}

// CreateTimeEntryRequest records work done without a running timer. When
// EndTime is set and DurationMinutes is zero the duration is derived from
// the interval.
type CreateTimeEntryRequest struct {
	StartTime       time.Time  `json:"start_time" binding:"required"`
	EndTime         *time.Time `json:"end_time"`
	DurationMinutes int64      `json:"duration_minutes"`
	Notes           string     `json:"notes"`
}

type TimeEntryView struct {
	models.TimeEntry
	TaskTitle string `json:"task_title"`
}

func (s *TimeEntryService) ListByTask(caller authz.Identity, taskID string) ([]TimeEntryView, error) {
	if _, err := ownedTask(s.db, caller.UserID, taskID); err != nil {
		return nil, err
	}
	return listTimeEntries(s.db.Where("time_entries.user_id = ? AND time_entries.task_id = ?", caller.UserID, taskID), 0)
}

func (s *TimeEntryService) ListAll(caller authz.Identity) ([]TimeEntryView, error) {
	return listTimeEntries(s.db.Where("time_entries.user_id = ?", caller.UserID), 0)
}

func (s *TimeEntryService) Create(caller authz.Identity, taskID string, req *CreateTimeEntryRequest) (*TimeEntryView, error) {
	task, err := ownedTask(s.db, caller.UserID, taskID)
	if err != nil {
		return nil, err
	}
	if req.StartTime.IsZero() {
		return nil, response.NewBadRequest("start_time is required")
	}
	if req.DurationMinutes < 0 {
		return nil, response.NewBadRequest("duration_minutes must not be negative")
	}

	duration := req.DurationMinutes
	var end *time.Time
	if req.EndTime != nil {
		if req.EndTime.Before(req.StartTime) {
			return nil, response.NewBadRequest("end_time must not be before start_time")
		}
		e := req.EndTime.UTC()
		end = &e
		if duration == 0 {
			duration = DurationMinutes(req.StartTime, *req.EndTime)
		}
	}

	entry := models.TimeEntry{
		TaskID:          task.ID,
		StartTime:       req.StartTime.UTC(),
		EndTime:         end,
		DurationMinutes: duration,
		Notes:           req.Notes,
		UserID:          caller.UserID,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return nil, response.WrapServerError("failed to create time entry", err)
	}
	return &TimeEntryView{TimeEntry: entry, TaskTitle: task.Title}, nil
}

func (s *TimeEntryService) Delete(caller authz.Identity, id string) error {
	res := s.db.Where("id = ? AND user_id = ?", id, caller.UserID).Delete(&models.TimeEntry{})
	if res.Error != nil {
		return response.WrapServerError("failed to delete time entry", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("time entry")
	}
	return nil
}

// listTimeEntries runs q over time_entries joined with task titles, newest
// first. limit <= 0 means no limit.
func listTimeEntries(q *gorm.DB, limit int) ([]TimeEntryView, error) {
	views := make([]TimeEntryView, 0)
	q = q.Model(&models.TimeEntry{}).
		Select("time_entries.*, tasks.title AS task_title").
		Joins("JOIN tasks ON tasks.id = time_entries.task_id").
		Order("time_entries.start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&views).Error; err != nil {
		return nil, response.WrapServerError("failed to list time entries", err)
	}
	return views, nil
}
