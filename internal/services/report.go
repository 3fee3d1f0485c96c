package services

import (
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

// ReportService serves the read-only admin reports. Rows are limited to the
// account roles the caller may oversee.
type ReportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// TimeReportRequest bounds entries by start_time. Dates are YYYY-MM-DD in
// UTC and both ends are inclusive.
type TimeReportRequest struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type UserTimeReport struct {
	UserID         string      `json:"user_id"`
	Username       string      `json:"username"`
	FullName       string      `json:"full_name"`
	Role           models.Role `json:"role"`
	TotalMinutes   int64       `json:"total_minutes"`
	EntryCount     int64       `json:"entry_count"`
	TaskCount      int64       `json:"task_count"`
	CompletedTasks int64       `json:"completed_tasks"`
}

type AdminTaskView struct {
	TaskView
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type userEntryAgg struct {
	UserID string
	Total  int64
	Count  int64
}

type userTaskAgg struct {
	UserID    string
	Total     int64
	Completed int64
}

func (s *ReportService) TimeReport(caller authz.Identity, req *TimeReportRequest) ([]UserTimeReport, error) {
	roles, err := authz.ReportRoles(caller)
	if err != nil {
		return nil, err
	}

	var from, to *time.Time
	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return nil, response.NewBadRequest("invalid start_date, expected YYYY-MM-DD")
		}
		from = &t
	}
	if req.EndDate != "" {
		t, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return nil, response.NewBadRequest("invalid end_date, expected YYYY-MM-DD")
		}
		t = t.AddDate(0, 0, 1)
		to = &t
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, response.NewBadRequest("start_date must not be after end_date")
	}

	var users []models.User
	if err := s.db.Where("role IN ?", roles).Order("username ASC").Find(&users).Error; err != nil {
		return nil, response.WrapServerError("failed to load users", err)
	}
	report := make([]UserTimeReport, 0, len(users))
	if len(users) == 0 {
		return report, nil
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	entryQuery := s.db.Model(&models.TimeEntry{}).
		Select("user_id, COALESCE(SUM(duration_minutes), 0) AS total, COUNT(*) AS count").
		Where("user_id IN ?", ids)
	if from != nil {
		entryQuery = entryQuery.Where("start_time >= ?", *from)
	}
	if to != nil {
		entryQuery = entryQuery.Where("start_time < ?", *to)
	}
	var entryAggs []userEntryAgg
	if err := entryQuery.Group("user_id").Scan(&entryAggs).Error; err != nil {
		return nil, response.WrapServerError("failed to aggregate time entries", err)
	}
	entries := make(map[string]userEntryAgg, len(entryAggs))
	for _, a := range entryAggs {
		entries[a.UserID] = a
	}

	var taskAggs []userTaskAgg
	if err := s.db.Model(&models.Task{}).
		Select("user_id, COUNT(*) AS total, COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed", models.TaskStatusCompleted).
		Where("user_id IN ?", ids).
		Group("user_id").
		Scan(&taskAggs).Error; err != nil {
		return nil, response.WrapServerError("failed to aggregate tasks", err)
	}
	tasks := make(map[string]userTaskAgg, len(taskAggs))
	for _, a := range taskAggs {
		tasks[a.UserID] = a
	}

	for _, u := range users {
		e, t := entries[u.ID], tasks[u.ID]
		report = append(report, UserTimeReport{
			UserID:         u.ID,
			Username:       u.Username,
			FullName:       u.FullName,
			Role:           u.Role,
			TotalMinutes:   e.Total,
			EntryCount:     e.Count,
			TaskCount:      t.Total,
			CompletedTasks: t.Completed,
		})
	}
	return report, nil
}

// AllTasks lists every task owned by an account the caller oversees.
func (s *ReportService) AllTasks(caller authz.Identity) ([]AdminTaskView, error) {
	roles, err := authz.ReportRoles(caller)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := s.db.Select("tasks.*").
		Joins("JOIN users ON users.id = tasks.user_id").
		Where("users.role IN ?", roles).
		Order("tasks.updated_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, response.WrapServerError("failed to list tasks", err)
	}

	views, err := buildTaskViews(s.db, tasks)
	if err != nil {
		return nil, err
	}

	ownerIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, t := range tasks {
		if !seen[t.UserID] {
			seen[t.UserID] = true
			ownerIDs = append(ownerIDs, t.UserID)
		}
	}
	owners := make(map[string]models.User, len(ownerIDs))
	if len(ownerIDs) > 0 {
		var users []models.User
		if err := s.db.Where("id IN ?", ownerIDs).Find(&users).Error; err != nil {
			return nil, response.WrapServerError("failed to load task owners", err)
		}
		for _, u := range users {
			owners[u.ID] = u
		}
	}

	result := make([]AdminTaskView, len(views))
	for i, v := range views {
		owner := owners[v.UserID]
		result[i] = AdminTaskView{TaskView: v, Username: owner.Username, FullName: owner.FullName}
	}
	return result, nil
}
