package services

import (
	"errors"
	"strings"
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/logger"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type TaskService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db, now: time.Now}
}

type CreateTaskRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
	ProjectID   *string `json:"project_id"`
	StartDate   *string `json:"start_date"`
	DueDate     *string `json:"due_date"`
}

// UpdateTaskRequest is a sparse update; nil fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	ProjectID   *string `json:"project_id"`
	StartDate   *string `json:"start_date"`
	DueDate     *string `json:"due_date"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

type BulkDeleteResponse struct {
	DeletedCount int `json:"deleted_count"`
}

// TaskView is a task with its project label and time/subtask rollups.
type TaskView struct {
	models.Task
	ProjectName  *string `json:"project_name"`
	ProjectColor *string `json:"project_color"`
	TotalMinutes int64   `json:"total_minutes"`
	EntryCount   int64   `json:"entry_count"`
	SubtaskCount int64   `json:"subtask_count"`
	SubtaskDone  int64   `json:"subtask_done"`
}

func (s *TaskService) List(caller authz.Identity) ([]TaskView, error) {
	var tasks []models.Task
	if err := s.db.Where("user_id = ?", caller.UserID).
		Order("updated_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, response.WrapServerError("failed to list tasks", err)
	}
	return buildTaskViews(s.db, tasks)
}

func (s *TaskService) GetByID(caller authz.Identity, id string) (*TaskView, error) {
	task, err := ownedTask(s.db, caller.UserID, id)
	if err != nil {
		return nil, err
	}
	views, err := buildTaskViews(s.db, []models.Task{*task})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *TaskService) Create(caller authz.Identity, req *CreateTaskRequest) (*TaskView, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, response.NewBadRequest("title is required")
	}

	projectID := normalizeProjectID(req.ProjectID)
	if err := s.checkProject(caller, projectID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	task := models.Task{
		Title:       title,
		Description: req.Description,
		Category:    stringOr(&req.Category, models.DefaultTaskCategory),
		Status:      models.TaskStatusPending,
		Priority:    stringOr(&req.Priority, models.DefaultTaskPriority),
		StartDate:   emptyToNil(req.StartDate),
		DueDate:     emptyToNil(req.DueDate),
		ProjectID:   projectID,
		UserID:      caller.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Create(&task).Error; err != nil {
		return nil, response.WrapServerError("failed to create task", err)
	}
	return s.GetByID(caller, task.ID)
}

// Update applies the non-nil fields of req. An empty request returns the
// task unchanged.
func (s *TaskService) Update(caller authz.Identity, id string, req *UpdateTaskRequest) (*TaskView, error) {
	if _, err := ownedTask(s.db, caller.UserID, id); err != nil {
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
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = stringOr(req.Category, models.DefaultTaskCategory)
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		if !status.Valid() {
			return nil, response.NewBadRequest("invalid status")
		}
		updates["status"] = status
	}
	if req.Priority != nil {
		updates["priority"] = stringOr(req.Priority, models.DefaultTaskPriority)
	}
	if req.ProjectID != nil {
		projectID := normalizeProjectID(req.ProjectID)
		if err := s.checkProject(caller, projectID); err != nil {
			return nil, err
		}
		updates["project_id"] = nullableString(projectID)
	}
	if req.StartDate != nil {
		updates["start_date"] = nullableString(req.StartDate)
	}
	if req.DueDate != nil {
		updates["due_date"] = nullableString(req.DueDate)
	}

	if len(updates) == 0 {
		return s.GetByID(caller, id)
	}
	updates["updated_at"] = s.now().UTC()

	if err := s.db.Model(&models.Task{}).
		Where("id = ? AND user_id = ?", id, caller.UserID).
		Updates(updates).Error; err != nil {
		return nil, response.WrapServerError("failed to update task", err)
	}
	return s.GetByID(caller, id)
}

// Delete removes the task with its timer, subtasks and time entries.
func (s *TaskService) Delete(caller authz.Identity, id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return deleteOwnedTask(tx, caller.UserID, id)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("task")
	}
	if err != nil {
		return response.WrapServerError("failed to delete task", err)
	}
	return nil
}

// BulkDelete deletes each owned task in its own transaction. Ids that are
// missing, foreign or fail to delete are skipped.
func (s *TaskService) BulkDelete(caller authz.Identity, req *BulkDeleteRequest) *BulkDeleteResponse {
	deleted := 0
	for _, id := range req.IDs {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			return deleteOwnedTask(tx, caller.UserID, id)
		})
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			logger.Warn().Err(err).Str("task_id", id).Msg("bulk delete: failed to delete task")
		}
	}
	return &BulkDeleteResponse{DeletedCount: deleted}
}

func (s *TaskService) checkProject(caller authz.Identity, projectID *string) error {
	if projectID == nil {
		return nil
	}
	var count int64
	if err := s.db.Model(&models.Project{}).
		Where("id = ? AND user_id = ?", *projectID, caller.UserID).
		Count(&count).Error; err != nil {
		return response.WrapServerError("failed to load project", err)
	}
	if count == 0 {
		return notFound("project")
	}
	return nil
}

// deleteOwnedTask verifies ownership and removes the task and every row
// hanging off it. Returns gorm.ErrRecordNotFound when caller does not own id.
func deleteOwnedTask(tx *gorm.DB, userID, id string) error {
	var task models.Task
	if err := tx.Select("id").Where("id = ? AND user_id = ?", id, userID).First(&task).Error; err != nil {
		return err
	}
	return deleteTaskCascade(tx, id)
}

// deleteTaskCascade removes a task and its dependents in child-first order.
// Storage foreign keys cascade the same way.
func deleteTaskCascade(tx *gorm.DB, taskID string) error {
	children := []interface{}{&models.ActiveTimer{}, &models.Subtask{}, &models.TimeEntry{}}
	for _, child := range children {
		if err := tx.Where("task_id = ?", taskID).Delete(child).Error; err != nil {
			return err
		}
	}
	return tx.Where("id = ?", taskID).Delete(&models.Task{}).Error
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

type taskEntryAgg struct {
	TaskID string
	Total  int64
	Count  int64
}

type taskSubtaskAgg struct {
	TaskID string
	Total  int64
	Done   int64
}

// buildTaskViews attaches project labels and rollups to tasks, keeping order.
func buildTaskViews(db *gorm.DB, tasks []models.Task) ([]TaskView, error) {
	views := make([]TaskView, len(tasks))
	if len(tasks) == 0 {
		return views, nil
	}

	taskIDs := make([]string, 0, len(tasks))
	projectIDs := make([]string, 0)
	for _, t := range tasks {
		taskIDs = append(taskIDs, t.ID)
		if t.ProjectID != nil {
			projectIDs = append(projectIDs, *t.ProjectID)
		}
	}

	var entryAggs []taskEntryAgg
	if err := db.Model(&models.TimeEntry{}).
		Select("task_id, COALESCE(SUM(duration_minutes), 0) AS total, COUNT(*) AS count").
		Where("task_id IN ?", taskIDs).
		Group("task_id").
		Scan(&entryAggs).Error; err != nil {
		return nil, response.WrapServerError("failed to aggregate time entries", err)
	}
	entries := make(map[string]taskEntryAgg, len(entryAggs))
	for _, a := range entryAggs {
		entries[a.TaskID] = a
	}

	var subtaskAggs []taskSubtaskAgg
	if err := db.Model(&models.Subtask{}).
		Select("task_id, COUNT(*) AS total, COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0) AS done").
		Where("task_id IN ?", taskIDs).
		Group("task_id").
		Scan(&subtaskAggs).Error; err != nil {
		return nil, response.WrapServerError("failed to aggregate subtasks", err)
	}
	subtasks := make(map[string]taskSubtaskAgg, len(subtaskAggs))
	for _, a := range subtaskAggs {
		subtasks[a.TaskID] = a
	}

	projects := make(map[string]models.Project)
	if len(projectIDs) > 0 {
		var rows []models.Project
		if err := db.Where("id IN ?", projectIDs).Find(&rows).Error; err != nil {
			return nil, response.WrapServerError("failed to load projects", err)
		}
		for _, p := range rows {
			projects[p.ID] = p
		}
	}

	for i, t := range tasks {
		v := TaskView{Task: t}
		if t.ProjectID != nil {
			if p, ok := projects[*t.ProjectID]; ok {
				name, color := p.Name, p.Color
				v.ProjectName = &name
				v.ProjectColor = &color
			}
		}
		e := entries[t.ID]
		v.TotalMinutes = e.Total
		v.EntryCount = e.Count
		st := subtasks[t.ID]
		v.SubtaskCount = st.Total
		v.SubtaskDone = st.Done
		views[i] = v
	}
	return views, nil
}
