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

type ProjectService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db, now: time.Now}
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	Description *string `json:"description"`
}

// ProjectView is a project with task counts per status and logged minutes.
type ProjectView struct {
	models.Project
	TaskCount       int64 `json:"task_count"`
	PendingCount    int64 `json:"pending_count"`
	InProgressCount int64 `json:"in_progress_count"`
	CompletedCount  int64 `json:"completed_count"`
	TotalMinutes    int64 `json:"total_minutes"`
}

type projectStatusAgg struct {
	ProjectID string
	Status    models.TaskStatus
	Count     int64
}

type projectMinutesAgg struct {
	ProjectID string
	Total     int64
}

func (s *ProjectService) List(caller authz.Identity) ([]ProjectView, error) {
	var projects []models.Project
	if err := s.db.Where("user_id = ?", caller.UserID).
		Order("name ASC").
		Find(&projects).Error; err != nil {
		return nil, response.WrapServerError("failed to list projects", err)
	}
	return s.buildViews(caller.UserID, projects)
}

func (s *ProjectService) GetByID(caller authz.Identity, id string) (*ProjectView, error) {
	project, err := s.owned(caller.UserID, id)
	if err != nil {
		return nil, err
	}
	views, err := s.buildViews(caller.UserID, []models.Project{*project})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ProjectService) Create(caller authz.Identity, req *CreateProjectRequest) (*ProjectView, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, response.NewBadRequest("name is required")
	}

	project := models.Project{
		Name:        name,
		Color:       stringOr(&req.Color, models.DefaultProjectColor),
		Description: req.Description,
		UserID:      caller.UserID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.db.Create(&project).Error; err != nil {
		return nil, response.WrapServerError("failed to create project", err)
	}
	return &ProjectView{Project: project}, nil
}

func (s *ProjectService) Update(caller authz.Identity, id string, req *UpdateProjectRequest) (*ProjectView, error) {
	if _, err := s.owned(caller.UserID, id); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, response.NewBadRequest("name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Color != nil {
		updates["color"] = stringOr(req.Color, models.DefaultProjectColor)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}

	if len(updates) > 0 {
		if err := s.db.Model(&models.Project{}).
			Where("id = ? AND user_id = ?", id, caller.UserID).
			Updates(updates).Error; err != nil {
			return nil, response.WrapServerError("failed to update project", err)
		}
	}
	return s.GetByID(caller, id)
}

// Delete removes the project. Its tasks are kept and detached.
func (s *ProjectService) Delete(caller authz.Identity, id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Select("id").Where("id = ? AND user_id = ?", id, caller.UserID).First(&project).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Task{}).
			Where("project_id = ? AND user_id = ?", id, caller.UserID).
			UpdateColumn("project_id", gorm.Expr("NULL")).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, caller.UserID).Delete(&models.Project{}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("project")
	}
	if err != nil {
		return response.WrapServerError("failed to delete project", err)
	}
	return nil
}

func (s *ProjectService) owned(userID, id string) (*models.Project, error) {
	var project models.Project
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&project).Error; err != nil {
		return nil, lookupError("project", err)
	}
	return &project, nil
}

func (s *ProjectService) buildViews(userID string, projects []models.Project) ([]ProjectView, error) {
	views := make([]ProjectView, len(projects))
	if len(projects) == 0 {
		return views, nil
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}

	var statusAggs []projectStatusAgg
	if err := s.db.Model(&models.Task{}).
		Select("project_id, status, COUNT(*) AS count").
		Where("user_id = ? AND project_id IN ?", userID, ids).
		Group("project_id, status").
		Scan(&statusAggs).Error; err != nil {
		return nil, response.WrapServerError("failed to aggregate project tasks", err)
	}

	var minuteAggs []projectMinutesAgg
	if err := s.db.Table("time_entries").
		Select("tasks.project_id AS project_id, COALESCE(SUM(time_entries.duration_minutes), 0) AS total").
		Joins("JOIN tasks ON tasks.id = time_entries.task_id").
		Where("tasks.user_id = ? AND tasks.project_id IN ?", userID, ids).
		Group("tasks.project_id").
		Scan(&minuteAggs).Error; err != nil {
		return nil, response.WrapServerError("failed to aggregate project time", err)
	}

	index := make(map[string]int, len(projects))
	for i, p := range projects {
		views[i] = ProjectView{Project: p}
		index[p.ID] = i
	}
	for _, a := range statusAggs {
		i, ok := index[a.ProjectID]
		if !ok {
			continue
		}
		views[i].TaskCount += a.Count
		switch a.Status {
		case models.TaskStatusPending:
			views[i].PendingCount += a.Count
		case models.TaskStatusInProgress:
			views[i].InProgressCount += a.Count
		case models.TaskStatusCompleted:
			views[i].CompletedCount += a.Count
		}
	}
	for _, a := range minuteAggs {
		if i, ok := index[a.ProjectID]; ok {
			views[i].TotalMinutes = a.Total
		}
	}
	return views, nil
}
