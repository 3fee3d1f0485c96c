package services

import (
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

const (
	dashboardRecentEntries = 10
	dashboardDays          = 7
)

type DashboardService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db, now: time.Now}
}

type DashboardSummary struct {
	TotalTasks        int64           `json:"total_tasks"`
	CompletedTasks    int64           `json:"completed_tasks"`
	PendingTasks      int64           `json:"pending_tasks"`
	InProgressTasks   int64           `json:"in_progress_tasks"`
	TotalMinutesToday int64           `json:"total_minutes_today"`
	TotalMinutesMonth int64           `json:"total_minutes_month"`
	TotalEntriesToday int64           `json:"total_entries_today"`
	RecentEntries     []TimeEntryView `json:"recent_entries"`
	ProjectStats      []ProjectStat   `json:"project_stats"`
	DailyMinutes      []DailyMinutes  `json:"daily_minutes"`
}

type ProjectStat struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	TaskCount    int64  `json:"task_count"`
	TotalMinutes int64  `json:"total_minutes"`
}

type DailyMinutes struct {
	Date    string `json:"date"`
	Minutes int64  `json:"minutes"`
}

type statusCount struct {
	Status models.TaskStatus
	Count  int64
}

// GetSummary builds the caller's dashboard. Day and month boundaries are UTC.
func (s *DashboardService) GetSummary(caller authz.Identity) (*DashboardSummary, error) {
	summary := &DashboardSummary{}

	var counts []statusCount
	if err := s.db.Model(&models.Task{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", caller.UserID).
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, response.WrapServerError("failed to count tasks", err)
	}
	for _, c := range counts {
		summary.TotalTasks += c.Count
		switch c.Status {
		case models.TaskStatusCompleted:
			summary.CompletedTasks = c.Count
		case models.TaskStatusPending:
			summary.PendingTasks = c.Count
		case models.TaskStatusInProgress:
			summary.InProgressTasks = c.Count
		}
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	weekStart := today.AddDate(0, 0, -(dashboardDays - 1))
	since := monthStart
	if weekStart.Before(since) {
		since = weekStart
	}

	var entries []models.TimeEntry
	if err := s.db.Select("duration_minutes", "created_at").
		Where("user_id = ? AND created_at >= ?", caller.UserID, since).
		Find(&entries).Error; err != nil {
		return nil, response.WrapServerError("failed to load time entries", err)
	}

	daily := make(map[string]int64, dashboardDays)
	for _, e := range entries {
		created := e.CreatedAt.UTC()
		if !created.Before(today) {
			summary.TotalMinutesToday += e.DurationMinutes
			summary.TotalEntriesToday++
		}
		if !created.Before(monthStart) {
			summary.TotalMinutesMonth += e.DurationMinutes
		}
		if !created.Before(weekStart) {
			daily[created.Format("2006-01-02")] += e.DurationMinutes
		}
	}
	summary.DailyMinutes = make([]DailyMinutes, 0, dashboardDays)
	for d := weekStart; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		summary.DailyMinutes = append(summary.DailyMinutes, DailyMinutes{Date: key, Minutes: daily[key]})
	}

	recent, err := listTimeEntries(s.db.Where("time_entries.user_id = ?", caller.UserID), dashboardRecentEntries)
	if err != nil {
		return nil, err
	}
	summary.RecentEntries = recent

	projects, err := NewProjectService(s.db).List(caller)
	if err != nil {
		return nil, err
	}
	summary.ProjectStats = make([]ProjectStat, 0, len(projects))
	for _, p := range projects {
		summary.ProjectStats = append(summary.ProjectStats, ProjectStat{
			ID:           p.ID,
			Name:         p.Name,
			Color:        p.Color,
			TaskCount:    p.TaskCount,
			TotalMinutes: p.TotalMinutes,
		})
	}

	return summary, nil
}
