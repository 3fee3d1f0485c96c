package services

import (
	"errors"
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/logger"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

// errTimerGone signals that the active timer row vanished between load and
// delete, i.e. a concurrent stop closed it first.
var errTimerGone = errors.New("active timer already closed")

// TimerEventPublisher receives timer transitions after they are committed.
type TimerEventPublisher interface {
	PublishTimerEvent(event TimerEvent)
}

type TimerService struct {
	db     *gorm.DB
	events TimerEventPublisher
	now    func() time.Time
}

func NewTimerService(db *gorm.DB, events TimerEventPublisher) *TimerService {
	return &TimerService{db: db, events: events, now: time.Now}
}

type StartTimerRequest struct {
	Notes string `json:"notes"`
}

type ActiveTimerView struct {
	ID             string    `json:"id"`
	TaskID         string    `json:"task_id"`
	TaskTitle      string    `json:"task_title"`
	StartTime      time.Time `json:"start_time"`
	Notes          string    `json:"notes"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}

type ActiveTimerResponse struct {
	Active bool             `json:"active"`
	Timer  *ActiveTimerView `json:"timer"`
}

type StopTimerResponse struct {
	Stopped         bool   `json:"stopped"`
	Message         string `json:"message,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	EntryID         string `json:"entry_id,omitempty"`
	DurationMinutes int64  `json:"duration_minutes"`
}

// ElapsedSeconds is the whole number of seconds between start and now,
// clamped at zero when the clock moved backwards.
func ElapsedSeconds(start, now time.Time) int64 {
	secs := int64(now.Sub(start) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// DurationMinutes rounds an interval up to whole minutes: 1s is 1 minute,
// 60s is 1 minute, 61s is 2 minutes, 0s is 0.
func DurationMinutes(start, end time.Time) int64 {
	return (ElapsedSeconds(start, end) + 59) / 60
}

// closedTimer describes a running timer that was converted into an entry.
type closedTimer struct {
	timer models.ActiveTimer
	entry models.TimeEntry
}

// Start begins timing taskID for caller. A timer already running for caller
// is closed into a time entry first.
func (s *TimerService) Start(caller authz.Identity, taskID string, req *StartTimerRequest) (*ActiveTimerView, error) {
	task, err := ownedTask(s.db, caller.UserID, taskID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if _, err := s.closeRunning(caller.UserID, now); err != nil {
		return nil, err
	}

	timer := models.ActiveTimer{
		TaskID:    task.ID,
		UserID:    caller.UserID,
		StartTime: now,
		CreatedAt: now,
	}
	if req != nil {
		timer.Notes = req.Notes
	}
	if err := s.db.Create(&timer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, response.NewConflict("a timer is already running")
		}
		return nil, response.WrapServerError("failed to start timer", err)
	}

	s.setTaskStatus(caller.UserID, task.ID, models.TaskStatusInProgress, "", now)

	s.publish(TimerEvent{
		Type:      TimerEventStarted,
		UserID:    caller.UserID,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		TimerID:   timer.ID,
		At:        now,
	})

	return &ActiveTimerView{
		ID:             timer.ID,
		TaskID:         task.ID,
		TaskTitle:      task.Title,
		StartTime:      timer.StartTime,
		Notes:          timer.Notes,
		ElapsedSeconds: 0,
		CreatedAt:      timer.CreatedAt,
	}, nil
}

// Stop closes the caller's running timer into a time entry. Stopping with no
// running timer is not an error.
func (s *TimerService) Stop(caller authz.Identity) (*StopTimerResponse, error) {
	now := s.now().UTC()
	closed, err := s.closeRunning(caller.UserID, now)
	if err != nil {
		return nil, err
	}
	if closed == nil {
		return &StopTimerResponse{Stopped: false, Message: "No active timer"}, nil
	}

	return &StopTimerResponse{
		Stopped:         true,
		TaskID:          closed.entry.TaskID,
		EntryID:         closed.entry.ID,
		DurationMinutes: closed.entry.DurationMinutes,
	}, nil
}

// GetActive reports the caller's running timer with elapsed time computed
// at read time.
func (s *TimerService) GetActive(caller authz.Identity) (*ActiveTimerResponse, error) {
	var timer models.ActiveTimer
	if err := s.db.Where("user_id = ?", caller.UserID).First(&timer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ActiveTimerResponse{Active: false}, nil
		}
		return nil, response.WrapServerError("failed to load active timer", err)
	}

	var task models.Task
	if err := s.db.Select("id", "title").
		Where("id = ? AND user_id = ?", timer.TaskID, caller.UserID).
		First(&task).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.WrapServerError("failed to load timer task", err)
	}

	return &ActiveTimerResponse{
		Active: true,
		Timer: &ActiveTimerView{
			ID:             timer.ID,
			TaskID:         timer.TaskID,
			TaskTitle:      task.Title,
			StartTime:      timer.StartTime.UTC(),
			Notes:          timer.Notes,
			ElapsedSeconds: ElapsedSeconds(timer.StartTime, s.now()),
			CreatedAt:      timer.CreatedAt.UTC(),
		},
	}, nil
}

// closeRunning converts the user's running timer, if any, into a time entry.
// The entry insert and timer delete share one transaction so elapsed time is
// recorded exactly once. Returns nil when nothing was running.
func (s *TimerService) closeRunning(userID string, now time.Time) (*closedTimer, error) {
	var timer models.ActiveTimer
	if err := s.db.Where("user_id = ?", userID).First(&timer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, response.WrapServerError("failed to load active timer", err)
	}

	end := now
	entry := models.TimeEntry{
		TaskID:          timer.TaskID,
		StartTime:       timer.StartTime,
		EndTime:         &end,
		DurationMinutes: DurationMinutes(timer.StartTime, now),
		Notes:           timer.Notes,
		UserID:          userID,
		CreatedAt:       now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", timer.ID, userID).Delete(&models.ActiveTimer{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTimerGone
		}
		return nil
	})
	if errors.Is(err, errTimerGone) {
		return nil, nil
	}
	if err != nil {
		return nil, response.WrapServerError("failed to record time entry", err)
	}

	// Only an in_progress task goes back to pending; a status set while the
	// timer ran (e.g. completed) is kept.
	s.setTaskStatus(userID, timer.TaskID, models.TaskStatusPending, models.TaskStatusInProgress, now)

	s.publish(TimerEvent{
		Type:            TimerEventStopped,
		UserID:          userID,
		TaskID:          timer.TaskID,
		TimerID:         timer.ID,
		EntryID:         entry.ID,
		DurationMinutes: entry.DurationMinutes,
		At:              now,
	})

	return &closedTimer{timer: timer, entry: entry}, nil
}

// setTaskStatus is best effort: the timer transition has already committed,
// so failures are logged and swallowed. When from is set the update only
// applies to tasks currently in that status.
func (s *TimerService) setTaskStatus(userID, taskID string, to, from models.TaskStatus, now time.Time) {
	q := s.db.Model(&models.Task{}).Where("id = ? AND user_id = ?", taskID, userID)
	if from != "" {
		q = q.Where("status = ?", from)
	}
	err := q.Updates(map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}).Error
	if err != nil {
		logger.Warn().Err(err).
			Str("task_id", taskID).
			Str("status", string(to)).
			Msg("failed to update task status after timer change")
	}
}

func (s *TimerService) publish(event TimerEvent) {
	if s.events != nil {
		s.events.PublishTimerEvent(event)
	}
}
