package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/config"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string, role models.Role) authz.Identity {
	t.Helper()
	user := models.User{Username: username, PasswordHash: "x", Role: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return authz.Identity{UserID: user.ID, Role: role}
}

func createTask(t *testing.T, db *gorm.DB, owner authz.Identity, title string) *models.Task {
	t.Helper()
	task := models.Task{Title: title, UserID: owner.UserID}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	return &task
}

func reloadTask(t *testing.T, db *gorm.DB, id string) models.Task {
	t.Helper()
	var task models.Task
	if err := db.Where("id = ?", id).First(&task).Error; err != nil {
		t.Fatalf("reload task %s: %v", id, err)
	}
	return task
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	if got := response.StatusOf(err); got != want {
		t.Fatalf("status = %d, expected %d (err: %v)", got, want, err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []TimerEvent
}

func (p *recordingPublisher) PublishTimerEvent(event TimerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []TimerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TimerEvent(nil), p.events...)
}
