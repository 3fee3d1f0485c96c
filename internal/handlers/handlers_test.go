package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/config"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/internal/utils"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handler-testing")
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	db     *gorm.DB
	router *gin.Engine
	hub    *services.SSEHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "handlers.db"),
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

	hub := services.NewSSEHub()
	cfg := config.DefaultConfig()
	authHandler := NewAuthHandler(db, cfg)
	timerHandler := NewTimerHandler(db, hub)
	taskHandler := NewTaskHandler(db)
	subtaskHandler := NewSubtaskHandler(db)
	userHandler := NewUserHandler(db)
	healthHandler := NewHealthHandler(db, services.NewSyncQueue(), hub)
	metricsHandler := NewMetricsHandler(db, services.NewSyncQueue(), hub)

	r := gin.New()
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", metricsHandler.Metrics)
	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	protected := api.Group("", middleware.AuthRequired())
	protected.GET("/auth/me", authHandler.GetCurrentUser)
	protected.POST("/timer/start/:task_id", timerHandler.Start)
	protected.POST("/timer/stop", timerHandler.Stop)
	protected.GET("/timer/active", timerHandler.GetActive)
	protected.GET("/tasks", taskHandler.List)
	protected.POST("/tasks", taskHandler.Create)
	protected.GET("/tasks/:id", taskHandler.GetByID)
	protected.PUT("/tasks/:id", taskHandler.Update)
	protected.DELETE("/tasks/:id", taskHandler.Delete)
	protected.GET("/tasks/:id/subtasks", subtaskHandler.List)
	protected.POST("/tasks/:id/subtasks", subtaskHandler.Create)

	admin := protected.Group("", middleware.AdminRequired())
	admin.GET("/users", userHandler.List)
	admin.PUT("/users/:id/role", userHandler.UpdateRole)

	return &testServer{db: db, router: r, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

type account struct {
	ID    string
	Role  models.Role
	Token string
}

func (s *testServer) register(t *testing.T, username string) account {
	t.Helper()
	w, env := s.do(t, "POST", "/api/auth/register", "", gin.H{"username": username, "password": "secret123"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var result struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decodeData(t, env, &result)
	return account{ID: result.User.ID, Role: result.User.Role, Token: result.Token}
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func (s *testServer) createTask(t *testing.T, token, title string) string {
	t.Helper()
	w, env := s.do(t, "POST", "/api/tasks", token, gin.H{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: status %d body %s", w.Code, w.Body.String())
	}
	var task services.TaskView
	decodeData(t, env, &task)
	return task.ID
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	first := s.register(t, "alice")
	if first.Role != models.RoleAdmin {
		t.Errorf("first account role = %q, expected admin", first.Role)
	}
	second := s.register(t, "bob")
	if second.Role != models.RoleUser {
		t.Errorf("second account role = %q, expected user", second.Role)
	}

	w, _ := s.do(t, "POST", "/api/auth/register", "", gin.H{"username": "bob", "password": "secret123"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register: expected %d, got %d", http.StatusConflict, w.Code)
	}

	w, _ = s.do(t, "POST", "/api/auth/login", "", gin.H{"username": "bob", "password": "wrong-password"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login: expected %d, got %d", http.StatusUnauthorized, w.Code)
	}

	w, env := s.do(t, "POST", "/api/auth/login", "", gin.H{"username": "bob", "password": "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected %d, got %d", http.StatusOK, w.Code)
	}
	var result services.AuthResult
	decodeData(t, env, &result)
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("login should issue both tokens: %+v", result)
	}

	w, _ = s.do(t, "GET", "/api/auth/me", result.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("me: expected %d, got %d", http.StatusOK, w.Code)
	}

	w, _ = s.do(t, "POST", "/api/auth/refresh", "", gin.H{"refresh_token": result.RefreshToken})
	if w.Code != http.StatusOK {
		t.Errorf("refresh: expected %d, got %d", http.StatusOK, w.Code)
	}
	w, _ = s.do(t, "POST", "/api/auth/refresh", "", gin.H{"refresh_token": result.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("reused refresh token: expected %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestRegister_ValidationError(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, "POST", "/api/auth/register", "", gin.H{"username": "carol", "password": "123"})
	if w.Code != http.StatusBadRequest || env.Code != 400 {
		t.Errorf("short password: expected 400, got %d (%+v)", w.Code, env)
	}
}

func TestTimerLifecycle(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")
	taskID := s.createTask(t, user.Token, "Write report")

	events := s.hub.Subscribe("test-client", user.ID)
	defer s.hub.Unsubscribe("test-client")

	w, env := s.do(t, "GET", "/api/timer/active", user.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("active: expected %d, got %d", http.StatusOK, w.Code)
	}
	var active services.ActiveTimerResponse
	decodeData(t, env, &active)
	if active.Active {
		t.Fatalf("no timer should be running yet: %+v", active)
	}

	w, _ = s.do(t, "POST", "/api/timer/start/"+taskID, user.Token, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start: expected %d, got %d body %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if ev := <-events; ev.Type != services.TimerEventStarted || ev.TaskID != taskID {
		t.Errorf("unexpected start event: %+v", ev)
	}

	_, env = s.do(t, "GET", "/api/tasks/"+taskID, user.Token, nil)
	var task services.TaskView
	decodeData(t, env, &task)
	if task.Status != models.TaskStatusInProgress {
		t.Errorf("task status while timing = %q, expected in_progress", task.Status)
	}

	w, env = s.do(t, "POST", "/api/timer/stop", user.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected %d, got %d", http.StatusOK, w.Code)
	}
	var stopped services.StopTimerResponse
	decodeData(t, env, &stopped)
	if !stopped.Stopped || stopped.TaskID != taskID || stopped.DurationMinutes > 1 {
		t.Errorf("unexpected stop result: %+v", stopped)
	}
	if ev := <-events; ev.Type != services.TimerEventStopped {
		t.Errorf("unexpected stop event: %+v", ev)
	}

	w, env = s.do(t, "POST", "/api/timer/stop", user.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second stop: expected %d, got %d", http.StatusOK, w.Code)
	}
	decodeData(t, env, &stopped)
	if stopped.Stopped {
		t.Errorf("second stop should be a no-op: %+v", stopped)
	}
}

func TestTimerStart_WithNotes(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")
	taskID := s.createTask(t, user.Token, "Review")

	w, env := s.do(t, "POST", "/api/timer/start/"+taskID, user.Token, gin.H{"notes": "first pass"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start: expected %d, got %d", http.StatusCreated, w.Code)
	}
	var timer services.ActiveTimerView
	decodeData(t, env, &timer)
	if timer.Notes != "first pass" || timer.TaskTitle != "Review" {
		t.Errorf("unexpected timer: %+v", timer)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")
	taskID := s.createTask(t, alice.Token, "Private")

	tests := []struct {
		method, path string
		body         interface{}
	}{
		{"GET", "/api/tasks/" + taskID, nil},
		{"PUT", "/api/tasks/" + taskID, gin.H{"title": "stolen"}},
		{"DELETE", "/api/tasks/" + taskID, nil},
		{"POST", "/api/timer/start/" + taskID, nil},
		{"GET", "/api/tasks/" + taskID + "/subtasks", nil},
		{"POST", "/api/tasks/" + taskID + "/subtasks", gin.H{"title": "sneaky"}},
	}

	for _, tt := range tests {
		w, _ := s.do(t, tt.method, tt.path, bob.Token, tt.body)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s as another user: expected %d, got %d", tt.method, tt.path, http.StatusNotFound, w.Code)
		}
	}

	_, env := s.do(t, "GET", "/api/tasks", bob.Token, nil)
	var tasks []services.TaskView
	decodeData(t, env, &tasks)
	if len(tasks) != 0 {
		t.Errorf("bob should see no tasks, got %d", len(tasks))
	}

	w, _ := s.do(t, "GET", "/api/tasks/"+taskID, alice.Token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("owner read: expected %d, got %d", http.StatusOK, w.Code)
	}
}

func TestUpdateTask_InvalidStatus(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")
	taskID := s.createTask(t, user.Token, "Plan")

	w, _ := s.do(t, "PUT", "/api/tasks/"+taskID, user.Token, gin.H{"status": "archived"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestUserAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.register(t, "alice")
	user := s.register(t, "bob")

	w, _ := s.do(t, "GET", "/api/users", user.Token, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("user listing users: expected %d, got %d", http.StatusForbidden, w.Code)
	}

	w, env := s.do(t, "GET", "/api/users", admin.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin listing users: expected %d, got %d", http.StatusOK, w.Code)
	}
	var list services.UserListResponse
	decodeData(t, env, &list)
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].ID != user.ID {
		t.Errorf("admin should only see plain users: %+v", list)
	}

	w, _ = s.do(t, "PUT", "/api/users/"+admin.ID+"/role", admin.Token, gin.H{"role": "user"})
	if w.Code != http.StatusForbidden {
		t.Errorf("self role change: expected %d, got %d", http.StatusForbidden, w.Code)
	}

	w, _ = s.do(t, "PUT", "/api/users/"+user.ID+"/role", admin.Token, gin.H{"role": "superadmin"})
	if w.Code != http.StatusForbidden {
		t.Errorf("admin granting superadmin: expected %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, "GET", "/api/tasks", "", nil)
	if w.Code != http.StatusUnauthorized || env.Code != 401 {
		t.Errorf("expected 401, got %d (%+v)", w.Code, env)
	}
}

func TestCheckHealth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}
	var body struct {
		Status     string                 `json:"status"`
		Service    string                 `json:"service"`
		Components map[string]interface{} `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Service != "tasktimer" {
		t.Errorf("unexpected health: %+v", body)
	}
	if body.Components["queue_mode"] != "sync" || body.Components["database"] != "ok" {
		t.Errorf("unexpected components: %+v", body.Components)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")
	taskID := s.createTask(t, user.Token, "Measure")
	s.createTask(t, user.Token, "Idle")
	if w, _ := s.do(t, "POST", "/api/timer/start/"+taskID, user.Token, nil); w.Code != http.StatusCreated {
		t.Fatalf("start: %d", w.Code)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`tasktimer_tasks{status="pending"} 1`,
		`tasktimer_tasks{status="in_progress"} 1`,
		"tasktimer_active_timers 1",
		"tasktimer_users_total 1",
		"tasktimer_queue_async_enabled 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if n := strings.Count(body, "# TYPE tasktimer_tasks gauge"); n != 1 {
		t.Errorf("tasktimer_tasks TYPE line appears %d times", n)
	}
}
