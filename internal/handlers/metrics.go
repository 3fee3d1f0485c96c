package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/internal/services"
	"gorm.io/gorm"
)

var startTime = time.Now()

type MetricsHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.SSEHub
}

func NewMetricsHandler(db *gorm.DB, queue services.TaskQueue, hub *services.SSEHub) *MetricsHandler {
	return &MetricsHandler{db: db, queue: queue, hub: hub}
}

// Metrics returns Prometheus-compatible text format metrics.
// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	// -- Runtime metrics --
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "tasktimer_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "tasktimer_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "tasktimer_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "tasktimer_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	// -- Database metrics --
	if sqlDB, err := h.db.DB(); err == nil {
		stats := sqlDB.Stats()
		writeGauge(&b, "tasktimer_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
		writeGauge(&b, "tasktimer_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
	}

	// -- SSE metrics --
	if h.hub != nil {
		writeGauge(&b, "tasktimer_sse_active_clients", "Number of active SSE connections", float64(h.hub.ClientCount()))
	}

	// -- Queue metrics --
	queueAsync := 0.0
	if h.queue != nil && h.queue.IsAsync() {
		queueAsync = 1.0
	}
	writeGauge(&b, "tasktimer_queue_async_enabled", "Whether the audit queue runs on Redis (1=yes, 0=no)", queueAsync)

	// -- Domain metrics --
	for _, status := range []models.TaskStatus{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusCompleted} {
		var n int64
		h.db.Model(&models.Task{}).Where("status = ?", status).Count(&n)
		writeLabeledGauge(&b, "tasktimer_tasks", "Number of tasks by status", "status", string(status), float64(n))
	}

	var runningTimers, users, entries24h int64
	h.db.Model(&models.ActiveTimer{}).Count(&runningTimers)
	h.db.Model(&models.User{}).Count(&users)
	h.db.Model(&models.TimeEntry{}).Where("created_at >= ?", time.Now().UTC().Add(-24*time.Hour)).Count(&entries24h)

	writeGauge(&b, "tasktimer_active_timers", "Number of running timers", float64(runningTimers))
	writeGauge(&b, "tasktimer_users_total", "Number of accounts", float64(users))
	writeGauge(&b, "tasktimer_time_entries_24h", "Time entries recorded in the last 24 hours", float64(entries24h))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}

// writeLabeledGauge emits HELP and TYPE once per metric name.
func writeLabeledGauge(b *strings.Builder, name, help, label, labelValue string, value float64) {
	if !strings.Contains(b.String(), "# TYPE "+name+" ") {
		fmt.Fprintf(b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	}
	fmt.Fprintf(b, "%s{%s=%q} %g\n", name, label, labelValue, value)
}
