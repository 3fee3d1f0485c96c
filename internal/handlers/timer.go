package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type TimerHandler struct {
	timerService *services.TimerService
}

func NewTimerHandler(db *gorm.DB, events services.TimerEventPublisher) *TimerHandler {
	return &TimerHandler{
		timerService: services.NewTimerService(db, events),
	}
}

// Start begins timing a task, closing any timer already running
// POST /api/timer/start/:task_id
func (h *TimerHandler) Start(c *gin.Context) {
	var req services.StartTimerRequest
	// the body is optional
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(c, err.Error())
			return
		}
	}

	timer, err := h.timerService.Start(middleware.GetIdentity(c), c.Param("task_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timer)
}

// Stop
// POST /api/timer/stop
func (h *TimerHandler) Stop(c *gin.Context) {
	result, err := h.timerService.Stop(middleware.GetIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetActive
// GET /api/timer/active
func (h *TimerHandler) GetActive(c *gin.Context) {
	result, err := h.timerService.GetActive(middleware.GetIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
