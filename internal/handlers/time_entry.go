package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type TimeEntryHandler struct {
	timeEntryService *services.TimeEntryService
}

func NewTimeEntryHandler(db *gorm.DB) *TimeEntryHandler {
	return &TimeEntryHandler{
		timeEntryService: services.NewTimeEntryService(db),
	}
}

// ListByTask
// GET /api/tasks/:id/entries
func (h *TimeEntryHandler) ListByTask(c *gin.Context) {
	entries, err := h.timeEntryService.ListByTask(middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// ListAll returns the caller's most recent entries across tasks
// GET /api/entries
func (h *TimeEntryHandler) ListAll(c *gin.Context) {
	entries, err := h.timeEntryService.ListAll(middleware.GetIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// Create records a manual entry
// POST /api/tasks/:id/entries
func (h *TimeEntryHandler) Create(c *gin.Context) {
	var req services.CreateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entry, err := h.timeEntryService.Create(middleware.GetIdentity(c), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// DELETE /api/entries/:id
func (h *TimeEntryHandler) Delete(c *gin.Context) {
	if err := h.timeEntryService.Delete(middleware.GetIdentity(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "time entry deleted"})
}
