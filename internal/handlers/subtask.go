package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type SubtaskHandler struct {
	subtaskService *services.SubtaskService
}

func NewSubtaskHandler(db *gorm.DB) *SubtaskHandler {
	return &SubtaskHandler{
		subtaskService: services.NewSubtaskService(db),
	}
}

// GET /api/tasks/:id/subtasks
func (h *SubtaskHandler) List(c *gin.Context) {
	subtasks, err := h.subtaskService.List(middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, subtasks)
}

// POST /api/tasks/:id/subtasks
func (h *SubtaskHandler) Create(c *gin.Context) {
	var req services.CreateSubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	subtask, err := h.subtaskService.Create(middleware.GetIdentity(c), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subtask)
}

// PUT /api/subtasks/:id
func (h *SubtaskHandler) Update(c *gin.Context) {
	var req services.UpdateSubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	subtask, err := h.subtaskService.Update(middleware.GetIdentity(c), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, subtask)
}

// DELETE /api/subtasks/:id
func (h *SubtaskHandler) Delete(c *gin.Context) {
	if err := h.subtaskService.Delete(middleware.GetIdentity(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "subtask deleted"})
}
