package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: services.NewDashboardService(db),
	}
}

// GetSummary returns dashboard statistics for the caller
// GET /api/dashboard/summary
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	summary, err := h.dashboardService.GetSummary(middleware.GetIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}
