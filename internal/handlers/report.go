package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type ReportHandler struct {
	reportService *services.ReportService
}

func NewReportHandler(db *gorm.DB) *ReportHandler {
	return &ReportHandler{
		reportService: services.NewReportService(db),
	}
}

// TimeReport returns per-user totals for the users the caller may report on
// GET /api/admin/time-report?start_date=&end_date=
func (h *ReportHandler) TimeReport(c *gin.Context) {
	var req services.TimeReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	report, err := h.reportService.TimeReport(middleware.GetIdentity(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// AllTasks
// GET /api/admin/tasks
func (h *ReportHandler) AllTasks(c *gin.Context) {
	tasks, err := h.reportService.AllTasks(middleware.GetIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tasks)
}
