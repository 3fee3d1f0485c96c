package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tasktimer/internal/middleware"
	"github.com/huangang/tasktimer/internal/services"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

type SystemConfigHandler struct {
	configService *services.SystemConfigService
}

func NewSystemConfigHandler(db *gorm.DB) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: services.NewSystemConfigService(db),
	}
}

// GET /api/admin/settings
func (h *SystemConfigHandler) List(c *gin.Context) {
	configs, err := h.configService.List(middleware.GetIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, configs)
}

// Update changes a token lifetime or the log retention
// PUT /api/admin/settings/:key
func (h *SystemConfigHandler) Update(c *gin.Context) {
	var req services.UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cfg, err := h.configService.UpdateSetting(middleware.GetIdentity(c), c.Param("key"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cfg)
}
