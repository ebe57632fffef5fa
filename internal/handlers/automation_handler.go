package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AutomationHandler 自动化处理器
type AutomationHandler struct {
	automationService *services.AutomationService
	logger            *logrus.Logger
}

// NewAutomationHandler 创建自动化处理器
func NewAutomationHandler(automationService *services.AutomationService, logger *logrus.Logger) *AutomationHandler {
	return &AutomationHandler{
		automationService: automationService,
		logger:            logger,
	}
}

// CreateAutomation 创建自动化
// @Summary 创建自动化
// @Description 创建一条触发器+动作列表的自动化规则
// @Tags 自动化
// @Accept json
// @Produce json
// @Param automation body services.AutomationRequest true "自动化定义"
// @Success 201 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/automations [post]
func (h *AutomationHandler) CreateAutomation(c *gin.Context) {
	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	automation, err := h.automationService.CreateAutomation(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to create automation: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to create automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, automation)
}

// GetAutomation 获取自动化详情
// @Summary 获取自动化详情
// @Tags 自动化
// @Produce json
// @Param id path string true "自动化ID"
// @Success 200 {object} models.Automation
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id} [get]
func (h *AutomationHandler) GetAutomation(c *gin.Context) {
	automation, err := h.automationService.GetAutomation(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to get automation: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, automation)
}

// ListAutomations 获取自动化列表
// @Summary 获取自动化列表
// @Tags 自动化
// @Produce json
// @Param workspace_id query string false "工作区ID"
// @Success 200 {object} SuccessResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/automations [get]
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	automations, err := h.automationService.ListAutomations(c.Request.Context(), c.Query("workspace_id"))
	if err != nil {
		h.logger.Errorf("Failed to list automations: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list automations",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: automations})
}

// UpdateAutomation 更新自动化
// @Summary 更新自动化
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path string true "自动化ID"
// @Param automation body services.AutomationRequest true "自动化定义"
// @Success 200 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id} [put]
func (h *AutomationHandler) UpdateAutomation(c *gin.Context) {
	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	automation, err := h.automationService.UpdateAutomation(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to update automation: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to update automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, automation)
}

// DeleteAutomation 删除自动化
// @Summary 删除自动化
// @Tags 自动化
// @Param id path string true "自动化ID"
// @Success 204 "删除成功"
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id} [delete]
func (h *AutomationHandler) DeleteAutomation(c *gin.Context) {
	if err := h.automationService.DeleteAutomation(c.Request.Context(), c.Param("id")); err != nil {
		if err.Error() == "automation not found" {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to delete automation: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete automation",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// SetEnabled 启用/停用自动化
// @Summary 启用或停用自动化
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path string true "自动化ID"
// @Param request body object{enabled=bool} true "开关"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id}/enabled [put]
func (h *AutomationHandler) SetEnabled(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	if err := h.automationService.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		if err.Error() == "automation not found" {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to update automation enabled flag: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "automation updated"})
}

// CheckAutomation 手动触发一次检查
// @Summary 手动触发一次自动化检查
// @Description 立即评估触发条件；条件满足时创建并执行一次运行
// @Tags 自动化
// @Produce json
// @Param id path string true "自动化ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/automations/{id}/check [post]
func (h *AutomationHandler) CheckAutomation(c *gin.Context) {
	run, err := h.automationService.CheckAndRun(c.Request.Context(), c.Param("id"), time.Now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to check automation: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to check automation",
			Message: err.Error(),
		})
		return
	}

	if run == nil {
		c.JSON(http.StatusOK, SuccessResponse{Message: "not triggered"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "triggered", Data: run})
}

// ListRuns 获取运行记录列表
// @Summary 获取运行记录列表
// @Tags 自动化
// @Produce json
// @Param automation_id query string false "自动化ID"
// @Param status query string false "运行状态"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页大小" default(50)
// @Success 200 {object} PaginatedResponse{data=[]models.AutomationRun}
// @Failure 400 {object} ErrorResponse
// @Router /api/automation-runs [get]
func (h *AutomationHandler) ListRuns(c *gin.Context) {
	var req services.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	runs, total, err := h.automationService.ListRuns(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to list automation runs: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list automation runs",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     runs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// GrantConsent 授予授权
// @Summary 授予账号对自动化的授权
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path string true "自动化ID"
// @Param request body object{social_account_id=string} true "账号"
// @Success 201 {object} models.Consent
// @Failure 400 {object} ErrorResponse
// @Router /api/automations/{id}/consents [post]
func (h *AutomationHandler) GrantConsent(c *gin.Context) {
	var req struct {
		SocialAccountID string `json:"social_account_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	consent, err := h.automationService.GrantConsent(c.Request.Context(), req.SocialAccountID, c.Param("id"))
	if err != nil {
		h.logger.Errorf("Failed to grant consent: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to grant consent",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, consent)
}

// RevokeConsent 撤销授权
// @Summary 撤销账号对自动化的授权
// @Tags 自动化
// @Param id path string true "自动化ID"
// @Param social_account_id query string true "账号ID"
// @Success 204 "撤销成功"
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id}/consents [delete]
func (h *AutomationHandler) RevokeConsent(c *gin.Context) {
	accountID := c.Query("social_account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Missing social_account_id",
			Message: "social_account_id query parameter is required",
		})
		return
	}

	if err := h.automationService.RevokeConsent(c.Request.Context(), accountID, c.Param("id")); err != nil {
		if err.Error() == "active consent not found" {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Consent not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to revoke consent: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to revoke consent",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterAutomationRoutes 注册自动化相关路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	automations := r.Group("/automations")
	{
		automations.POST("", handler.CreateAutomation)
		automations.GET("", handler.ListAutomations)
		automations.GET("/:id", handler.GetAutomation)
		automations.PUT("/:id", handler.UpdateAutomation)
		automations.DELETE("/:id", handler.DeleteAutomation)
		automations.PUT("/:id/enabled", handler.SetEnabled)
		automations.POST("/:id/check", handler.CheckAutomation)
		automations.POST("/:id/consents", handler.GrantConsent)
		automations.DELETE("/:id/consents", handler.RevokeConsent)
	}

	runs := r.Group("/automation-runs")
	{
		runs.GET("", handler.ListRuns)
	}
}
