package handlers

import (
	"errors"
	"net/http"

	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FollowerHandler 粉丝同步与变动记录处理器
type FollowerHandler struct {
	syncService *services.FollowerSyncService
	logger      *logrus.Logger
}

// NewFollowerHandler 创建粉丝处理器
func NewFollowerHandler(syncService *services.FollowerSyncService, logger *logrus.Logger) *FollowerHandler {
	return &FollowerHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// ListChanges 获取粉丝变动记录
// @Summary 获取粉丝变动记录
// @Description 按账号/类型/时间筛选粉丝变动审计记录
// @Tags 粉丝
// @Produce json
// @Param account_id query string false "账号ID"
// @Param change_type query string false "变动类型 (new_follower/unfollower)"
// @Param since query string false "起始时间 (RFC 3339)"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页大小" default(50)
// @Success 200 {object} PaginatedResponse{data=[]models.FollowerChange}
// @Failure 400 {object} ErrorResponse
// @Router /api/follower-changes [get]
func (h *FollowerHandler) ListChanges(c *gin.Context) {
	var req services.ChangeListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	changes, total, err := h.syncService.ListChanges(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to list follower changes: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to list follower changes",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     changes,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// SyncAccount 手动触发一次粉丝同步
// @Summary 手动触发一次粉丝同步
// @Description 立即抓取账号当前粉丝列表并记录变动
// @Tags 粉丝
// @Produce json
// @Param account_id path string true "账号ID"
// @Success 200 {object} services.SyncResult
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/accounts/{account_id}/sync-followers [post]
func (h *FollowerHandler) SyncAccount(c *gin.Context) {
	result, err := h.syncService.Sync(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Account not found",
				Message: err.Error(),
			})
			return
		}

		// 凭据问题是客户端侧可修复的；上游抓取失败报 502
		var credErr *services.CredentialError
		if errors.As(err, &credErr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "Credential error",
				Message: err.Error(),
			})
			return
		}
		var upErr *services.UpstreamError
		if errors.As(err, &upErr) {
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "Upstream fetch failed",
				Message: err.Error(),
			})
			return
		}

		h.logger.Errorf("Failed to sync followers: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to sync followers",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegisterFollowerRoutes 注册粉丝相关路由
func RegisterFollowerRoutes(r *gin.RouterGroup, handler *FollowerHandler) {
	r.GET("/follower-changes", handler.ListChanges)

	accounts := r.Group("/accounts")
	{
		accounts.POST("/:account_id/sync-followers", handler.SyncAccount)
	}
}
