package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetricsHandler 指标快照处理器
type MetricsHandler struct {
	metricsService *services.MetricsService
	logger         *logrus.Logger
}

// NewMetricsHandler 创建指标处理器
func NewMetricsHandler(metricsService *services.MetricsService, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		metricsService: metricsService,
		logger:         logger,
	}
}

// IngestSnapshot 上报指标快照
// @Summary 上报指标快照
// @Description 为账号写入一条指标时间序列快照，供 kpi_threshold 触发器评估
// @Tags 指标
// @Accept json
// @Produce json
// @Param snapshot body services.SnapshotRequest true "快照"
// @Success 201 {object} models.MetricsSnapshot
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/metrics/snapshots [post]
func (h *MetricsHandler) IngestSnapshot(c *gin.Context) {
	var req services.SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	snapshot, err := h.metricsService.IngestSnapshot(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Account not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to ingest snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to ingest snapshot",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, snapshot)
}

// ListSnapshots 查询指标快照
// @Summary 查询账号指标快照
// @Tags 指标
// @Produce json
// @Param account_id path string true "账号ID"
// @Param since query string false "起始时间 (RFC 3339)"
// @Param limit query int false "条数上限" default(100)
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/accounts/{account_id}/metrics [get]
func (h *MetricsHandler) ListSnapshots(c *gin.Context) {
	var since *time.Time
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid since format",
				Message: "Timestamp must be RFC 3339",
			})
			return
		}
		since = &parsed
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	snapshots, err := h.metricsService.ListSnapshots(c.Request.Context(), c.Param("account_id"), since, limit)
	if err != nil {
		h.logger.Errorf("Failed to list snapshots: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list snapshots",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: snapshots})
}

// RegisterMetricsRoutes 注册指标相关路由
func RegisterMetricsRoutes(r *gin.RouterGroup, handler *MetricsHandler) {
	metrics := r.Group("/metrics")
	{
		metrics.POST("/snapshots", handler.IngestSnapshot)
	}

	accounts := r.Group("/accounts")
	{
		accounts.GET("/:account_id/metrics", handler.ListSnapshots)
	}
}
