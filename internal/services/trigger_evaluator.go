package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 触发器类型（封闭集合，新增类型加常量和 case，不加字符串分支）
const (
	TriggerNewFollowerThreshold = "new_follower_threshold"
	TriggerUnfollowerThreshold  = "unfollower_threshold"
	TriggerKPIThreshold         = "kpi_threshold"
	TriggerSchedule             = "schedule"
	TriggerNewPost              = "new_post"
)

// kpi_threshold 可选指标
var kpiMetrics = map[string]bool{
	"reach":           true,
	"impressions":     true,
	"engagement":      true,
	"followers_count": true,
	"profile_views":   true,
}

var kpiOperators = map[string]bool{
	">": true, "<": true, ">=": true, "<=": true, "==": true,
}

// TriggerParams 配置 map 在加载时解析出的强类型参数
type TriggerParams struct {
	AccountID    string
	Threshold    *float64
	SinceMinutes int
	Metric       string
	Operator     string
}

// TriggerConfig 一条自动化的触发器配置
type TriggerConfig struct {
	Type         string
	Params       TriggerParams
	Unrecognized []string
}

var triggerParamKeys = map[string]bool{
	"account_id": true, "threshold": true, "since_minutes": true,
	"metric": true, "operator": true,
}

// ParseTriggerConfig validates the stored JSON into a typed config and flags
// unrecognized option keys. It does not decide whether the config is complete;
// evaluation fails closed on whatever is missing.
func ParseTriggerConfig(raw string) (*TriggerConfig, error) {
	var decoded struct {
		Type   string                 `json:"type"`
		Params map[string]interface{} `json:"params"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid trigger config: %w", err)
	}
	if decoded.Type == "" {
		return nil, errors.New("invalid trigger config: missing type")
	}

	cfg := &TriggerConfig{Type: decoded.Type}
	for key, val := range decoded.Params {
		if !triggerParamKeys[key] {
			cfg.Unrecognized = append(cfg.Unrecognized, key)
			continue
		}
		switch key {
		case "account_id":
			if s, ok := val.(string); ok {
				cfg.Params.AccountID = s
			}
		case "threshold":
			if n, ok := toFloat(val); ok {
				cfg.Params.Threshold = &n
			}
		case "since_minutes":
			if n, ok := toFloat(val); ok && n > 0 {
				cfg.Params.SinceMinutes = int(n)
			}
		case "metric":
			if s, ok := val.(string); ok {
				cfg.Params.Metric = s
			}
		case "operator":
			if s, ok := val.(string); ok {
				cfg.Params.Operator = s
			}
		}
	}
	return cfg, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// TriggerEvaluator decides whether an automation's trigger condition holds.
type TriggerEvaluator struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTriggerEvaluator(db *gorm.DB, logger *logrus.Logger) *TriggerEvaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &TriggerEvaluator{db: db, logger: logger}
}

// Evaluate returns (triggered, context). It never fails: configuration
// errors, missing data and database errors all resolve to (false, empty).
func (e *TriggerEvaluator) Evaluate(ctx context.Context, cfg *TriggerConfig, now time.Time) (bool, map[string]interface{}) {
	if cfg == nil {
		return false, map[string]interface{}{}
	}
	if len(cfg.Unrecognized) > 0 {
		e.logger.Warnf("trigger %s: ignoring unrecognized params %v", cfg.Type, cfg.Unrecognized)
	}

	switch cfg.Type {
	case TriggerNewFollowerThreshold:
		return e.evaluateChangeThreshold(ctx, cfg.Params, models.ChangeTypeNewFollower, 10, now)
	case TriggerUnfollowerThreshold:
		return e.evaluateChangeThreshold(ctx, cfg.Params, models.ChangeTypeUnfollower, 5, now)
	case TriggerKPIThreshold:
		return e.evaluateKPIThreshold(ctx, cfg.Params)
	case TriggerSchedule, TriggerNewPost:
		// Declared extension points, not implemented conditions.
		return false, map[string]interface{}{}
	default:
		e.logger.Warnf("unknown trigger type: %s", cfg.Type)
		return false, map[string]interface{}{}
	}
}

// evaluateChangeThreshold counts follower-change rows of the given type in
// the [now-since_minutes, now] window and compares against the threshold.
func (e *TriggerEvaluator) evaluateChangeThreshold(ctx context.Context, params TriggerParams, changeType string, defaultThreshold int, now time.Time) (bool, map[string]interface{}) {
	if params.AccountID == "" {
		return false, map[string]interface{}{}
	}

	threshold := defaultThreshold
	if params.Threshold != nil {
		threshold = int(*params.Threshold)
	}
	sinceMinutes := params.SinceMinutes
	if sinceMinutes <= 0 {
		sinceMinutes = 15
	}
	since := now.Add(-time.Duration(sinceMinutes) * time.Minute)

	var count int64
	if err := e.db.WithContext(ctx).Model(&models.FollowerChange{}).
		Where("social_account_id = ? AND change_type = ? AND timestamp >= ?", params.AccountID, changeType, since).
		Count(&count).Error; err != nil {
		e.logger.Warnf("trigger %s: count follower changes: %v", changeType, err)
		return false, map[string]interface{}{}
	}

	if count >= int64(threshold) {
		return true, map[string]interface{}{
			"account_id": params.AccountID,
			"count":      int(count),
			"threshold":  threshold,
		}
	}
	return false, map[string]interface{}{}
}

// evaluateKPIThreshold compares the most recent metrics snapshot against the
// configured threshold. Any missing piece means not triggered.
func (e *TriggerEvaluator) evaluateKPIThreshold(ctx context.Context, params TriggerParams) (bool, map[string]interface{}) {
	if params.AccountID == "" || params.Metric == "" || params.Operator == "" || params.Threshold == nil {
		return false, map[string]interface{}{}
	}
	if !kpiMetrics[params.Metric] || !kpiOperators[params.Operator] {
		e.logger.Warnf("kpi_threshold: unrecognized metric %q or operator %q", params.Metric, params.Operator)
		return false, map[string]interface{}{}
	}

	var snapshot models.MetricsSnapshot
	err := e.db.WithContext(ctx).
		Where("social_account_id = ?", params.AccountID).
		Order("timestamp DESC").
		First(&snapshot).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.logger.Warnf("kpi_threshold: load snapshot: %v", err)
		}
		return false, map[string]interface{}{}
	}

	current := float64(metricValue(&snapshot, params.Metric))
	threshold := *params.Threshold

	var triggered bool
	switch params.Operator {
	case ">":
		triggered = current > threshold
	case "<":
		triggered = current < threshold
	case ">=":
		triggered = current >= threshold
	case "<=":
		triggered = current <= threshold
	case "==":
		triggered = current == threshold
	}

	if triggered {
		return true, map[string]interface{}{
			"account_id":    params.AccountID,
			"metric":        params.Metric,
			"current_value": current,
			"threshold":     threshold,
			"operator":      params.Operator,
		}
	}
	return false, map[string]interface{}{}
}

func metricValue(s *models.MetricsSnapshot, metric string) int {
	switch metric {
	case "reach":
		return s.Reach
	case "impressions":
		return s.Impressions
	case "engagement":
		return s.EngagementCount
	case "followers_count":
		return s.FollowersCount
	case "profile_views":
		return s.ProfileViews
	default:
		return 0
	}
}
