package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 动作类型（封闭集合）
const (
	ActionCreateDraft      = "create_draft"
	ActionSendNotification = "send_notification"
	ActionRequestApproval  = "request_approval"
	ActionWebhook          = "webhook"
)

// 单个动作的结果状态
const (
	ActionStatusSuccess = "success"
	ActionStatusFailed  = "failed"
	ActionStatusPending = "pending"
	ActionStatusUnknown = "unknown"
)

// ActionConfig one step of an automation's ordered action list.
type ActionConfig struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

// ParseActions 解析存储的动作 JSON
func ParseActions(raw string) ([]ActionConfig, error) {
	var actions []ActionConfig
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, fmt.Errorf("invalid actions config: %w", err)
	}
	return actions, nil
}

// ActionResult 单个动作的执行结果
type ActionResult struct {
	Action       string `json:"action"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	ResponseCode int    `json:"response_code,omitempty"`
}

// ContentGenerator is the content-drafting collaborator. The real service
// lives outside this core; the default implementation just records the request.
type ContentGenerator interface {
	CreateDraft(ctx context.Context, params, triggerData map[string]interface{}) (string, error)
}

// LogContentGenerator 默认实现：仅记录日志
type LogContentGenerator struct {
	logger *logrus.Logger
}

func (g *LogContentGenerator) CreateDraft(ctx context.Context, params, triggerData map[string]interface{}) (string, error) {
	g.logger.Infof("draft requested with params: %v", params)
	return "draft creation logged", nil
}

// ActionExecutor runs an automation's actions strictly in order with full
// failure isolation: one failing action never stops the ones after it.
type ActionExecutor struct {
	db         *gorm.DB
	logger     *logrus.Logger
	httpClient *http.Client
	generator  ContentGenerator
}

func NewActionExecutor(db *gorm.DB, logger *logrus.Logger, webhookTimeout time.Duration, generator ContentGenerator) *ActionExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	if webhookTimeout <= 0 {
		webhookTimeout = 10 * time.Second
	}
	if generator == nil {
		generator = &LogContentGenerator{logger: logger}
	}
	return &ActionExecutor{
		db:         db,
		logger:     logger,
		httpClient: &http.Client{Timeout: webhookTimeout},
		generator:  generator,
	}
}

// ExecuteAll executes every action and returns one result per action, in
// order. It never returns early and never propagates an action failure.
func (x *ActionExecutor) ExecuteAll(ctx context.Context, automationID, runID string, actions []ActionConfig, triggerData map[string]interface{}) []ActionResult {
	results := make([]ActionResult, 0, len(actions))
	for _, action := range actions {
		results = append(results, x.executeOne(ctx, automationID, runID, action, triggerData))
	}
	return results
}

func (x *ActionExecutor) executeOne(ctx context.Context, automationID, runID string, action ActionConfig, triggerData map[string]interface{}) (result ActionResult) {
	// Isolation barrier: a panicking action is recorded as failed, the rest
	// of the batch still runs.
	defer func() {
		if r := recover(); r != nil {
			x.logger.Errorf("action %s panicked: %v", action.Type, r)
			result = ActionResult{Action: action.Type, Status: ActionStatusFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	switch action.Type {
	case ActionCreateDraft:
		return x.createDraft(ctx, action, triggerData)
	case ActionSendNotification:
		return x.sendNotification(action, triggerData)
	case ActionRequestApproval:
		return x.requestApproval(ctx, automationID, runID, action)
	case ActionWebhook:
		return x.webhook(ctx, automationID, action, triggerData)
	default:
		return ActionResult{
			Action:  action.Type,
			Status:  ActionStatusUnknown,
			Message: fmt.Sprintf("unknown action type: %s", action.Type),
		}
	}
}

func (x *ActionExecutor) createDraft(ctx context.Context, action ActionConfig, triggerData map[string]interface{}) ActionResult {
	message, err := x.generator.CreateDraft(ctx, action.Params, triggerData)
	if err != nil {
		x.logger.Warnf("create_draft failed: %v", err)
		return ActionResult{Action: ActionCreateDraft, Status: ActionStatusFailed, Error: err.Error()}
	}
	return ActionResult{Action: ActionCreateDraft, Status: ActionStatusSuccess, Message: message}
}

func (x *ActionExecutor) sendNotification(action ActionConfig, triggerData map[string]interface{}) ActionResult {
	template, _ := action.Params["message"].(string)
	formatted, err := interpolate(template, triggerData)
	if err != nil {
		return ActionResult{Action: ActionSendNotification, Status: ActionStatusFailed, Error: err.Error()}
	}
	x.logger.Infof("notification: %s", formatted)
	return ActionResult{Action: ActionSendNotification, Status: ActionStatusSuccess, Message: formatted}
}

func (x *ActionExecutor) requestApproval(ctx context.Context, automationID, runID string, action ActionConfig) ActionResult {
	payload, _ := json.Marshal(action.Params)
	approval := &models.ApprovalRequest{
		AutomationID: automationID,
		RunID:        runID,
		Status:       "pending",
		Payload:      string(payload),
		CreatedAt:    time.Now().UTC(),
	}
	if err := x.db.WithContext(ctx).Create(approval).Error; err != nil {
		return ActionResult{Action: ActionRequestApproval, Status: ActionStatusFailed, Error: err.Error()}
	}
	// The action itself succeeded, but the outcome is in human hands.
	return ActionResult{Action: ActionRequestApproval, Status: ActionStatusPending, Message: "approval request created"}
}

// webhook delivers the trigger context to a configured URL. Any completed
// HTTP exchange counts as delivered, whatever the status code says; only
// transport-level failure is a failed action.
func (x *ActionExecutor) webhook(ctx context.Context, automationID string, action ActionConfig, triggerData map[string]interface{}) ActionResult {
	url, _ := action.Params["url"].(string)
	if url == "" {
		return ActionResult{Action: ActionWebhook, Status: ActionStatusFailed, Error: "no URL provided"}
	}
	method, _ := action.Params["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(map[string]interface{}{
		"trigger_data":  triggerData,
		"automation_id": automationID,
	})
	if err != nil {
		return ActionResult{Action: ActionWebhook, Status: ActionStatusFailed, Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return ActionResult{Action: ActionWebhook, Status: ActionStatusFailed, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return ActionResult{Action: ActionWebhook, Status: ActionStatusFailed, Error: err.Error()}
	}
	defer resp.Body.Close()

	return ActionResult{Action: ActionWebhook, Status: ActionStatusSuccess, ResponseCode: resp.StatusCode}
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// interpolate substitutes {key} placeholders from the trigger context. A
// placeholder with no matching key is an error, mirroring Python str.format.
func interpolate(template string, data map[string]interface{}) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		val, ok := data[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return match
		}
		return fmt.Sprintf("%v", val)
	})
	if missing != "" {
		return "", fmt.Errorf("missing template key: %s", missing)
	}
	return out, nil
}
