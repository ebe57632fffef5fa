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

// AutomationService owns the automation lifecycle: configuration CRUD,
// consent gating, trigger checks and the run ledger.
type AutomationService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	evaluator *TriggerEvaluator
	executor  *ActionExecutor
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger, evaluator *TriggerEvaluator, executor *ActionExecutor) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{db: db, logger: logger, evaluator: evaluator, executor: executor}
}

// AutomationRequest 创建/更新自动化的请求
type AutomationRequest struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	WorkspaceID     string          `json:"workspace_id"`
	Trigger         json.RawMessage `json:"trigger" binding:"required"`
	Actions         json.RawMessage `json:"actions" binding:"required"`
	Enabled         *bool           `json:"enabled"`
	ConsentRequired *bool           `json:"consent_required"`
}

func isSupportedTrigger(triggerType string) bool {
	switch triggerType {
	case TriggerNewFollowerThreshold, TriggerUnfollowerThreshold,
		TriggerKPIThreshold, TriggerSchedule, TriggerNewPost:
		return true
	default:
		return false
	}
}

func (s *AutomationService) validateWorkflow(rawTrigger, rawActions string) error {
	cfg, err := ParseTriggerConfig(rawTrigger)
	if err != nil {
		return err
	}
	if !isSupportedTrigger(cfg.Type) {
		return fmt.Errorf("unsupported trigger type: %s", cfg.Type)
	}
	if len(cfg.Unrecognized) > 0 {
		s.logger.Warnf("trigger %s carries unrecognized params %v", cfg.Type, cfg.Unrecognized)
	}

	actions, err := ParseActions(rawActions)
	if err != nil {
		return err
	}
	for _, action := range actions {
		switch action.Type {
		case ActionCreateDraft, ActionSendNotification, ActionRequestApproval, ActionWebhook:
		default:
			// Executed as status "unknown" at run time; keep the row but flag it.
			s.logger.Warnf("automation action has unknown type %q", action.Type)
		}
	}
	return nil
}

// CreateAutomation 新建自动化
func (s *AutomationService) CreateAutomation(ctx context.Context, req *AutomationRequest) (*models.Automation, error) {
	if req == nil {
		return nil, errors.New("request required")
	}
	if err := s.validateWorkflow(string(req.Trigger), string(req.Actions)); err != nil {
		return nil, err
	}

	automation := &models.Automation{
		Name:        req.Name,
		Description: req.Description,
		WorkspaceID: req.WorkspaceID,
		Trigger:     string(req.Trigger),
		Actions:     string(req.Actions),
	}
	if req.Enabled != nil {
		automation.Enabled = *req.Enabled
	}
	if req.ConsentRequired != nil {
		automation.ConsentRequired = *req.ConsentRequired
	}

	if err := s.db.WithContext(ctx).Create(automation).Error; err != nil {
		return nil, err
	}
	return automation, nil
}

// UpdateAutomation 更新自动化定义
func (s *AutomationService) UpdateAutomation(ctx context.Context, id string, req *AutomationRequest) (*models.Automation, error) {
	if req == nil {
		return nil, errors.New("request required")
	}
	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := s.validateWorkflow(string(req.Trigger), string(req.Actions)); err != nil {
		return nil, err
	}

	automation.Name = req.Name
	automation.Description = req.Description
	automation.Trigger = string(req.Trigger)
	automation.Actions = string(req.Actions)
	if req.Enabled != nil {
		automation.Enabled = *req.Enabled
	}
	if req.ConsentRequired != nil {
		automation.ConsentRequired = *req.ConsentRequired
	}
	if err := s.db.WithContext(ctx).Save(&automation).Error; err != nil {
		return nil, err
	}
	return &automation, nil
}

// SetEnabled 启用/停用
func (s *AutomationService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("automation not found")
	}
	return nil
}

func (s *AutomationService) GetAutomation(ctx context.Context, id string) (*models.Automation, error) {
	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &automation, nil
}

func (s *AutomationService) ListAutomations(ctx context.Context, workspaceID string) ([]models.Automation, error) {
	var automations []models.Automation
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	if err := q.Find(&automations).Error; err != nil {
		return nil, err
	}
	return automations, nil
}

func (s *AutomationService) DeleteAutomation(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.Automation{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("automation not found")
	}
	return nil
}

// RunListRequest 运行记录查询
type RunListRequest struct {
	AutomationID string `form:"automation_id"`
	Status       string `form:"status"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

func (s *AutomationService) ListRuns(ctx context.Context, req *RunListRequest) ([]models.AutomationRun, int64, error) {
	if req == nil {
		req = &RunListRequest{}
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	q := s.db.WithContext(ctx).Model(&models.AutomationRun{})
	if req.AutomationID != "" {
		q = q.Where("automation_id = ?", req.AutomationID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []models.AutomationRun
	if err := q.Order("triggered_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// GrantConsent 授予账号对某自动化的授权；重复授予会重新激活已撤销的记录
func (s *AutomationService) GrantConsent(ctx context.Context, accountID, automationID string) (*models.Consent, error) {
	var consent models.Consent
	err := s.db.WithContext(ctx).
		Where("social_account_id = ? AND automation_id = ?", accountID, automationID).
		First(&consent).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		consent = models.Consent{SocialAccountID: accountID, AutomationID: automationID}
		if err := s.db.WithContext(ctx).Create(&consent).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		consent.GrantedAt = time.Now().UTC()
		consent.RevokedAt = nil
		if err := s.db.WithContext(ctx).Save(&consent).Error; err != nil {
			return nil, err
		}
	}
	return &consent, nil
}

// RevokeConsent 撤销授权
func (s *AutomationService) RevokeConsent(ctx context.Context, accountID, automationID string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Consent{}).
		Where("social_account_id = ? AND automation_id = ? AND revoked_at IS NULL", accountID, automationID).
		Update("revoked_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("active consent not found")
	}
	return nil
}

func (s *AutomationService) hasActiveConsent(ctx context.Context, accountID, automationID string) bool {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Consent{}).
		Where("social_account_id = ? AND automation_id = ? AND revoked_at IS NULL", accountID, automationID).
		Count(&count).Error; err != nil {
		s.logger.Warnf("consent lookup failed: %v", err)
		return false
	}
	return count > 0
}

// Check evaluates one automation's trigger and, when it fires, records a
// pending run with the trigger context frozen in. A nil run means the
// automation did not trigger; that is not an error.
func (s *AutomationService) Check(ctx context.Context, automationID string, now time.Time) (*models.AutomationRun, error) {
	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, "id = ?", automationID).Error; err != nil {
		return nil, err
	}
	if !automation.Enabled {
		s.logger.Debugf("automation %s is disabled, skipping", automation.Name)
		return nil, nil
	}

	cfg, err := ParseTriggerConfig(automation.Trigger)
	if err != nil {
		// Configuration errors are contained: log, treat as not triggered.
		s.logger.Warnf("automation %s: %v", automation.Name, err)
		return nil, nil
	}

	if automation.ConsentRequired {
		accountID := cfg.Params.AccountID
		if accountID == "" || !s.hasActiveConsent(ctx, accountID, automation.ID) {
			s.logger.Infof("automation %s requires consent, none active for account %q", automation.Name, accountID)
			return nil, nil
		}
	}

	triggered, triggerData := s.evaluator.Evaluate(ctx, cfg, now)
	if !triggered {
		return nil, nil
	}

	payload, err := json.Marshal(triggerData)
	if err != nil {
		return nil, err
	}
	run := &models.AutomationRun{
		AutomationID: automation.ID,
		Status:       models.RunStatusPending,
		TriggerData:  string(payload),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	s.logger.Infof("automation %s triggered, run %s pending", automation.Name, run.ID)
	return run, nil
}

// ExecuteRun drives one pending run through the state machine. The run ends
// SUCCESS when the dispatch loop completes, regardless of how many actions
// inside it failed; only an error escaping the loop itself marks it FAILED.
func (s *AutomationService) ExecuteRun(ctx context.Context, runID string) (run *models.AutomationRun, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("run %s: executor panicked: %v", runID, r)
			s.markRunFailed(ctx, runID, fmt.Sprintf("panic: %v", r))
			run, err = s.loadRun(ctx, runID)
		}
	}()

	run, err = s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	// Guarded transition keeps the state machine monotonic when two workers
	// pick up the same run.
	claim := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("id = ? AND status = ?", runID, models.RunStatusPending).
		Update("status", models.RunStatusRunning)
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return run, fmt.Errorf("run %s is not pending (status %s)", runID, run.Status)
	}

	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, "id = ?", run.AutomationID).Error; err != nil {
		s.markRunFailed(ctx, runID, err.Error())
		return s.loadRun(ctx, runID)
	}

	actions, err := ParseActions(automation.Actions)
	if err != nil {
		s.markRunFailed(ctx, runID, err.Error())
		return s.loadRun(ctx, runID)
	}

	triggerData := map[string]interface{}{}
	if run.TriggerData != "" {
		if err := json.Unmarshal([]byte(run.TriggerData), &triggerData); err != nil {
			s.markRunFailed(ctx, runID, fmt.Sprintf("corrupt trigger data: %v", err))
			return s.loadRun(ctx, runID)
		}
	}

	results := s.executor.ExecuteAll(ctx, automation.ID, runID, actions, triggerData)

	executed, err := json.Marshal(results)
	if err != nil {
		s.markRunFailed(ctx, runID, err.Error())
		return s.loadRun(ctx, runID)
	}

	now := time.Now().UTC()
	finish := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("id = ? AND status = ?", runID, models.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":           models.RunStatusSuccess,
			"actions_executed": string(executed),
			"completed_at":     now,
		})
	if finish.Error != nil {
		s.markRunFailed(ctx, runID, finish.Error.Error())
	}
	s.logger.Infof("automation run %s completed", runID)
	return s.loadRun(ctx, runID)
}

// CheckAndRun is the per-automation scheduler entry point.
func (s *AutomationService) CheckAndRun(ctx context.Context, automationID string, now time.Time) (*models.AutomationRun, error) {
	run, err := s.Check(ctx, automationID, now)
	if err != nil || run == nil {
		return nil, err
	}
	return s.ExecuteRun(ctx, run.ID)
}

func (s *AutomationService) loadRun(ctx context.Context, runID string) (*models.AutomationRun, error) {
	var run models.AutomationRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *AutomationService) markRunFailed(ctx context.Context, runID, message string) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("id = ? AND status IN ?", runID, []string{models.RunStatusPending, models.RunStatusRunning}).
		Updates(map[string]interface{}{
			"status":        models.RunStatusFailed,
			"error_message": message,
			"completed_at":  now,
		}).Error
	if err != nil {
		s.logger.Errorf("mark run %s failed: %v", runID, err)
	}
}
