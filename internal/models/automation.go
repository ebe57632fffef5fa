package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Automation 自动化工作流：一个触发器加一组有序动作
type Automation struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID string `gorm:"type:uuid;index" json:"workspace_id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Enabled     bool   `gorm:"default:false" json:"enabled"`

	// Workflow definition, JSON text: {type, params} / [{type, params}, ...]
	Trigger string `gorm:"type:text;not null" json:"trigger"`
	Actions string `gorm:"type:text;not null" json:"actions"`

	// Compliance: platforms like X require explicit user consent
	ConsentRequired bool `gorm:"default:false" json:"consent_required"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Automation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// 运行状态机：pending → running → success|failed。skipped 保留给
// 检查与执行之间被禁用的场景，目前没有自动产生它的路径。
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusSkipped = "skipped"
)

// AutomationRun 一次触发到完成的执行记录
type AutomationRun struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID string     `gorm:"type:uuid;index:idx_run_automation_ts,priority:1" json:"automation_id"`
	Status       string     `gorm:"size:32;default:pending;index" json:"status"`
	TriggeredAt  time.Time  `gorm:"index:idx_run_automation_ts,priority:2,sort:desc" json:"triggered_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	TriggerData     string `gorm:"type:text" json:"trigger_data"`     // JSON, frozen at trigger time
	ActionsExecuted string `gorm:"type:text" json:"actions_executed"` // JSON list of action results
	ErrorMessage    string `gorm:"type:text" json:"error_message,omitempty"`

	Automation Automation `gorm:"foreignKey:AutomationID" json:"automation,omitempty"`
}

func (r *AutomationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.TriggeredAt.IsZero() {
		r.TriggeredAt = time.Now().UTC()
	}
	return nil
}

// Consent 账号对某条自动化的授权记录（X 合规要求）
type Consent struct {
	ID              string     `gorm:"type:uuid;primaryKey" json:"id"`
	SocialAccountID string     `gorm:"type:uuid;uniqueIndex:idx_consent_account_automation,priority:1" json:"social_account_id"`
	AutomationID    string     `gorm:"type:uuid;uniqueIndex:idx_consent_account_automation,priority:2" json:"automation_id"`
	GrantedAt       time.Time  `json:"granted_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

func (c *Consent) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.GrantedAt.IsZero() {
		c.GrantedAt = time.Now().UTC()
	}
	return nil
}

// IsActive 授权未被撤销
func (c *Consent) IsActive() bool {
	return c.RevokedAt == nil
}

// ApprovalRequest 由 request_approval 动作创建的人工审批记录
type ApprovalRequest struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID string     `gorm:"type:uuid;index" json:"automation_id"`
	RunID        string     `gorm:"type:uuid;index" json:"run_id"`
	Status       string     `gorm:"size:32;default:pending" json:"status"` // pending, approved, rejected
	Payload      string     `gorm:"type:text" json:"payload"`              // JSON
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func (a *ApprovalRequest) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
