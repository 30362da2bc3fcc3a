package model

import "time"

// CampaignStatus campaign 状态枚举
type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// IsTerminal completed/failed 的 campaign 不再处理任何任务
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// Campaign 群发活动
// Variations 非空时每个 lead 随机选一条变体，降低同文案重复率
type Campaign struct {
	BaseModel
	TenantID   string         `gorm:"type:varchar(64);not null;index:idx_campaigns_tenant" json:"tenant_id"`
	Name       string         `gorm:"type:varchar(128);not null" json:"name"`
	Channel    string         `gorm:"type:varchar(32);not null;default:'whatsapp'" json:"channel"`
	Message    string         `gorm:"type:text" json:"message"`
	Variations []string       `gorm:"serializer:json" json:"variations,omitempty"`
	InstanceID string         `gorm:"type:varchar(64);not null" json:"instance_id"`
	Status     CampaignStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
}

// TableName 指定表名
func (Campaign) TableName() string {
	return "campaigns"
}

// LeadStatus lead 状态枚举，sent/failed/invalid 均为终态
type LeadStatus string

const (
	LeadStatusPending LeadStatus = "pending"
	LeadStatusSent    LeadStatus = "sent"
	LeadStatusFailed  LeadStatus = "failed"
	LeadStatusInvalid LeadStatus = "invalid"
)

// CampaignLead campaign 内单个收件人的投递记录
// 只有 worker 会改写 lead 状态，且每条 lead 至多成功发送一次
type CampaignLead struct {
	BaseModel
	CampaignID  int64      `gorm:"not null;index:idx_campaign_leads_campaign" json:"campaign_id"`
	Name        string     `gorm:"type:varchar(128)" json:"name"`
	Number      string     `gorm:"type:varchar(32);not null" json:"number"`
	Status      LeadStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ErrorReason string     `gorm:"type:text" json:"error_reason,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// TableName 指定表名
func (CampaignLead) TableName() string {
	return "campaign_leads"
}
