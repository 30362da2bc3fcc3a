package model

// CampaignSendMessage 一条 lead 的发送任务
// CampaignID/ContactID 为 0 表示任务不携带（非 campaign 的事务性发送）；
// IsFirst 标记 campaign 的第一条任务，走免等待快速通道
type CampaignSendMessage struct {
	MessageID  string   `json:"message_id"`
	BatchID    string   `json:"batch_id,omitempty"`
	CampaignID int64    `json:"campaign_id,omitempty"`
	LeadID     int64    `json:"lead_id,omitempty"`
	ContactID  int64    `json:"contact_id,omitempty"`
	TenantID   string   `json:"tenant_id"`
	InstanceID string   `json:"instance_id"`
	Number     string   `json:"number"`
	LeadName   string   `json:"lead_name,omitempty"`
	Message    string   `json:"message,omitempty"`
	Variations []string `json:"variations,omitempty"`
	IsFirst    bool     `json:"is_first,omitempty"`
}
