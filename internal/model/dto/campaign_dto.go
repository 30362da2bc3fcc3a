package dto

import "time"

// ========== Campaign 相关 DTO ==========

// LeadInput 创建 campaign 时附带的单个收件人
type LeadInput struct {
	Name   string `json:"name"`
	Number string `json:"number" binding:"required"`
}

// CreateCampaignRequest 创建 campaign 请求
type CreateCampaignRequest struct {
	Name       string      `json:"name" binding:"required"`
	Channel    string      `json:"channel"`
	Message    string      `json:"message"`
	Variations []string    `json:"variations"`
	InstanceID string      `json:"instance_id" binding:"required"`
	Leads      []LeadInput `json:"leads" binding:"required"`
}

// CampaignResponse campaign 详情响应
type CampaignResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Channel    string    `json:"channel"`
	InstanceID string    `json:"instance_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`

	LeadStats LeadStats `json:"lead_stats"`
}

// LeadStats 各状态 lead 数量统计
type LeadStats struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Invalid int64 `json:"invalid"`
}

// LeadResponse lead 列表项
type LeadResponse struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Number      string     `json:"number"`
	Status      string     `json:"status"`
	ErrorReason string     `json:"error_reason,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// QuotaResponse 额度查询响应
type QuotaResponse struct {
	InstanceID string `json:"instance_id"`
	Feature    string `json:"feature"`
	Ceiling    int    `json:"ceiling"`
	Used       int    `json:"used"`
	Remaining  int    `json:"remaining"`
}
