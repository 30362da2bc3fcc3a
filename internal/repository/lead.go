package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"Disparo/internal/model"
)

type LeadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// GetByID 按主键查 lead，不存在时返回 (nil, nil)
func (r *LeadRepository) GetByID(ctx context.Context, id int64) (*model.CampaignLead, error) {
	var lead model.CampaignLead
	err := r.db.WithContext(ctx).First(&lead, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}
	return &lead, nil
}

// CreateInBatches 分片批量插入，控制单事务体量
func (r *LeadRepository) CreateInBatches(ctx context.Context, leads []model.CampaignLead, batchSize int) error {
	if len(leads) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	if err := r.db.WithContext(ctx).CreateInBatches(leads, batchSize).Error; err != nil {
		return fmt.Errorf("failed to bulk insert leads: %w", err)
	}
	return nil
}

func (r *LeadRepository) ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignLead, error) {
	var leads []model.CampaignLead
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id").
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, nil
}

func (r *LeadRepository) ListPendingByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignLead, error) {
	var leads []model.CampaignLead
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, model.LeadStatusPending).
		Order("id").
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending leads: %w", err)
	}
	return leads, nil
}

// MarkSent 置为 sent 终态并记录发送时间
func (r *LeadRepository) MarkSent(ctx context.Context, id int64) error {
	now := time.Now()
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":       model.LeadStatusSent,
		"sent_at":      &now,
		"error_reason": "",
	})
}

// MarkFailed 置为 failed 终态并保留原始错误文本
func (r *LeadRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":       model.LeadStatusFailed,
		"error_reason": reason,
	})
}

// MarkInvalid 收件人在平台上不存在，置为 invalid 终态
func (r *LeadRepository) MarkInvalid(ctx context.Context, id int64, reason string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":       model.LeadStatusInvalid,
		"error_reason": reason,
	})
}

func (r *LeadRepository) updateStatus(ctx context.Context, id int64, updates map[string]interface{}) error {
	err := r.db.WithContext(ctx).
		Model(&model.CampaignLead{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	return nil
}
