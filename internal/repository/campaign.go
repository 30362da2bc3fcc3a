package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"Disparo/internal/model"
	"Disparo/internal/model/dto"
)

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// GetByID 按主键查 campaign，不存在时返回 (nil, nil)
func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).First(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query campaign: %w", err)
	}
	return &campaign, nil
}

// GetByTenant 按租户范围查 campaign，跨租户访问等同不存在
func (r *CampaignRepository) GetByTenant(ctx context.Context, tenantID string, id int64) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query campaign: %w", err)
	}
	return &campaign, nil
}

func (r *CampaignRepository) Create(ctx context.Context, campaign *model.Campaign) error {
	if err := r.db.WithContext(ctx).Create(campaign).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id int64, status model.CampaignStatus) error {
	err := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	return nil
}

// LeadStats 聚合各状态 lead 数量
func (r *CampaignRepository) LeadStats(ctx context.Context, campaignID int64) (dto.LeadStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}

	err := r.db.WithContext(ctx).
		Model(&model.CampaignLead{}).
		Select("status, count(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return dto.LeadStats{}, fmt.Errorf("failed to aggregate lead stats: %w", err)
	}

	var stats dto.LeadStats
	for _, row := range rows {
		stats.Total += row.Count
		switch model.LeadStatus(row.Status) {
		case model.LeadStatusPending:
			stats.Pending = row.Count
		case model.LeadStatusSent:
			stats.Sent = row.Count
		case model.LeadStatusFailed:
			stats.Failed = row.Count
		case model.LeadStatusInvalid:
			stats.Invalid = row.Count
		}
	}
	return stats, nil
}

// CountPendingLeads 返回尚未处理的 lead 数，worker 借此判断 campaign 是否收尾
func (r *CampaignRepository) CountPendingLeads(ctx context.Context, campaignID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CampaignLead{}).
		Where("campaign_id = ? AND status = ?", campaignID, model.LeadStatusPending).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending leads: %w", err)
	}
	return count, nil
}
