package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Disparo/config"
	"Disparo/internal/cache"
	"Disparo/internal/model"
	"Disparo/internal/model/dto"
	pkgerrors "Disparo/pkg/errors"
	"Disparo/pkg/logger"
)

const startLockTTL = 10 * time.Minute

// CampaignRepo 活动管理面需要的持久化能力
type CampaignRepo interface {
	Create(ctx context.Context, campaign *model.Campaign) error
	GetByTenant(ctx context.Context, tenantID string, id int64) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, status model.CampaignStatus) error
	LeadStats(ctx context.Context, campaignID int64) (dto.LeadStats, error)
}

// LeadRepo 收件人批量写入与查询
type LeadRepo interface {
	CreateInBatches(ctx context.Context, leads []model.CampaignLead, batchSize int) error
	ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignLead, error)
	ListPendingByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignLead, error)
}

// Enqueuer 把发送任务投递到队列
type Enqueuer interface {
	PublishCampaignSend(ctx context.Context, msg model.CampaignSendMessage) error
}

// Locker 启动互斥锁，防止同一活动被并发启动重复入队
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// redisLocker 默认实现，基于 cache 包的 SETNX 锁
type redisLocker struct{}

func (redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return cache.TryLock(ctx, key, ttl)
}

func (redisLocker) Unlock(ctx context.Context, key string) error {
	return cache.Unlock(ctx, key)
}

// CampaignService 活动管理面：创建、启动、暂停、查询
type CampaignService struct {
	campaigns CampaignRepo
	leads     LeadRepo
	quota     *QuotaService
	queue     Enqueuer
	locker    Locker
	batchSize int
}

func NewCampaignService(campaigns CampaignRepo, leads LeadRepo, quota *QuotaService, queue Enqueuer) *CampaignService {
	batch := config.Cfg.LeadInsertBatchSize
	if batch <= 0 {
		batch = 500
	}
	return &CampaignService{
		campaigns: campaigns,
		leads:     leads,
		quota:     quota,
		queue:     queue,
		locker:    redisLocker{},
		batchSize: batch,
	}
}

// Create 创建活动并批量落库收件人，初始状态 pending
func (s *CampaignService) Create(ctx context.Context, tenantID string, req dto.CreateCampaignRequest) (*model.Campaign, error) {
	if len(req.Leads) == 0 {
		return nil, pkgerrors.LeadListEmpty
	}
	if req.Message == "" && len(req.Variations) == 0 {
		return nil, pkgerrors.MessageRequired
	}
	if req.InstanceID == "" {
		return nil, pkgerrors.InstanceRequired
	}

	campaign := &model.Campaign{
		TenantID:   tenantID,
		Name:       req.Name,
		Channel:    req.Channel,
		Message:    req.Message,
		Variations: req.Variations,
		InstanceID: req.InstanceID,
		Status:     model.CampaignStatusPending,
	}
	if campaign.Channel == "" {
		campaign.Channel = "whatsapp"
	}
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	leads := make([]model.CampaignLead, 0, len(req.Leads))
	for _, in := range req.Leads {
		leads = append(leads, model.CampaignLead{
			CampaignID: campaign.ID,
			Name:       in.Name,
			Number:     in.Number,
			Status:     model.LeadStatusPending,
		})
	}
	if err := s.leads.CreateInBatches(ctx, leads, s.batchSize); err != nil {
		return nil, fmt.Errorf("failed to create campaign leads: %w", err)
	}

	logger.Logger.Info("Campaign created",
		zap.Int64("campaign_id", campaign.ID),
		zap.String("tenant_id", tenantID),
		zap.Int("leads", len(leads)),
	)
	return campaign, nil
}

// Start 启动活动：pending 活动为每个待发收件人入队一条任务，
// paused 活动只需恢复状态，队列里延迟重投的任务会在活动门控处放行
func (s *CampaignService) Start(ctx context.Context, tenantID string, id int64) error {
	campaign, err := s.campaigns.GetByTenant(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return pkgerrors.CampaignNotFound
	}

	switch campaign.Status {
	case model.CampaignStatusPaused:
		if err := s.campaigns.UpdateStatus(ctx, id, model.CampaignStatusRunning); err != nil {
			return fmt.Errorf("failed to resume campaign: %w", err)
		}
		logger.Logger.Info("Campaign resumed", zap.Int64("campaign_id", id))
		return nil
	case model.CampaignStatusPending:
		return s.startPending(ctx, campaign)
	default:
		return pkgerrors.CampaignNotStartable
	}
}

func (s *CampaignService) startPending(ctx context.Context, campaign *model.Campaign) error {
	lockKey := fmt.Sprintf("campaign:start:%d", campaign.ID)
	locked, err := s.locker.TryLock(ctx, lockKey, startLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire start lock: %w", err)
	}
	if !locked {
		return pkgerrors.CampaignStartLocked
	}
	defer func() {
		if uerr := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); uerr != nil {
			logger.Logger.Warn("Failed to release start lock", zap.String("key", lockKey), zap.Error(uerr))
		}
	}()

	leads, err := s.leads.ListPendingByCampaign(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to list pending leads: %w", err)
	}
	if len(leads) == 0 {
		return pkgerrors.LeadListEmpty
	}

	if err := s.campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignStatusRunning); err != nil {
		return fmt.Errorf("failed to mark campaign running: %w", err)
	}

	batchID := uuid.NewString()
	for i, lead := range leads {
		msg := model.CampaignSendMessage{
			BatchID:    batchID,
			CampaignID: campaign.ID,
			LeadID:     lead.ID,
			TenantID:   campaign.TenantID,
			InstanceID: campaign.InstanceID,
			Number:     lead.Number,
			LeadName:   lead.Name,
			Message:    campaign.Message,
			Variations: campaign.Variations,
			IsFirst:    i == 0,
		}
		if err := s.queue.PublishCampaignSend(ctx, msg); err != nil {
			// 入队中断时把活动退回 pending，允许重新启动；
			// 已入队的任务会被活动门控延迟到状态再次为 running
			if rerr := s.campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignStatusPending); rerr != nil {
				logger.Logger.Error("Failed to revert campaign status after enqueue failure",
					zap.Int64("campaign_id", campaign.ID), zap.Error(rerr))
			}
			return fmt.Errorf("failed to enqueue lead %d: %w", lead.ID, err)
		}
	}

	logger.Logger.Info("Campaign started",
		zap.Int64("campaign_id", campaign.ID),
		zap.String("batch_id", batchID),
		zap.Int("enqueued", len(leads)),
	)
	return nil
}

// Pause 暂停活动，仅允许从 running 进入 paused
func (s *CampaignService) Pause(ctx context.Context, tenantID string, id int64) error {
	campaign, err := s.campaigns.GetByTenant(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return pkgerrors.CampaignNotFound
	}
	if campaign.Status != model.CampaignStatusRunning {
		return pkgerrors.CampaignNotPausable
	}
	if err := s.campaigns.UpdateStatus(ctx, id, model.CampaignStatusPaused); err != nil {
		return fmt.Errorf("failed to pause campaign: %w", err)
	}
	logger.Logger.Info("Campaign paused", zap.Int64("campaign_id", id))
	return nil
}

// Get 活动详情，附带各状态收件人统计
func (s *CampaignService) Get(ctx context.Context, tenantID string, id int64) (*dto.CampaignResponse, error) {
	campaign, err := s.campaigns.GetByTenant(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, pkgerrors.CampaignNotFound
	}

	stats, err := s.campaigns.LeadStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead stats: %w", err)
	}

	return &dto.CampaignResponse{
		ID:         campaign.ID,
		Name:       campaign.Name,
		Channel:    campaign.Channel,
		InstanceID: campaign.InstanceID,
		Status:     string(campaign.Status),
		CreatedAt:  campaign.CreatedAt,
		LeadStats:  stats,
	}, nil
}

// ListLeads 活动收件人列表
func (s *CampaignService) ListLeads(ctx context.Context, tenantID string, id int64) ([]dto.LeadResponse, error) {
	campaign, err := s.campaigns.GetByTenant(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, pkgerrors.CampaignNotFound
	}

	leads, err := s.leads.ListByCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	out := make([]dto.LeadResponse, 0, len(leads))
	for _, lead := range leads {
		out = append(out, dto.LeadResponse{
			ID:          lead.ID,
			Name:        lead.Name,
			Number:      lead.Number,
			Status:      string(lead.Status),
			ErrorReason: lead.ErrorReason,
			SentAt:      lead.SentAt,
		})
	}
	return out, nil
}

// Quota 查询实例当日剩余发送额度
func (s *CampaignService) Quota(ctx context.Context, instanceID string) (*dto.QuotaResponse, error) {
	remaining, used, err := s.quota.Remaining(ctx, instanceID, model.QuotaFeatureCampaignMessage)
	if err != nil {
		return nil, err
	}
	return &dto.QuotaResponse{
		InstanceID: instanceID,
		Feature:    model.QuotaFeatureCampaignMessage,
		Ceiling:    s.quota.Ceiling(model.QuotaFeatureCampaignMessage),
		Used:       used,
		Remaining:  remaining,
	}, nil
}
