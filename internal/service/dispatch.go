package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"Disparo/config"
	"Disparo/internal/model"
	pkgerrors "Disparo/pkg/errors"
	"Disparo/pkg/logger"
	"Disparo/pkg/whatsapp"
	"Disparo/utils"
)

// CampaignStore 发送流程需要的活动读写能力
type CampaignStore interface {
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, status model.CampaignStatus) error
	CountPendingLeads(ctx context.Context, campaignID int64) (int64, error)
}

// LeadStore 单条收件人的状态流转
type LeadStore interface {
	GetByID(ctx context.Context, id int64) (*model.CampaignLead, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	MarkInvalid(ctx context.Context, id int64, reason string) error
}

// ContactStore CRM 联系人查询与阶段推进
type ContactStore interface {
	FindByNumber(ctx context.Context, tenantID, number string) (*model.Contact, error)
	MarkContacted(ctx context.Context, tenantID string, contactID int64, instanceID string) error
}

// QuotaReserver 额度预占，额度耗尽时返回 QuotaExceeded
type QuotaReserver interface {
	Reserve(ctx context.Context, instanceID, feature string, amount int) error
}

// Rescheduler 把任务延迟重新投递回队列
type Rescheduler interface {
	RescheduleCampaignSend(ctx context.Context, msg model.CampaignSendMessage, delay time.Duration) error
}

// DispatchConfig 发送流程的节奏与门控参数
type DispatchConfig struct {
	PacingMin       time.Duration
	PacingMax       time.Duration
	PauseBackoff    time.Duration
	QuotaBackoff    time.Duration
	ColdStages      map[string]bool
	DefaultLeadName string
}

// DefaultDispatchConfig 从全局配置组装发送参数
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		PacingMin:       time.Duration(config.Cfg.PacingMinSeconds) * time.Second,
		PacingMax:       time.Duration(config.Cfg.PacingMaxSeconds) * time.Second,
		PauseBackoff:    time.Duration(config.Cfg.PauseBackoffMinutes) * time.Minute,
		QuotaBackoff:    time.Duration(config.Cfg.QuotaBackoffHours) * time.Hour,
		ColdStages:      config.Cfg.ColdStageSet(),
		DefaultLeadName: config.Cfg.DefaultLeadName,
	}
}

// Dispatcher 消费侧的活动发送流程
// 对每条任务依次执行：活动门控 → 收件人门控 → 联系人阶段门控 →
// 载荷校验 → 额度预占 → 节奏延时 → 选稿渲染 → 号码归一化 → 发送与落库
type Dispatcher struct {
	campaigns CampaignStore
	leads     LeadStore
	contacts  ContactStore
	quota     QuotaReserver
	provider  whatsapp.Client
	scheduler Rescheduler
	cfg       DispatchConfig

	// 测试注入点
	sleep   func(ctx context.Context, d time.Duration) error
	randInt func(n int) int
}

func NewDispatcher(
	campaigns CampaignStore,
	leads LeadStore,
	contacts ContactStore,
	quota QuotaReserver,
	provider whatsapp.Client,
	scheduler Rescheduler,
	cfg DispatchConfig,
) *Dispatcher {
	return &Dispatcher{
		campaigns: campaigns,
		leads:     leads,
		contacts:  contacts,
		quota:     quota,
		provider:  provider,
		scheduler: scheduler,
		cfg:       cfg,
		sleep:     sleepCtx,
		randInt:   rand.Intn,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Process 处理一条发送任务
// 返回 nil 表示已发送，SkipMessageError 表示任务静默结束（确认出队，不再重投），
// 其他错误表示可重试故障（由消费侧 Nack 重投）
func (d *Dispatcher) Process(ctx context.Context, msg model.CampaignSendMessage) error {
	log := logger.Logger.With(
		zap.String("message_id", msg.MessageID),
		zap.Int64("campaign_id", msg.CampaignID),
		zap.Int64("lead_id", msg.LeadID),
	)

	// 活动门控：缺失或终态直接丢弃，暂停则延迟重投
	if msg.CampaignID != 0 {
		campaign, err := d.campaigns.GetByID(ctx, msg.CampaignID)
		if err != nil {
			return err
		}
		if campaign == nil {
			log.Info("Campaign missing, dropping task")
			return pkgerrors.Skip("campaign not found")
		}
		if campaign.Status.IsTerminal() {
			log.Info("Campaign in terminal state, dropping task", zap.String("status", string(campaign.Status)))
			return pkgerrors.Skip("campaign " + string(campaign.Status))
		}
		if campaign.Status != model.CampaignStatusRunning {
			// 暂停（或尚未启动）的活动不丢任务，延迟后重查状态
			if err := d.scheduler.RescheduleCampaignSend(ctx, msg, d.cfg.PauseBackoff); err != nil {
				return err
			}
			log.Info("Campaign not running, task rescheduled",
				zap.String("status", string(campaign.Status)),
				zap.Duration("delay", d.cfg.PauseBackoff),
			)
			return pkgerrors.Skip("campaign paused")
		}
	}

	// 收件人门控：已处理过的收件人不再发送，这里是条内幂等的关键
	var lead *model.CampaignLead
	if msg.LeadID != 0 {
		var err error
		lead, err = d.leads.GetByID(ctx, msg.LeadID)
		if err != nil {
			return err
		}
		if lead == nil {
			log.Info("Lead missing, dropping task")
			return pkgerrors.Skip("lead not found")
		}
		if lead.Status != model.LeadStatusPending {
			log.Info("Lead already processed, dropping task", zap.String("status", string(lead.Status)))
			return pkgerrors.Skip("lead already " + string(lead.Status))
		}
	}

	// 联系人按归一化号码唯一，门控与发后推进必须用同一个键
	number := utils.NormalizeNumber(msg.Number)

	// 联系人阶段门控：只触达冷阶段联系人，已进入人工跟进的标记完成但不发送
	if msg.TenantID != "" && number != "" {
		contact, err := d.contacts.FindByNumber(ctx, msg.TenantID, number)
		if err != nil {
			return err
		}
		if contact != nil && !d.cfg.ColdStages[strings.ToUpper(contact.Stage)] {
			log.Info("Contact already engaged, skipping send", zap.String("stage", contact.Stage))
			if lead != nil {
				if err := d.leads.MarkSent(ctx, lead.ID); err != nil {
					return err
				}
				d.maybeCompleteCampaign(ctx, msg.CampaignID, log)
			}
			return pkgerrors.Skip("contact stage " + contact.Stage)
		}
	}

	// 载荷校验：缺实例或无可用文案的任务无法补救，丢弃并告警
	if msg.InstanceID == "" || (msg.Message == "" && len(msg.Variations) == 0) {
		log.Error("Task payload incomplete, dropping",
			zap.String("instance_id", msg.InstanceID),
			zap.Int("variations", len(msg.Variations)),
		)
		return pkgerrors.Skip("payload incomplete")
	}

	// 额度预占：耗尽则延迟到下一个计数窗口重投
	if err := d.quota.Reserve(ctx, msg.InstanceID, model.QuotaFeatureCampaignMessage, 1); err != nil {
		if errors.Is(err, pkgerrors.QuotaExceeded) {
			if rerr := d.scheduler.RescheduleCampaignSend(ctx, msg, d.cfg.QuotaBackoff); rerr != nil {
				return rerr
			}
			log.Warn("Daily quota exhausted, task rescheduled",
				zap.String("instance_id", msg.InstanceID),
				zap.Duration("delay", d.cfg.QuotaBackoff),
			)
			return pkgerrors.Skip("quota exhausted")
		}
		return err
	}

	// 节奏延时：批次首条立即发送，其余条在 [PacingMin, PacingMax] 内随机等待
	if !msg.IsFirst {
		delay := d.pacingDelay()
		log.Info("Pacing before send", zap.Duration("delay", delay))
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}

	// 选稿与渲染
	text := msg.Message
	if len(msg.Variations) > 0 {
		text = msg.Variations[d.randInt(len(msg.Variations))]
	}
	text = utils.RenderMessage(text, msg.LeadName, d.cfg.DefaultLeadName)

	// 空号无法投递，直接判失败
	if number == "" {
		log.Warn("Lead has no usable phone number", zap.String("raw", msg.Number))
		if lead != nil {
			if err := d.leads.MarkFailed(ctx, lead.ID, "missing phone"); err != nil {
				return err
			}
			d.maybeCompleteCampaign(ctx, msg.CampaignID, log)
		}
		return pkgerrors.Skip("missing phone")
	}

	// 发送
	resp, err := d.provider.SendText(ctx, msg.InstanceID, number, text)
	if err != nil {
		return d.handleSendFailure(ctx, msg, lead, err, log)
	}

	if lead != nil {
		if err := d.leads.MarkSent(ctx, lead.ID); err != nil {
			return err
		}
	}
	if err := d.advanceContact(ctx, msg, number); err != nil {
		log.Warn("Failed to advance contact stage", zap.Error(err))
	}
	d.maybeCompleteCampaign(ctx, msg.CampaignID, log)

	log.Info("Message sent",
		zap.String("provider_message_id", resp.MessageID),
		zap.String("provider", resp.Provider),
	)
	return nil
}

// handleSendFailure 按网关错误文案区分无效号码与可重试故障
// 无效号码终态落库后仍把错误抛回消费侧，让故障在队列指标上可见；
// 重投的副本会被收件人门控拦下，不会二次发送
func (d *Dispatcher) handleSendFailure(ctx context.Context, msg model.CampaignSendMessage, lead *model.CampaignLead, sendErr error, log *zap.Logger) error {
	if lead != nil {
		var markErr error
		if whatsapp.IsRecipientNotFound(sendErr) {
			log.Warn("Recipient rejected by gateway, marking lead invalid", zap.Error(sendErr))
			markErr = d.leads.MarkInvalid(ctx, lead.ID, sendErr.Error())
		} else {
			log.Error("Gateway send failed, marking lead failed", zap.Error(sendErr))
			markErr = d.leads.MarkFailed(ctx, lead.ID, sendErr.Error())
		}
		if markErr != nil {
			log.Error("Failed to record lead failure", zap.Error(markErr))
		} else {
			d.maybeCompleteCampaign(ctx, msg.CampaignID, log)
		}
	}
	return sendErr
}

// advanceContact 发送成功后把联系人推进到已触达阶段
func (d *Dispatcher) advanceContact(ctx context.Context, msg model.CampaignSendMessage, number string) error {
	contactID := msg.ContactID
	if contactID == 0 {
		if msg.TenantID == "" {
			return nil
		}
		contact, err := d.contacts.FindByNumber(ctx, msg.TenantID, number)
		if err != nil {
			return err
		}
		if contact == nil {
			return nil
		}
		contactID = contact.ID
	}
	return d.contacts.MarkContacted(ctx, msg.TenantID, contactID, msg.InstanceID)
}

// maybeCompleteCampaign 收件人走到终态后检查活动是否已无待发项
func (d *Dispatcher) maybeCompleteCampaign(ctx context.Context, campaignID int64, log *zap.Logger) {
	if campaignID == 0 {
		return
	}
	pending, err := d.campaigns.CountPendingLeads(ctx, campaignID)
	if err != nil {
		log.Warn("Failed to count pending leads", zap.Error(err))
		return
	}
	if pending > 0 {
		return
	}
	if err := d.campaigns.UpdateStatus(ctx, campaignID, model.CampaignStatusCompleted); err != nil {
		log.Warn("Failed to mark campaign completed", zap.Error(err))
		return
	}
	log.Info("Campaign completed, all leads processed")
}

func (d *Dispatcher) pacingDelay() time.Duration {
	min, max := d.cfg.PacingMin, d.cfg.PacingMax
	if max <= min {
		return min
	}
	// 闭区间取值，PacingMax 本身也可能被抽中
	return min + time.Duration(d.randInt(int(max-min)+1))
}
