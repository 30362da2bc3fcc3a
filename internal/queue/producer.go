package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Disparo/internal/model"
	"Disparo/pkg/logger"
	"Disparo/pkg/snowflake"
	"Disparo/storage/mq"
)

// Producer 发送任务的队列生产者
type Producer struct{}

func NewProducer() *Producer {
	return &Producer{}
}

// PublishCampaignSend 立即投递一条发送任务
func (p *Producer) PublishCampaignSend(ctx context.Context, msg model.CampaignSendMessage) error {
	ensureMessageID(&msg)

	if err := mq.PublishMessage(mq.TopicExchange, mq.CampaignSendRoutingKey, msg); err != nil {
		return fmt.Errorf("failed to publish campaign send message: %w", err)
	}

	logger.Logger.Info("Campaign send task published",
		zap.String("message_id", msg.MessageID),
		zap.Int64("campaign_id", msg.CampaignID),
		zap.Int64("lead_id", msg.LeadID),
	)
	return nil
}

// RescheduleCampaignSend 延迟重投一条任务
// 重投副本换新 message_id，避免撞上原消息已写入的幂等标记
func (p *Producer) RescheduleCampaignSend(ctx context.Context, msg model.CampaignSendMessage, delay time.Duration) error {
	previousID := msg.MessageID
	msg.MessageID = ""
	ensureMessageID(&msg)

	if err := mq.PublishDelayedMessage(mq.DelayedExchange, mq.CampaignSendRoutingKey, delay, msg); err != nil {
		return fmt.Errorf("failed to publish delayed campaign send message: %w", err)
	}

	logger.Logger.Info("Campaign send task rescheduled",
		zap.String("message_id", msg.MessageID),
		zap.String("previous_message_id", previousID),
		zap.Int64("campaign_id", msg.CampaignID),
		zap.Int64("lead_id", msg.LeadID),
		zap.Duration("delay", delay),
	)
	return nil
}

func ensureMessageID(msg *model.CampaignSendMessage) {
	if msg.MessageID != "" {
		return
	}
	id, err := snowflake.NextID()
	if err != nil {
		msg.MessageID = uuid.NewString()
		return
	}
	msg.MessageID = strconv.FormatInt(id, 10)
}
