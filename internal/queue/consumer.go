package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"Disparo/internal/cache"
	"Disparo/internal/model"
	pkgerrors "Disparo/pkg/errors"
	"Disparo/pkg/logger"
	"Disparo/storage/mq"
)

const (
	// 处理中标记覆盖单条任务的最长耗时（含节奏等待）
	processingTTL = 30 * time.Minute
	// 已处理标记保留一天，覆盖队列内迟到的重复投递
	processedTTL = 24 * time.Hour

	consumerRestartDelay = 5 * time.Second
)

// DispatchService 发送任务的处理入口，由启动侧注入
type DispatchService interface {
	Process(ctx context.Context, msg model.CampaignSendMessage) error
}

var dispatchService DispatchService

// SetDispatchService 注入发送服务，必须在启动消费者之前调用
func SetDispatchService(s DispatchService) {
	dispatchService = s
}

// StartCampaignSendConsumer 启动发送队列消费者
// prefetch=1：单消费者串行处理，节奏延时即天然的发送间隔
func StartCampaignSendConsumer(ctx context.Context) error {
	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.CampaignSendQueue,
		ConsumerTag:   "campaign-send-worker",
		PrefetchCount: 1,
		Handler: func(body []byte) error {
			return handleCampaignSend(ctx, body)
		},
	})
}

func handleCampaignSend(ctx context.Context, body []byte) error {
	var msg model.CampaignSendMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Logger.Error("Failed to unmarshal campaign send message", zap.Error(err))
		// 坏消息重投也无法修复，直接出队
		return pkgerrors.Skip("malformed message body")
	}

	if dispatchService == nil {
		return fmt.Errorf("dispatch service not initialized")
	}

	// 队列级幂等：同一 message_id 只进入处理流程一次
	// Redis 故障时放行，幂等退化为库内的收件人状态门控
	if msg.MessageID != "" {
		acquired, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, processingTTL)
		if err != nil {
			logger.Logger.Warn("Failed to mark message processing, continuing without dedup",
				zap.String("message_id", msg.MessageID), zap.Error(err))
		} else if !acquired {
			return pkgerrors.Skip("message already being processed")
		}
	}

	err := dispatchService.Process(ctx, msg)

	if msg.MessageID != "" {
		if err == nil || pkgerrors.IsSkipMessageError(err) {
			if merr := cache.MarkMessageProcessed(ctx, msg.MessageID, processedTTL); merr != nil {
				logger.Logger.Warn("Failed to mark message processed",
					zap.String("message_id", msg.MessageID), zap.Error(merr))
			}
		} else {
			// 可重试错误：清掉处理中标记，让重投副本能再次进入
			if uerr := cache.UnmarkMessageProcessing(ctx, msg.MessageID); uerr != nil {
				logger.Logger.Warn("Failed to unmark message processing",
					zap.String("message_id", msg.MessageID), zap.Error(uerr))
			}
		}
	}

	return err
}

// StartAllConsumers 启动全部消费者并在异常退出后自动重启
func StartAllConsumers(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if err := StartCampaignSendConsumer(ctx); err != nil {
				logger.Logger.Error("Campaign send consumer stopped", zap.Error(err))
			}

			select {
			case <-ctx.Done():
				logger.Logger.Info("Campaign send consumer shutting down")
				return
			case <-time.After(consumerRestartDelay):
				logger.Logger.Info("Restarting campaign send consumer")
			}
		}
	}()

	return &wg
}
