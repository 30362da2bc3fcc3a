package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"Disparo/config"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

// 队列拓扑：普通投递走 topic exchange，重投（暂停退避、额度退避）
// 走 x-delayed-message exchange，消息本身不丢，只是延后可见。
const (
	TopicExchange   = "campaign.topic"
	DelayedExchange = "campaign.delayed"

	CampaignSendQueue      = "campaign.send"
	CampaignSendRoutingKey = "campaign.send"
)

func Init() error {
	connOnce.Do(func() {
		url := config.Cfg.GetRabbitMQURL()
		conn, connErr = amqp.Dial(url)
		if connErr != nil {
			return
		}

		connErr = declareTopology()
	})

	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

func Close(ctx context.Context) error {
	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// declareTopology 声明 exchange、队列和绑定关系。
// 延迟 exchange 依赖 rabbitmq_delayed_message_exchange 插件。
func declareTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open topology channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		TopicExchange, "topic",
		true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(
		DelayedExchange, "x-delayed-message",
		true, false, false, false,
		amqp.Table{"x-delayed-type": "topic"},
	); err != nil {
		return fmt.Errorf("failed to declare delayed exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		CampaignSendQueue,
		true, false, false, false, nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", CampaignSendQueue, err)
	}

	if err := ch.QueueBind(CampaignSendQueue, CampaignSendRoutingKey, TopicExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to topic exchange: %w", err)
	}

	if err := ch.QueueBind(CampaignSendQueue, CampaignSendRoutingKey, DelayedExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to delayed exchange: %w", err)
	}

	return nil
}
