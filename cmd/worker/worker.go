package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"Disparo/config"
	"Disparo/internal/queue"
	"Disparo/internal/service"
	"Disparo/pkg/logger"
	"Disparo/pkg/otel"
	"Disparo/pkg/snowflake"
	"Disparo/pkg/whatsapp"
	"Disparo/storage"
)

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// WhatsApp 网关客户端，worker 是唯一的发送方
	if err := whatsapp.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize WhatsApp client", zap.Error(err))
	}

	if config.Cfg.TracingEnabled {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:  config.Cfg.ServiceName + "-worker",
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.TracingEndpoint,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Logger.Warn("Failed to shutdown tracing", zap.Error(err))
				}
			}()
		}
	}

	// 注入发送服务，所有消费者共用这一实例
	queue.SetDispatchService(service.Dispatch())

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// 启动所有的消费者并等待退出
	wg := queue.StartAllConsumers(ctx)
	wg.Wait()

	logger.Logger.Info("Worker service shutting down gracefully")
}
