package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"Disparo/config"
	"Disparo/pkg/logger"
)

// SendResponse 网关发送响应
type SendResponse struct {
	MessageID string // 网关返回的消息 ID
	Status    string // 网关返回的状态（如 "PENDING", "SENT"）
	Provider  string // 服务提供商（"evolution", "mock"）
}

// Client WhatsApp 客户端接口
type Client interface {
	// SendText 通过指定 instance 发送一条纯文本
	// instanceID: 发送身份（已接入的 WhatsApp 号码实例）
	// number: 收件人号码（纯数字国际格式）
	// text: 渲染完成的最终文案
	SendText(ctx context.Context, instanceID, number, text string) (*SendResponse, error)
}

var (
	waClient Client
	waOnce   sync.Once
	waErr    error
)

// Init 初始化 WhatsApp 客户端
func Init() error {
	waOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.WhatsAppProvider {
		case "evolution":
			waClient = NewEvolutionClient()
		case "mock":
			waClient = NewMockClient()
		default:
			waErr = fmt.Errorf("unsupported WhatsApp provider: %s", cfg.WhatsAppProvider)
		}

		if waErr != nil {
			logger.Logger.Error("Failed to initialize WhatsApp client", zap.Error(waErr))
			return
		}

		logger.Logger.Info("WhatsApp client initialized successfully",
			zap.String("provider", cfg.WhatsAppProvider),
		)
	})

	return waErr
}

func GetClient() Client {
	if waClient == nil {
		panic("WhatsApp client not initialized, call whatsapp.Init() first")
	}
	return waClient
}

func SendText(ctx context.Context, instanceID, number, text string) (*SendResponse, error) {
	return GetClient().SendText(ctx, instanceID, number, text)
}

// 网关在号码未注册时的几种已知措辞，只能靠子串匹配识别
var recipientNotFoundMarkers = []string{
	`"exists":false`,
	"does not exist",
	"not found",
}

// IsRecipientNotFound 判断发送错误是否因为收件人在平台上不存在
// 该类错误是终态，重试没有意义
func IsRecipientNotFound(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range recipientNotFoundMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
