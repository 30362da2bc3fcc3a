package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"Disparo/config"
	"Disparo/pkg/logger"
)

// EvolutionClient Evolution 风格网关的 HTTP 客户端
// 发送走 POST {base}/message/sendText/{instance}，apikey 头鉴权
type EvolutionClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewEvolutionClient() *EvolutionClient {
	cfg := config.Cfg
	return &EvolutionClient{
		baseURL: strings.TrimRight(cfg.WhatsAppBaseURL, "/"),
		apiKey:  cfg.WhatsAppAPIKey,
		http: &http.Client{
			Timeout: time.Duration(cfg.WhatsAppTimeout) * time.Second,
		},
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

func (c *EvolutionClient) SendText(ctx context.Context, instanceID, number, text string) (*SendResponse, error) {
	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, instanceID)

	bodyBytes, err := json.Marshal(sendTextRequest{
		Number: number,
		Text:   text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	logger.Logger.Debug("Sending text to WhatsApp gateway",
		zap.String("instance_id", instanceID),
		zap.String("number", number),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	// 错误响应体原样进入 error，上层靠其中的措辞区分"号码不存在"和其他失败
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var parsed sendTextResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// 2xx 但响应不可解析，按发送成功处理，只记日志
		logger.Logger.Warn("Unparseable gateway response on success status",
			zap.String("instance_id", instanceID),
			zap.Int("status", resp.StatusCode),
		)
		return &SendResponse{Provider: "evolution"}, nil
	}

	return &SendResponse{
		MessageID: parsed.Key.ID,
		Status:    parsed.Status,
		Provider:  "evolution",
	}, nil
}
