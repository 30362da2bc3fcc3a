package whatsapp

import (
	"context"
	"errors"
	"sync"
)

type MockCall struct {
	InstanceID string
	Number     string
	Text       string
}

// MockClient 可配置的 WhatsApp 客户端 mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall

	// FailNext 置为 true 时，下一次调用返回 mock 错误并自动复位
	FailNext bool
	// FailWith 非 nil 时优先返回该错误，用于模拟特定网关措辞
	FailWith error
}

func NewMockClient() *MockClient {
	return &MockClient{
		Calls: make([]MockCall, 0),
	}
}

func (m *MockClient) SendText(ctx context.Context, instanceID, number, text string) (*SendResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{
		InstanceID: instanceID,
		Number:     number,
		Text:       text,
	})

	if m.FailWith != nil {
		err := m.FailWith
		m.FailWith = nil
		return nil, err
	}

	if m.FailNext {
		m.FailNext = false
		return nil, errors.New("mock whatsapp send failure")
	}

	return &SendResponse{
		MessageID: "mock-message-id",
		Status:    "SENT",
		Provider:  "mock",
	}, nil
}

// CallCount 返回已记录的调用次数
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
