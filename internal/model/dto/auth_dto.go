package dto

// ========== 认证相关 DTO ==========

// ExchangeTokenRequest 用管理面密钥换取租户 token
type ExchangeTokenRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// RefreshTokenRequest 刷新 token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse token 响应
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
