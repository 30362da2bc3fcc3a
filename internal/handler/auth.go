package handler

import (
	"context"
	"crypto/subtle"

	"github.com/cloudwego/hertz/pkg/app"

	"Disparo/config"
	"Disparo/internal/model/dto"
	"Disparo/pkg/errors"
	"Disparo/pkg/response"
	"Disparo/pkg/token"
)

// ExchangeToken 用管理面密钥换取租户 token
// POST /v1/auth/token
func ExchangeToken(ctx context.Context, c *app.RequestContext) {
	var req dto.ExchangeTokenRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if req.TenantID == "" {
		response.Error(ctx, c, errors.InvalidTenantID)
		return
	}

	// 密钥未配置视为关闭该入口
	if config.Cfg.AuthAPIKey == "" ||
		subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(config.Cfg.AuthAPIKey)) != 1 {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	accessToken, refreshToken, expiresIn, err := token.GenerateTokenPair(req.TenantID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}

// RefreshToken 用 refresh token 换取新的 token 对
// POST /v1/auth/token/refresh
func RefreshToken(ctx context.Context, c *app.RequestContext) {
	var req dto.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	tenantID, err := token.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	accessToken, refreshToken, expiresIn, err := token.GenerateTokenPair(tenantID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}
