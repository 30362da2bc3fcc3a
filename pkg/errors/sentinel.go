package errors

import "errors"

// token 相关的内部哨兵错误，不直接暴露给 API 响应。
var (
	ErrTokenGeneratorNotInitialized = errors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = errors.New("unexpected signing method")
	ErrInvalidToken                 = errors.New("invalid token")
	ErrInvalidTokenClaims           = errors.New("invalid token claims")
	ErrInvalidTokenType             = errors.New("invalid token type")
	ErrTenantIDNotFound             = errors.New("tenant id not found in token")
)
