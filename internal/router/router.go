package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"Disparo/internal/handler"
	"Disparo/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	v1 := h.Group("/v1")

	// 认证相关路由
	auth := v1.Group("/auth")
	auth.Use(middleware.GeneralRateLimitMiddleware())
	{
		auth.POST("/token", handler.ExchangeToken)
		auth.POST("/token/refresh", handler.RefreshToken)
	}

	// 群发活动路由
	campaigns := v1.Group("/campaigns")
	campaigns.Use(middleware.AuthMiddleware())
	{
		campaigns.POST("", handler.CreateCampaign)
		campaigns.GET("/:campaign_id", handler.GetCampaign)
		campaigns.GET("/:campaign_id/leads", handler.ListCampaignLeads)
		campaigns.POST("/:campaign_id/start", middleware.CampaignStartRateLimitMiddleware(), handler.StartCampaign)
		campaigns.POST("/:campaign_id/pause", handler.PauseCampaign)
	}

	// 实例额度路由
	instances := v1.Group("/instances")
	instances.Use(middleware.AuthMiddleware())
	{
		instances.GET("/:instance_id/quota", handler.GetInstanceQuota)
	}
}
