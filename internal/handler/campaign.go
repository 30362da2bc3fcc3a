package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"Disparo/internal/middleware"
	"Disparo/internal/model/dto"
	"Disparo/internal/service"
	"Disparo/pkg/errors"
	"Disparo/pkg/response"
)

func tenantFromContext(ctx context.Context, c *app.RequestContext) (string, bool) {
	tenantID, ok := middleware.GetTenantID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("tenant ID not found in context"))
		return "", false
	}
	return tenantID, true
}

func campaignIDFromPath(ctx context.Context, c *app.RequestContext) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("campaign_id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(ctx, c, errors.CampaignNotFound)
		return 0, false
	}
	return id, true
}

// CreateCampaign 创建群发活动并附带收件人列表
// POST /v1/campaigns
func CreateCampaign(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantFromContext(ctx, c)
	if !ok {
		return
	}

	var req dto.CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	campaign, err := service.Campaign().Create(ctx, tenantID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, dto.CampaignResponse{
		ID:         campaign.ID,
		Name:       campaign.Name,
		Channel:    campaign.Channel,
		InstanceID: campaign.InstanceID,
		Status:     string(campaign.Status),
		CreatedAt:  campaign.CreatedAt,
	})
}

// StartCampaign 启动（或恢复）群发活动
// POST /v1/campaigns/:campaign_id/start
func StartCampaign(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantFromContext(ctx, c)
	if !ok {
		return
	}
	id, ok := campaignIDFromPath(ctx, c)
	if !ok {
		return
	}

	if err := service.Campaign().Start(ctx, tenantID, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"campaign_id": id,
		"status":      "running",
	})
}

// PauseCampaign 暂停群发活动
// POST /v1/campaigns/:campaign_id/pause
func PauseCampaign(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantFromContext(ctx, c)
	if !ok {
		return
	}
	id, ok := campaignIDFromPath(ctx, c)
	if !ok {
		return
	}

	if err := service.Campaign().Pause(ctx, tenantID, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"campaign_id": id,
		"status":      "paused",
	})
}

// GetCampaign 活动详情，含收件人统计
// GET /v1/campaigns/:campaign_id
func GetCampaign(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantFromContext(ctx, c)
	if !ok {
		return
	}
	id, ok := campaignIDFromPath(ctx, c)
	if !ok {
		return
	}

	result, err := service.Campaign().Get(ctx, tenantID, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// ListCampaignLeads 活动收件人列表
// GET /v1/campaigns/:campaign_id/leads
func ListCampaignLeads(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantFromContext(ctx, c)
	if !ok {
		return
	}
	id, ok := campaignIDFromPath(ctx, c)
	if !ok {
		return
	}

	leads, err := service.Campaign().ListLeads(ctx, tenantID, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, leads, map[string]interface{}{
		"total": len(leads),
	})
}

// GetInstanceQuota 查询实例当日剩余额度
// GET /v1/instances/:instance_id/quota
func GetInstanceQuota(ctx context.Context, c *app.RequestContext) {
	if _, ok := tenantFromContext(ctx, c); !ok {
		return
	}

	instanceID := c.Param("instance_id")
	if instanceID == "" {
		response.Error(ctx, c, errors.InstanceRequired)
		return
	}

	result, err := service.Campaign().Quota(ctx, instanceID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}
