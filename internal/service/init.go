package service

import (
	"sync"

	"Disparo/internal/queue"
	"Disparo/internal/repository"
	"Disparo/pkg/whatsapp"
	"Disparo/storage/database"
	"Disparo/utils"
)

// 服务单例，首次访问时基于默认依赖装配
// 测试直接用 New* 构造器注入 fake
var (
	quotaOnce    sync.Once
	quotaService *QuotaService

	campaignOnce    sync.Once
	campaignService *CampaignService

	dispatchOnce    sync.Once
	dispatchService *Dispatcher
)

func Quota() *QuotaService {
	quotaOnce.Do(func() {
		quotaService = NewQuotaService(
			repository.NewQuotaRepository(database.DB()),
			DefaultCeilings(),
			utils.QuotaLocation(),
		)
	})
	return quotaService
}

func Campaign() *CampaignService {
	campaignOnce.Do(func() {
		db := database.DB()
		campaignService = NewCampaignService(
			repository.NewCampaignRepository(db),
			repository.NewLeadRepository(db),
			Quota(),
			queue.NewProducer(),
		)
	})
	return campaignService
}

func Dispatch() *Dispatcher {
	dispatchOnce.Do(func() {
		db := database.DB()
		dispatchService = NewDispatcher(
			repository.NewCampaignRepository(db),
			repository.NewLeadRepository(db),
			repository.NewContactRepository(db),
			Quota(),
			whatsapp.GetClient(),
			queue.NewProducer(),
			DefaultDispatchConfig(),
		)
	})
	return dispatchService
}
