package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Disparo/config"
	"Disparo/internal/model"
	pkgerrors "Disparo/pkg/errors"
	"Disparo/pkg/logger"
	"Disparo/utils"
)

// UsageStore 每日计数的持久化依赖
// check-then-increment 的原子性由实现侧保证（条件 UPDATE）
type UsageStore interface {
	IncrementIfBelow(ctx context.Context, instanceID, day, feature string, amount, ceiling int) (bool, error)
	Current(ctx context.Context, instanceID, day, feature string) (int, error)
}

// QuotaService 滑动日额度，按 (instance, 参考时区日历日, feature) 计数
type QuotaService struct {
	store    UsageStore
	ceilings map[string]int
	loc      *time.Location
	now      func() time.Time
}

func NewQuotaService(store UsageStore, ceilings map[string]int, loc *time.Location) *QuotaService {
	return &QuotaService{
		store:    store,
		ceilings: ceilings,
		loc:      loc,
		now:      time.Now,
	}
}

// DefaultCeilings 从配置读取各 feature 的日上限
func DefaultCeilings() map[string]int {
	return map[string]int{
		model.QuotaFeatureCampaignMessage: config.Cfg.CampaignDailyQuota,
	}
}

// Ceiling 返回 feature 的日上限，未配置的 feature 上限为 0（即拒绝）
func (s *QuotaService) Ceiling(feature string) int {
	return s.ceilings[feature]
}

// Reserve 原子预占额度：额度足够则累加计数并返回 nil，
// 不足则返回 QuotaExceeded（附带剩余量，供用户侧提示）
func (s *QuotaService) Reserve(ctx context.Context, instanceID, feature string, amount int) error {
	ceiling := s.Ceiling(feature)

	accepted, err := s.store.IncrementIfBelow(ctx, instanceID, s.today(), feature, amount, ceiling)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}

	if !accepted {
		remaining, _, qerr := s.Remaining(ctx, instanceID, feature)
		if qerr != nil {
			remaining = 0
		}
		logger.Logger.Warn("Quota reservation rejected",
			zap.String("instance_id", instanceID),
			zap.String("feature", feature),
			zap.Int("amount", amount),
			zap.Int("remaining", remaining),
		)
		return fmt.Errorf("%w (remaining %d)", pkgerrors.QuotaExceeded, remaining)
	}

	return nil
}

// Remaining 只读查询，返回 (剩余量, 已用量)
func (s *QuotaService) Remaining(ctx context.Context, instanceID, feature string) (int, int, error) {
	used, err := s.store.Current(ctx, instanceID, s.today(), feature)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query quota usage: %w", err)
	}

	remaining := s.Ceiling(feature) - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, used, nil
}

func (s *QuotaService) today() string {
	return utils.DayKey(s.now(), s.loc)
}
