package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Disparo/internal/model"
)

type QuotaRepository struct {
	db *gorm.DB
}

func NewQuotaRepository(db *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// IncrementIfBelow 条件累加当日计数，单条 UPDATE 保证 check-then-increment 原子，
// 多 worker 并发下计数也不会越过 ceiling。返回 false 表示额度不够
func (r *QuotaRepository) IncrementIfBelow(ctx context.Context, instanceID, day, feature string, amount, ceiling int) (bool, error) {
	var accepted bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 懒创建当日计数行，冲突时保持原值
		usage := &model.QuotaUsage{
			InstanceID: instanceID,
			Day:        day,
			Feature:    feature,
			Used:       0,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "day"}, {Name: "feature"}},
			DoNothing: true,
		}).Create(usage).Error; err != nil {
			return fmt.Errorf("failed to ensure quota row: %w", err)
		}

		result := tx.Model(&model.QuotaUsage{}).
			Where("instance_id = ? AND day = ? AND feature = ? AND used <= ?",
				instanceID, day, feature, ceiling-amount).
			Update("used", gorm.Expr("used + ?", amount))
		if result.Error != nil {
			return fmt.Errorf("failed to increment quota: %w", result.Error)
		}

		accepted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	return accepted, nil
}

// Current 返回当日已用计数，无记录按 0 处理
func (r *QuotaRepository) Current(ctx context.Context, instanceID, day, feature string) (int, error) {
	var usage model.QuotaUsage
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND day = ? AND feature = ?", instanceID, day, feature).
		First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query quota usage: %w", err)
	}
	return usage.Used, nil
}
