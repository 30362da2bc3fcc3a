package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"Disparo/internal/model"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// FindByNumber 按 (tenant, number) 查联系人，不存在时返回 (nil, nil)
func (r *ContactRepository) FindByNumber(ctx context.Context, tenantID, number string) (*model.Contact, error) {
	var contact model.Contact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND number = ?", tenantID, number).
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	return &contact, nil
}

// MarkContacted 发送成功后推进漏斗阶段并记录发送 instance
func (r *ContactRepository) MarkContacted(ctx context.Context, tenantID string, contactID int64, instanceID string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Contact{}).
		Where("id = ? AND tenant_id = ?", contactID, tenantID).
		Updates(map[string]interface{}{
			"stage":       model.ContactStageContacted,
			"instance_id": instanceID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark contact as contacted: %w", err)
	}
	return nil
}
