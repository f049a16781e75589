package repository

import (
	"context"
	"fmt"

	"karaoke/model"

	"gorm.io/gorm"
)

// PaymentEventRepository 支付回调事件去重
type PaymentEventRepository interface {
	// Record 记录事件；事件已处理过时返回 false
	Record(ctx context.Context, event *model.PaymentEvent) (bool, error)
	// Forget 删除记录，处理失败时让渠道重试能再次生效
	Forget(ctx context.Context, provider, eventID string) error
}

type gormPaymentEventRepository struct {
	db *gorm.DB
}

// NewGormPaymentEventRepository 创建 GORM 支付事件仓库
func NewGormPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &gormPaymentEventRepository{db: db}
}

func (r *gormPaymentEventRepository) Record(ctx context.Context, event *model.PaymentEvent) (bool, error) {
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record %s event %s: %w", event.Provider, event.EventID, err)
	}
	return true, nil
}

func (r *gormPaymentEventRepository) Forget(ctx context.Context, provider, eventID string) error {
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Delete(&model.PaymentEvent{}).Error
	if err != nil {
		return fmt.Errorf("failed to forget %s event %s: %w", provider, eventID, err)
	}
	return nil
}
