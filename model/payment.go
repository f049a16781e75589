package model

import "time"

// 支付渠道
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderPayPal = "paypal"
)

// PaymentEvent records a processed webhook event so redeliveries are ignored.
type PaymentEvent struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Provider  string    `json:"provider" gorm:"size:20;uniqueIndex:uq_provider_event;not null"`
	EventID   string    `json:"eventId" gorm:"size:128;uniqueIndex:uq_provider_event;not null"`
	EventType string    `json:"eventType" gorm:"size:64"`
	UserID    int64     `json:"userId" gorm:"index"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定表名
func (PaymentEvent) TableName() string {
	return "payment_events"
}

// AllModels lists every persisted model for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Song{},
		&Playlist{},
		&PlaylistSong{},
		&Favorite{},
		&PaymentEvent{},
	}
}
