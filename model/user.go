package model

import "time"

// 用户角色
const (
	UserRoleMember = "member"
	UserRoleAdmin  = "admin"
)

// User represents an account of the karaoke service.
type User struct {
	ID           int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string `json:"username" gorm:"size:100;uniqueIndex;not null"`
	Email        string `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"size:255;not null"` // Not exposed in API responses
	Role         string `json:"role" gorm:"size:20;default:'member'"`
	DisplayName  string `json:"displayName,omitempty" gorm:"size:100"`
	Bio          string `json:"bio,omitempty" gorm:"size:500"`
	AvatarURL    string `json:"avatarUrl,omitempty" gorm:"size:767"`

	// 付费状态：一个布尔标记，由支付回调维护
	Premium              bool       `json:"premium" gorm:"default:false;index"`
	PremiumSince         *time.Time `json:"premiumSince,omitempty"`
	PremiumProvider      string     `json:"premiumProvider,omitempty" gorm:"size:20"` // stripe, paypal
	StripeCustomerID     string     `json:"-" gorm:"size:64;index"`
	PayPalSubscriptionID string     `json:"-" gorm:"column:paypal_subscription_id;size:64;index"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user may use /api/admin endpoints.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

// ProfileUpdate 用户可修改的资料字段，nil 表示不修改
type ProfileUpdate struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatarUrl"`
}
