package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"karaoke/model"

	"gorm.io/gorm"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, update model.ProfileUpdate) error

	// 付费相关
	SetPremium(ctx context.Context, userID int64, premium bool, provider string) error
	SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error
	SetPayPalSubscriptionID(ctx context.Context, userID int64, subscriptionID string) error
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	GetUserByPayPalSubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error)
}

// gormUserRepository GORM 实现
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GORM 用户仓库
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// CreateUser adds a new user and returns its ID.
func (r *gormUserRepository) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	if user.Role == "" {
		user.Role = model.UserRoleMember
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return 0, ErrDuplicateUser
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return user.ID, nil
}

// GetUserByID retrieves a user by their ID.
func (r *gormUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by their username.
func (r *gormUserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.first(ctx, "username = ?", username)
}

// GetUserByEmail retrieves a user by their email address.
func (r *gormUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

// GetUserByStripeCustomerID 根据 Stripe customer 查找用户
func (r *gormUserRepository) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.first(ctx, "stripe_customer_id = ?", customerID)
}

// GetUserByPayPalSubscriptionID 根据 PayPal 订阅ID查找用户
func (r *gormUserRepository) GetUserByPayPalSubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return r.first(ctx, "paypal_subscription_id = ?", subscriptionID)
}

// first returns (nil, nil) when no row matches.
func (r *gormUserRepository) first(ctx context.Context, query string, args ...interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// UpdateProfile 更新用户资料
func (r *gormUserRepository) UpdateProfile(ctx context.Context, userID int64, update model.ProfileUpdate) error {
	fields := map[string]interface{}{}
	if update.DisplayName != nil {
		fields["display_name"] = *update.DisplayName
	}
	if update.Bio != nil {
		fields["bio"] = *update.Bio
	}
	if update.AvatarURL != nil {
		fields["avatar_url"] = *update.AvatarURL
	}
	if len(fields) == 0 {
		return nil
	}
	return r.updates(ctx, userID, fields)
}

// SetPremium 设置/取消付费状态
func (r *gormUserRepository) SetPremium(ctx context.Context, userID int64, premium bool, provider string) error {
	fields := map[string]interface{}{"premium": premium}
	if premium {
		fields["premium_since"] = time.Now()
		fields["premium_provider"] = provider
	} else {
		fields["premium_since"] = nil
	}
	return r.updates(ctx, userID, fields)
}

// SetStripeCustomerID 绑定 Stripe customer
func (r *gormUserRepository) SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error {
	return r.updates(ctx, userID, map[string]interface{}{"stripe_customer_id": customerID})
}

// SetPayPalSubscriptionID 绑定 PayPal 订阅
func (r *gormUserRepository) SetPayPalSubscriptionID(ctx context.Context, userID int64, subscriptionID string) error {
	return r.updates(ctx, userID, map[string]interface{}{"paypal_subscription_id": subscriptionID})
}

func (r *gormUserRepository) updates(ctx context.Context, userID int64, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
