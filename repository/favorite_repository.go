package repository

import (
	"context"
	"fmt"

	"karaoke/model"

	"gorm.io/gorm"
)

// FavoriteRepository 收藏数据访问接口
type FavoriteRepository interface {
	Add(ctx context.Context, userID, songID int64) error
	Remove(ctx context.Context, userID, songID int64) error
	Exists(ctx context.Context, userID, songID int64) (bool, error)
	Count(ctx context.Context, userID int64) (int64, error)
	ListSongs(ctx context.Context, userID int64) ([]*model.Song, error)
}

type gormFavoriteRepository struct {
	db *gorm.DB
}

// NewGormFavoriteRepository 创建 GORM 收藏仓库
func NewGormFavoriteRepository(db *gorm.DB) FavoriteRepository {
	return &gormFavoriteRepository{db: db}
}

// Add 收藏歌曲，重复收藏返回 ErrDuplicate
func (r *gormFavoriteRepository) Add(ctx context.Context, userID, songID int64) error {
	err := r.db.WithContext(ctx).Create(&model.Favorite{UserID: userID, SongID: songID}).Error
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

// Remove 取消收藏
func (r *gormFavoriteRepository) Remove(ctx context.Context, userID, songID int64) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND song_id = ?", userID, songID).
		Delete(&model.Favorite{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove favorite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists 是否已收藏
func (r *gormFavoriteRepository) Exists(ctx context.Context, userID, songID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Favorite{}).
		Where("user_id = ? AND song_id = ?", userID, songID).
		Count(&count).Error
	return count > 0, err
}

// Count 收藏数量
func (r *gormFavoriteRepository) Count(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Favorite{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ListSongs 收藏的歌曲，最近收藏的在前
func (r *gormFavoriteRepository) ListSongs(ctx context.Context, userID int64) ([]*model.Song, error) {
	songs := make([]*model.Song, 0)
	err := r.db.WithContext(ctx).
		Table("songs").
		Select("songs.*").
		Joins("JOIN favorites f ON f.song_id = songs.id").
		Where("f.user_id = ?", userID).
		Order("f.created_at DESC").
		Find(&songs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites of user %d: %w", userID, err)
	}
	return songs, nil
}
