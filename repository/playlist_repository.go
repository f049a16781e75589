package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"karaoke/model"

	"gorm.io/gorm"
)

// PlaylistRepository 歌单数据访问接口
type PlaylistRepository interface {
	// 歌单 CRUD
	Create(ctx context.Context, playlist *model.Playlist) error
	GetByID(ctx context.Context, id int64) (*model.Playlist, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Playlist, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
	Update(ctx context.Context, id int64, update model.PlaylistUpdate) error
	Delete(ctx context.Context, id int64) error
	ListPublic(ctx context.Context, limit int) ([]*model.Playlist, error)

	// 歌曲管理
	GetSongs(ctx context.Context, playlistID int64) ([]*model.Song, error)
	CountSongs(ctx context.Context, playlistID int64) (int64, error)
	AddSong(ctx context.Context, playlistID, songID int64) error
	RemoveSong(ctx context.Context, playlistID, songID int64) error
	MoveSong(ctx context.Context, playlistID, songID int64, position int) error
}

type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository 创建 GORM 歌单仓库
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

// ========== 歌单 CRUD ==========

// Create 创建歌单
func (r *gormPlaylistRepository) Create(ctx context.Context, playlist *model.Playlist) error {
	if err := r.db.WithContext(ctx).Create(playlist).Error; err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

// GetByID 根据ID获取歌单
func (r *gormPlaylistRepository) GetByID(ctx context.Context, id int64) (*model.Playlist, error) {
	var playlist model.Playlist
	err := r.db.WithContext(ctx).First(&playlist, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get playlist %d: %w", id, err)
	}
	return &playlist, nil
}

// ListByUser 获取用户的全部歌单
func (r *gormPlaylistRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Playlist, error) {
	playlists := make([]*model.Playlist, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists for user %d: %w", userID, err)
	}
	return playlists, nil
}

// CountByUser 统计用户歌单数量（免费用户限额）
func (r *gormPlaylistRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Playlist{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// Update 更新歌单信息
func (r *gormPlaylistRepository) Update(ctx context.Context, id int64, update model.PlaylistUpdate) error {
	fields := map[string]interface{}{}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Description != nil {
		fields["description"] = *update.Description
	}
	if update.IsPublic != nil {
		fields["is_public"] = *update.IsPublic
	}
	if update.CoverURL != nil {
		fields["cover_url"] = *update.CoverURL
	}
	if len(fields) == 0 {
		return nil
	}

	res := r.db.WithContext(ctx).Model(&model.Playlist{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update playlist %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除歌单及其歌曲关系
func (r *gormPlaylistRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&model.PlaylistSong{}).Error; err != nil {
			return fmt.Errorf("failed to delete playlist songs: %w", err)
		}
		res := tx.Delete(&model.Playlist{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete playlist %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListPublic 公开歌单，最新的在前
func (r *gormPlaylistRepository) ListPublic(ctx context.Context, limit int) ([]*model.Playlist, error) {
	if limit <= 0 {
		limit = 20
	}
	playlists := make([]*model.Playlist, 0, limit)
	err := r.db.WithContext(ctx).
		Where("is_public = ?", true).
		Order("updated_at DESC").
		Limit(limit).
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public playlists: %w", err)
	}
	return playlists, nil
}

// ========== 歌曲管理 ==========

// GetSongs 按 position 顺序获取歌单中的歌曲
func (r *gormPlaylistRepository) GetSongs(ctx context.Context, playlistID int64) ([]*model.Song, error) {
	songs := make([]*model.Song, 0)
	err := r.db.WithContext(ctx).
		Table("songs").
		Select("songs.*").
		Joins("JOIN playlist_songs ps ON ps.song_id = songs.id").
		Where("ps.playlist_id = ?", playlistID).
		Order("ps.position ASC").
		Find(&songs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get songs of playlist %d: %w", playlistID, err)
	}
	return songs, nil
}

// CountSongs 统计歌单歌曲数
func (r *gormPlaylistRepository) CountSongs(ctx context.Context, playlistID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PlaylistSong{}).
		Where("playlist_id = ?", playlistID).
		Count(&count).Error
	return count, err
}

// AddSong 把歌曲追加到歌单末尾
func (r *gormPlaylistRepository) AddSong(ctx context.Context, playlistID, songID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos sql.NullInt64
		if err := tx.Model(&model.PlaylistSong{}).
			Where("playlist_id = ?", playlistID).
			Select("MAX(position)").
			Row().Scan(&maxPos); err != nil {
			return fmt.Errorf("failed to get max position: %w", err)
		}

		next := 0
		if maxPos.Valid {
			next = int(maxPos.Int64) + 1
		}

		err := tx.Create(&model.PlaylistSong{
			PlaylistID: playlistID,
			SongID:     songID,
			Position:   next,
		}).Error
		if err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to add song %d to playlist %d: %w", songID, playlistID, err)
		}
		return tx.Model(&model.Playlist{}).Where("id = ?", playlistID).Update("updated_at", gorm.Expr("NOW()")).Error
	})
}

// RemoveSong 移除歌曲并压缩后续位置
func (r *gormPlaylistRepository) RemoveSong(ctx context.Context, playlistID, songID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.PlaylistSong
		err := tx.Where("playlist_id = ? AND song_id = ?", playlistID, songID).First(&entry).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Delete(&entry).Error; err != nil {
			return fmt.Errorf("failed to remove song: %w", err)
		}

		return tx.Model(&model.PlaylistSong{}).
			Where("playlist_id = ? AND position > ?", playlistID, entry.Position).
			Update("position", gorm.Expr("position - 1")).Error
	})
}

// MoveSong 把歌曲移动到新位置（越界时落在两端）
func (r *gormPlaylistRepository) MoveSong(ctx context.Context, playlistID, songID int64, position int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []*model.PlaylistSong
		if err := tx.Where("playlist_id = ?", playlistID).Order("position ASC").Find(&entries).Error; err != nil {
			return fmt.Errorf("failed to load playlist entries: %w", err)
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.SongID
		}
		reordered, ok := moveID(ids, songID, position)
		if !ok {
			return ErrNotFound
		}

		for i, id := range reordered {
			if err := tx.Model(&model.PlaylistSong{}).
				Where("playlist_id = ? AND song_id = ?", playlistID, id).
				Update("position", i).Error; err != nil {
				return fmt.Errorf("failed to update position: %w", err)
			}
		}
		return nil
	})
}

// moveID returns ids with id moved to position, clamped into range.
func moveID(ids []int64, id int64, position int) ([]int64, bool) {
	from := -1
	for i, v := range ids {
		if v == id {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, false
	}

	out := make([]int64, 0, len(ids))
	out = append(out, ids[:from]...)
	out = append(out, ids[from+1:]...)

	if position < 0 {
		position = 0
	}
	if position > len(out) {
		position = len(out)
	}

	out = append(out, 0)
	copy(out[position+1:], out[position:])
	out[position] = id
	return out, true
}
