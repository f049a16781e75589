package repository

import (
	"context"
	"errors"
	"fmt"

	"karaoke/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SongRepository 歌曲数据访问接口
type SongRepository interface {
	Create(ctx context.Context, song *model.Song) error
	// UpsertByCatalogKey 按曲库键插入或更新，返回是否为新插入
	UpsertByCatalogKey(ctx context.Context, song *model.Song) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.Song, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Song, error)
	Search(ctx context.Context, q model.SongQuery) ([]*model.Song, int64, error)
	Delete(ctx context.Context, id int64) error
}

type gormSongRepository struct {
	db *gorm.DB
}

// NewGormSongRepository 创建 GORM 歌曲仓库
func NewGormSongRepository(db *gorm.DB) SongRepository {
	return &gormSongRepository{db: db}
}

// Create 新增歌曲
func (r *gormSongRepository) Create(ctx context.Context, song *model.Song) error {
	if err := r.db.WithContext(ctx).Create(song).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create song: %w", err)
	}
	return nil
}

// UpsertByCatalogKey 曲库导入使用，catalog_key 为唯一键
func (r *gormSongRepository) UpsertByCatalogKey(ctx context.Context, song *model.Song) (bool, error) {
	if song.CatalogKey == "" {
		return false, fmt.Errorf("catalog key is required")
	}

	var existing model.Song
	err := r.db.WithContext(ctx).Where("catalog_key = ?", song.CatalogKey).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up catalog song %s: %w", song.CatalogKey, err)
	}
	created := errors.Is(err, gorm.ErrRecordNotFound)

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "catalog_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "artist", "genre", "language", "source", "media_url",
			"youtube_id", "thumbnail_url", "duration_seconds", "lyrics", "updated_at",
		}),
	}).Create(song).Error
	if err != nil {
		return false, fmt.Errorf("failed to upsert catalog song %s: %w", song.CatalogKey, err)
	}
	return created, nil
}

// GetByID 根据ID获取歌曲
func (r *gormSongRepository) GetByID(ctx context.Context, id int64) (*model.Song, error) {
	var song model.Song
	err := r.db.WithContext(ctx).First(&song, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get song %d: %w", id, err)
	}
	return &song, nil
}

// GetByIDs 批量获取歌曲，结果保持 ids 的顺序，不存在的ID被跳过
func (r *gormSongRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Song, error) {
	if len(ids) == 0 {
		return []*model.Song{}, nil
	}

	var songs []*model.Song
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("failed to get songs: %w", err)
	}

	byID := make(map[int64]*model.Song, len(songs))
	for _, s := range songs {
		byID[s.ID] = s
	}
	ordered := make([]*model.Song, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered, nil
}

// Search 按关键字/流派分页检索
func (r *gormSongRepository) Search(ctx context.Context, q model.SongQuery) ([]*model.Song, int64, error) {
	q = q.Normalize()

	tx := r.db.WithContext(ctx).Model(&model.Song{})
	if q.Keyword != "" {
		like := "%" + q.Keyword + "%"
		tx = tx.Where("title LIKE ? OR artist LIKE ?", like, like)
	}
	if q.Genre != "" {
		tx = tx.Where("genre = ?", q.Genre)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count songs: %w", err)
	}

	songs := make([]*model.Song, 0, q.Limit)
	err := tx.Order("title ASC").Offset(q.Offset()).Limit(q.Limit).Find(&songs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search songs: %w", err)
	}
	return songs, total, nil
}

// Delete 删除歌曲
func (r *gormSongRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Song{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete song %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
