package model

import "time"

// Favorite 用户收藏的歌曲
type Favorite struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64     `json:"userId" gorm:"uniqueIndex:uq_user_song;not null"`
	SongID    int64     `json:"songId" gorm:"uniqueIndex:uq_user_song;not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定表名
func (Favorite) TableName() string {
	return "favorites"
}
