package model

import "time"

// Playlist 用户歌单
type Playlist struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      int64     `json:"userId" gorm:"index;not null"`
	Name        string    `json:"name" gorm:"size:100;not null"`
	Description string    `json:"description,omitempty" gorm:"size:500"`
	IsPublic    bool      `json:"isPublic" gorm:"default:false;index"` // 公开歌单会出现在 /api/collections
	CoverURL    string    `json:"coverUrl,omitempty" gorm:"size:767"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistSong 歌单中的一首歌
type PlaylistSong struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	PlaylistID int64     `json:"playlistId" gorm:"uniqueIndex:uq_playlist_song;not null"`
	SongID     int64     `json:"songId" gorm:"uniqueIndex:uq_playlist_song;not null"`
	Position   int       `json:"position" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName 指定表名
func (PlaylistSong) TableName() string {
	return "playlist_songs"
}

// PlaylistWithSongs 歌单及其歌曲（按 position 排序）
type PlaylistWithSongs struct {
	Playlist
	Songs []*Song `json:"songs"`
}

// PlaylistUpdate 歌单可修改字段，nil 表示不修改
type PlaylistUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
	CoverURL    *string `json:"coverUrl"`
}
