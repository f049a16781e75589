package model

import "time"

// 歌曲来源
const (
	SongSourceUpload  = "upload"  // 上传到 MinIO 的音频
	SongSourceYouTube = "youtube" // YouTube 卡拉OK视频
	SongSourceStatic  = "static"  // 曲库文件中的静态地址
)

// Song is a playable karaoke item of the catalog.
type Song struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title           string    `json:"title" gorm:"size:255;not null;index"`
	Artist          string    `json:"artist" gorm:"size:255;index"`
	Genre           string    `json:"genre,omitempty" gorm:"size:64;index"`
	Language        string    `json:"language,omitempty" gorm:"size:32"`
	Source          string    `json:"source" gorm:"size:20;default:'static'"`
	MediaURL        string    `json:"mediaUrl" gorm:"size:767"`                          // 可直接播放的地址
	ObjectKey       string    `json:"-" gorm:"size:767"`                                 // MinIO 对象名（上传歌曲）
	YouTubeID       string    `json:"youtubeId,omitempty" gorm:"column:youtube_id;size:32;index"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty" gorm:"size:767"`
	DurationSeconds float64   `json:"durationSeconds"`
	Lyrics          string    `json:"lyrics,omitempty" gorm:"type:text"`
	CatalogKey      string    `json:"-" gorm:"size:191;uniqueIndex"` // 曲库导入时的幂等键
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Song) TableName() string {
	return "songs"
}

// SongQuery 歌曲检索条件
type SongQuery struct {
	Keyword string
	Genre   string
	Page    int
	Limit   int
}

// Normalize clamps paging values to sane bounds.
func (q SongQuery) Normalize() SongQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return q
}

// Offset returns the row offset of the page.
func (q SongQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}
