package model

// Collection 对外暴露的公开歌单（/api/collections 的元素）
type Collection struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	CoverURL    string  `json:"coverUrl,omitempty"`
	Owner       string  `json:"owner,omitempty"`
	Songs       []*Song `json:"songs"`
}

// CollectionsResponse 是 GET /api/collections 的响应体
type CollectionsResponse struct {
	Success     bool          `json:"success"`
	Collections []*Collection `json:"collections"`
}
