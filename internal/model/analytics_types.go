package model

// RadarStat 雷达图单项
type RadarStat struct {
	Category string `json:"category"`
	Value    int    `json:"value"`
}

// DashboardStatsResponse 字段顺序与既有前端约定一致，不可调整
type DashboardStatsResponse struct {
	RadarData        []RadarStat `json:"radarData"`
	CurrentStreak    int         `json:"currentStreak"`
	CompletedDays    int         `json:"completedDays"`
	TotalDays        int         `json:"totalDays"`
	CompletedItems   int         `json:"completedItems"`
	ContributionData [][]int     `json:"contributionData"`
}

// RawStatsResponse 调试接口返回的原始统计文档，全局桶 userId 为 null
type RawStatsResponse struct {
	UserID *string         `json:"userId"`
	Stats  []DashboardStat `json:"stats"`
}

// SaveKeywordsRequest 关键词统计写入请求
type SaveKeywordsRequest struct {
	UserID   string   `json:"userId"`
	Keywords []string `json:"keywords"`
}
