package model

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// DashboardStat dashboard_stats 集合文档：每个用户一条，全局桶 userId 为 null。
// _id 由数据库生成，读取时 ObjectID 解码为十六进制字符串。
type DashboardStat struct {
	ID        string        `bson:"_id,omitempty" json:"id"`
	UserID    *string       `bson:"userId" json:"userId"`
	Keywords  []KeywordStat `bson:"keywords" json:"keywords"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// KeywordStat 单个关键词计数，category 在所属文档内唯一
type KeywordStat struct {
	Category string `bson:"category" json:"category"`
	Value    int    `bson:"value" json:"value"`
}

// KeywordStatRow SQL 后端的关键词文档，一行对应一个归属，keywords 以 JSON 数组存储。
// Version 用于乐观锁比较交换。
type KeywordStatRow struct {
	ID        uint                             `gorm:"primaryKey;autoIncrement"`
	OwnerKey  string                           `gorm:"size:36;not null;uniqueIndex:idx_keyword_stat_owner"`
	Keywords  datatypes.JSONSlice[KeywordStat] `gorm:"not null"`
	Version   int64                            `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (KeywordStatRow) TableName() string {
	return "keyword_stats"
}

// ToDashboardStat converts the row into the document shape served by the API.
func (r KeywordStatRow) ToDashboardStat() DashboardStat {
	stat := DashboardStat{
		ID:        strconv.FormatUint(uint64(r.ID), 10),
		Keywords:  append([]KeywordStat(nil), r.Keywords...),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.OwnerKey != "" {
		owner := r.OwnerKey
		stat.UserID = &owner
	}
	return stat
}
