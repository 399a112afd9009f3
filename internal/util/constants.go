package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

const MimeJSON = "application/json"

// 年份参数允许范围
const (
	MinStatsYear = 1970
	MaxStatsYear = 9999
)
