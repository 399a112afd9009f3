package model

import "time"

// User 用户服务维护的 users 表，这里只读 id 与 username 用于身份解析
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}
