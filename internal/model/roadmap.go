package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RoadmapDocument roadmaps 集合中的一条学习路线图，由路线图服务写入，本服务只读
type RoadmapDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    *string            `bson:"user_id,omitempty" json:"userId,omitempty"`
	SessionID string             `bson:"session_id,omitempty" json:"sessionId,omitempty"`
	Name      string             `bson:"name,omitempty" json:"name"`
	Items     []RoadmapItem      `bson:"items,omitempty" json:"items"`
	CreatedAt *time.Time         `bson:"created_at,omitempty" json:"createdAt,omitempty"`
	UpdatedAt *time.Time         `bson:"updated_at,omitempty" json:"updatedAt,omitempty"`
}

// RoadmapItem 路线图中的一天。旧数据直接在条目上记录完成状态，新数据使用 tasks 数组
type RoadmapItem struct {
	Day         *int          `bson:"day,omitempty" json:"day,omitempty"`
	Content     string        `bson:"content,omitempty" json:"content"`
	Time        string        `bson:"time,omitempty" json:"time,omitempty"`
	Tasks       []RoadmapTask `bson:"tasks,omitempty" json:"tasks,omitempty"`
	IsCompleted *int          `bson:"is_completed,omitempty" json:"isCompleted,omitempty"`
	CompletedAt *time.Time    `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	CreatedAt   *time.Time    `bson:"created_at,omitempty" json:"createdAt,omitempty"`
}

// RoadmapTask 新结构中的单个任务
type RoadmapTask struct {
	Rank        *int       `bson:"rank,omitempty" json:"rank,omitempty"`
	Content     string     `bson:"content,omitempty" json:"content"`
	Time        string     `bson:"time,omitempty" json:"time,omitempty"`
	IsCompleted *int       `bson:"is_completed,omitempty" json:"isCompleted,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	Details     string     `bson:"details,omitempty" json:"details,omitempty"`
}

// completedFlag 完成标记以整数存储，1 表示已完成
const completedFlag = 1

func (i RoadmapItem) HasTasks() bool {
	return len(i.Tasks) > 0
}

func (i RoadmapItem) Done() bool {
	return i.IsCompleted != nil && *i.IsCompleted == completedFlag
}

func (t RoadmapTask) Done() bool {
	return t.IsCompleted != nil && *t.IsCompleted == completedFlag
}
