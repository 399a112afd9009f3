package database

import (
	"context"
	"log"

	"roadmap_analysis/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	RoadmapCollection       = "roadmaps"
	DashboardStatCollection = "dashboard_stats"
)

// InitMongo 连接 MongoDB 并返回目标数据库
func InitMongo(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	log.Printf("Initializing MongoDB client for database %s", cfg.Database)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	log.Println("MongoDB connection established")
	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes 创建统计所需索引。
// dashboard_stats.userId 唯一索引保证每个归属只有一个文档（包括 userId 为 null 的全局文档），
// 并发首次写入时由重复键错误裁决。
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(DashboardStatCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_user_id"),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(RoadmapCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("idx_user_id"),
	})
	return err
}
