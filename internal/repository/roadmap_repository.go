package repository

import (
	"context"

	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// RoadmapRepository 路线图只读数据源
type RoadmapRepository struct {
	Collection *mongo.Collection
}

func NewRoadmapRepository(db *mongo.Database) *RoadmapRepository {
	return &RoadmapRepository{Collection: db.Collection(database.RoadmapCollection)}
}

func (r *RoadmapRepository) FindByUserID(ctx context.Context, userID string) ([]model.RoadmapDocument, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

func (r *RoadmapRepository) FindAll(ctx context.Context) ([]model.RoadmapDocument, error) {
	return r.find(ctx, bson.M{})
}

func (r *RoadmapRepository) find(ctx context.Context, filter bson.M) ([]model.RoadmapDocument, error) {
	cursor, err := r.Collection.Find(ctx, filter)
	if err != nil {
		return nil, util.StoreError("find roadmaps", err)
	}
	defer cursor.Close(ctx)

	var roadmaps []model.RoadmapDocument
	if err := cursor.All(ctx, &roadmaps); err != nil {
		return nil, util.StoreError("decode roadmaps", err)
	}
	return roadmaps, nil
}
