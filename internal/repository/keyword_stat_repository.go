package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/database"
	"roadmap_analysis/pkg/logger"
	"roadmap_analysis/pkg/monitoring"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DefaultKeywordMaxAttempts 单次自增在竞争下的最大尝试次数
const DefaultKeywordMaxAttempts = 8

// KeywordStatStore 关键词计数存储。
// Increment 对同一 (scope, category) 的并发调用不会丢失更新，也不会产生重复的数组元素。
type KeywordStatStore interface {
	// FindFirstByScope 返回该归属的关键词文档，不存在时返回 nil, nil
	FindFirstByScope(ctx context.Context, scope model.OwnerScope) (*model.DashboardStat, error)
	FindAllByScope(ctx context.Context, scope model.OwnerScope) ([]model.DashboardStat, error)
	Increment(ctx context.Context, scope model.OwnerScope, category string) error
	Backend() string
}

// keywordCollection *mongo.Collection 中自增协议用到的方法
type keywordCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type MongoKeywordStatRepository struct {
	Collection  keywordCollection
	MaxAttempts int
	now         func() time.Time
}

func NewMongoKeywordStatRepository(db *mongo.Database, maxAttempts int) *MongoKeywordStatRepository {
	return newMongoKeywordStatRepository(db.Collection(database.DashboardStatCollection), maxAttempts)
}

func newMongoKeywordStatRepository(coll keywordCollection, maxAttempts int) *MongoKeywordStatRepository {
	if maxAttempts <= 0 {
		maxAttempts = DefaultKeywordMaxAttempts
	}
	return &MongoKeywordStatRepository{Collection: coll, MaxAttempts: maxAttempts, now: time.Now}
}

func (r *MongoKeywordStatRepository) Backend() string {
	return "mongo"
}

// ownerFilter 全局桶匹配 userId 为 null 的文档
func ownerFilter(scope model.OwnerScope) bson.M {
	if scope.IsGlobal() {
		return bson.M{"userId": nil}
	}
	return bson.M{"userId": scope.Key()}
}

func ownerValue(scope model.OwnerScope) *string {
	if scope.IsGlobal() {
		return nil
	}
	key := scope.Key()
	return &key
}

func (r *MongoKeywordStatRepository) FindFirstByScope(ctx context.Context, scope model.OwnerScope) (*model.DashboardStat, error) {
	var stat model.DashboardStat
	err := r.Collection.FindOne(ctx, ownerFilter(scope)).Decode(&stat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, util.StoreError("find keyword stats", err)
	}
	return &stat, nil
}

func (r *MongoKeywordStatRepository) FindAllByScope(ctx context.Context, scope model.OwnerScope) ([]model.DashboardStat, error) {
	cursor, err := r.Collection.Find(ctx, ownerFilter(scope))
	if err != nil {
		return nil, util.StoreError("find keyword stats", err)
	}
	defer cursor.Close(ctx)

	stats := []model.DashboardStat{}
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, util.StoreError("decode keyword stats", err)
	}
	return stats, nil
}

// Increment 先尝试原地自增；未命中时追加元素或创建文档。
// 追加带 category 不存在的守卫条件，创建依赖 userId 唯一索引，两者失败都回到原地自增重试。
func (r *MongoKeywordStatRepository) Increment(ctx context.Context, scope model.OwnerScope, category string) error {
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		if attempt > 0 {
			monitoring.ObserveKeywordIncrement(r.Backend(), monitoring.PathRetried)
		}
		now := r.now().UTC()

		matched, err := r.incrementInPlace(ctx, scope, category, now)
		if err != nil {
			return util.StoreError("increment keyword", err)
		}
		if matched {
			monitoring.ObserveKeywordIncrement(r.Backend(), monitoring.PathInPlace)
			return nil
		}

		count, err := r.Collection.CountDocuments(ctx, ownerFilter(scope))
		if err != nil {
			return util.StoreError("count keyword stats", err)
		}

		if count > 0 {
			appended, err := r.appendKeyword(ctx, scope, category, now)
			if err != nil {
				return util.StoreError("append keyword", err)
			}
			if appended {
				monitoring.ObserveKeywordIncrement(r.Backend(), monitoring.PathAppended)
				return nil
			}
			// 其他写入者已追加同名关键词
			logger.Log.Debug("keyword append lost race, retrying",
				zap.String("scope", scope.String()),
				zap.String("category", category),
				zap.Int("attempt", attempt+1))
			continue
		}

		err = r.createDocument(ctx, scope, category, now)
		if err == nil {
			monitoring.ObserveKeywordIncrement(r.Backend(), monitoring.PathCreated)
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return util.StoreError("create keyword stats", err)
		}
		logger.Log.Debug("keyword document create lost race, retrying",
			zap.String("scope", scope.String()),
			zap.String("category", category),
			zap.Int("attempt", attempt+1))
	}

	logger.Log.Warn("keyword increment exhausted attempts",
		zap.String("scope", scope.String()),
		zap.String("category", category),
		zap.Int("attempts", r.MaxAttempts))
	return fmt.Errorf("%w: %s/%s after %d attempts", util.ErrKeywordConflict, scope, category, r.MaxAttempts)
}

func (r *MongoKeywordStatRepository) incrementInPlace(ctx context.Context, scope model.OwnerScope, category string, now time.Time) (bool, error) {
	filter := ownerFilter(scope)
	filter["keywords.category"] = category

	update := bson.M{
		"$inc": bson.M{"keywords.$[elem].value": 1},
		"$set": bson.M{"updatedAt": now},
	}
	// upsert 与数组过滤器路径不能同时使用，缺失的情况由后续步骤处理
	opts := options.Update().
		SetArrayFilters(options.ArrayFilters{Filters: []interface{}{bson.M{"elem.category": category}}}).
		SetUpsert(false)

	res, err := r.Collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoKeywordStatRepository) appendKeyword(ctx context.Context, scope model.OwnerScope, category string, now time.Time) (bool, error) {
	filter := ownerFilter(scope)
	filter["keywords.category"] = bson.M{"$ne": category}

	update := bson.M{
		"$push": bson.M{"keywords": model.KeywordStat{Category: category, Value: 1}},
		"$set":  bson.M{"updatedAt": now},
	}

	res, err := r.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoKeywordStatRepository) createDocument(ctx context.Context, scope model.OwnerScope, category string, now time.Time) error {
	stat := model.DashboardStat{
		UserID:    ownerValue(scope),
		Keywords:  []model.KeywordStat{{Category: category, Value: 1}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.Collection.InsertOne(ctx, stat)
	return err
}
