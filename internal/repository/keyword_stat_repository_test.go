package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/monitoring"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeKeywordCollection 按自增协议产生的过滤条件模拟单文档原子更新
type fakeKeywordCollection struct {
	mu   sync.Mutex
	docs []*model.DashboardStat

	// 在持锁状态下执行，用于模拟其他写入者抢先完成
	beforeInsert func(f *fakeKeywordCollection)
	beforeAppend func(f *fakeKeywordCollection)

	alwaysDuplicate bool
	err             error
}

func (f *fakeKeywordCollection) owner(filter interface{}) *model.DashboardStat {
	want := filter.(bson.M)["userId"]
	for _, doc := range f.docs {
		if want == nil && doc.UserID == nil {
			return doc
		}
		if s, ok := want.(string); ok && doc.UserID != nil && *doc.UserID == s {
			return doc
		}
	}
	return nil
}

func indexOf(doc *model.DashboardStat, category string) int {
	for i, kw := range doc.Keywords {
		if kw.Category == category {
			return i
		}
	}
	return -1
}

func (f *fakeKeywordCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	fm, um := filter.(bson.M), update.(bson.M)
	set := um["$set"].(bson.M)

	if _, ok := um["$inc"]; ok {
		category := fm["keywords.category"].(string)
		doc := f.owner(filter)
		if doc == nil || indexOf(doc, category) < 0 {
			return &mongo.UpdateResult{}, nil
		}
		doc.Keywords[indexOf(doc, category)].Value++
		doc.UpdatedAt = set["updatedAt"].(time.Time)
		return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}

	if f.beforeAppend != nil {
		f.beforeAppend(f)
		f.beforeAppend = nil
	}
	category := fm["keywords.category"].(bson.M)["$ne"].(string)
	doc := f.owner(filter)
	if doc == nil || indexOf(doc, category) >= 0 {
		return &mongo.UpdateResult{}, nil
	}
	doc.Keywords = append(doc.Keywords, um["$push"].(bson.M)["keywords"].(model.KeywordStat))
	doc.UpdatedAt = set["updatedAt"].(time.Time)
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (f *fakeKeywordCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.owner(filter) != nil {
		return 1, nil
	}
	return 0, nil
}

func duplicateKeyError() error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
}

func (f *fakeKeywordCollection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.alwaysDuplicate {
		return nil, duplicateKeyError()
	}
	if f.beforeInsert != nil {
		f.beforeInsert(f)
		f.beforeInsert = nil
	}

	stat := document.(model.DashboardStat)
	filter := bson.M{"userId": nil}
	if stat.UserID != nil {
		filter["userId"] = *stat.UserID
	}
	if f.owner(filter) != nil {
		return nil, duplicateKeyError()
	}
	stat.ID = uuid.NewString()
	f.docs = append(f.docs, &stat)
	return &mongo.InsertOneResult{InsertedID: stat.ID}, nil
}

func (f *fakeKeywordCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.err, nil)
	}
	doc := f.owner(filter)
	if doc == nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(*doc, nil, nil)
}

func (f *fakeKeywordCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var docs []interface{}
	if doc := f.owner(filter); doc != nil {
		docs = append(docs, *doc)
	}
	return mongo.NewCursorFromDocuments(docs, nil, nil)
}

func keywordsOf(t *testing.T, repo *MongoKeywordStatRepository, scope model.OwnerScope) []model.KeywordStat {
	t.Helper()
	stat, err := repo.FindFirstByScope(context.Background(), scope)
	require.NoError(t, err)
	require.NotNil(t, stat)
	return stat.Keywords
}

func pathCount(path string) float64 {
	return testutil.ToFloat64(monitoring.KeywordIncrements.WithLabelValues("mongo", path))
}

func TestMongoIncrementCreatesThenAppends(t *testing.T) {
	ctx := context.Background()
	coll := &fakeKeywordCollection{}
	repo := newMongoKeywordStatRepository(coll, 0)
	scope := model.UserScope(uuid.New())

	require.NoError(t, repo.Increment(ctx, scope, "Go"))
	require.NoError(t, repo.Increment(ctx, scope, "Docker"))
	require.NoError(t, repo.Increment(ctx, scope, "Go"))

	assert.Len(t, coll.docs, 1)
	assert.Equal(t, []model.KeywordStat{
		{Category: "Go", Value: 2},
		{Category: "Docker", Value: 1},
	}, keywordsOf(t, repo, scope))

	stat, err := repo.FindFirstByScope(ctx, scope)
	require.NoError(t, err)
	require.NotNil(t, stat.UserID)
	assert.Equal(t, scope.Key(), *stat.UserID)
	assert.NotEmpty(t, stat.ID)
}

func TestMongoIncrementGlobalScopeUsesNullOwner(t *testing.T) {
	coll := &fakeKeywordCollection{}
	repo := newMongoKeywordStatRepository(coll, 0)

	require.NoError(t, repo.Increment(context.Background(), model.GlobalScope(), "Rust"))
	require.NoError(t, repo.Increment(context.Background(), model.UserScope(uuid.New()), "Rust"))

	require.Len(t, coll.docs, 2)
	stat, err := repo.FindFirstByScope(context.Background(), model.GlobalScope())
	require.NoError(t, err)
	assert.Nil(t, stat.UserID)
	assert.Equal(t, []model.KeywordStat{{Category: "Rust", Value: 1}}, stat.Keywords)
}

func TestMongoIncrementSetsTimestamps(t *testing.T) {
	coll := &fakeKeywordCollection{}
	repo := newMongoKeywordStatRepository(coll, 0)
	scope := model.UserScope(uuid.New())

	first := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return first }
	require.NoError(t, repo.Increment(context.Background(), scope, "Go"))

	second := first.Add(time.Hour)
	repo.now = func() time.Time { return second }
	require.NoError(t, repo.Increment(context.Background(), scope, "Go"))

	assert.True(t, coll.docs[0].CreatedAt.Equal(first))
	assert.True(t, coll.docs[0].UpdatedAt.Equal(second))
}

func TestMongoIncrementCreateRaceRetriesInPlace(t *testing.T) {
	scope := model.UserScope(uuid.New())
	owner := scope.Key()
	coll := &fakeKeywordCollection{
		beforeInsert: func(f *fakeKeywordCollection) {
			f.docs = append(f.docs, &model.DashboardStat{
				UserID:   &owner,
				Keywords: []model.KeywordStat{{Category: "Go", Value: 1}},
			})
		},
	}
	repo := newMongoKeywordStatRepository(coll, 0)
	retried := pathCount(monitoring.PathRetried)
	inPlace := pathCount(monitoring.PathInPlace)

	require.NoError(t, repo.Increment(context.Background(), scope, "Go"))

	assert.Len(t, coll.docs, 1)
	assert.Equal(t, []model.KeywordStat{{Category: "Go", Value: 2}}, keywordsOf(t, repo, scope))
	assert.Equal(t, retried+1, pathCount(monitoring.PathRetried))
	assert.Equal(t, inPlace+1, pathCount(monitoring.PathInPlace))
}

func TestMongoIncrementAppendRaceRetriesInPlace(t *testing.T) {
	scope := model.UserScope(uuid.New())
	owner := scope.Key()
	coll := &fakeKeywordCollection{
		docs: []*model.DashboardStat{{
			UserID:   &owner,
			Keywords: []model.KeywordStat{{Category: "Go", Value: 4}},
		}},
		beforeAppend: func(f *fakeKeywordCollection) {
			f.docs[0].Keywords = append(f.docs[0].Keywords, model.KeywordStat{Category: "Rust", Value: 1})
		},
	}
	repo := newMongoKeywordStatRepository(coll, 0)

	require.NoError(t, repo.Increment(context.Background(), scope, "Rust"))

	assert.Equal(t, []model.KeywordStat{
		{Category: "Go", Value: 4},
		{Category: "Rust", Value: 2},
	}, keywordsOf(t, repo, scope))
}

func TestMongoIncrementExhaustsAttempts(t *testing.T) {
	coll := &fakeKeywordCollection{alwaysDuplicate: true}
	repo := newMongoKeywordStatRepository(coll, 3)

	err := repo.Increment(context.Background(), model.GlobalScope(), "Go")
	assert.ErrorIs(t, err, util.ErrKeywordConflict)
	assert.NotErrorIs(t, err, util.ErrStoreUnavailable)
}

func TestMongoStoreErrorsAreWrapped(t *testing.T) {
	driverErr := errors.New("connection refused")
	coll := &fakeKeywordCollection{err: driverErr}
	repo := newMongoKeywordStatRepository(coll, 0)
	scope := model.UserScope(uuid.New())

	err := repo.Increment(context.Background(), scope, "Go")
	assert.ErrorIs(t, err, util.ErrStoreUnavailable)
	assert.ErrorIs(t, err, driverErr)

	_, err = repo.FindFirstByScope(context.Background(), scope)
	assert.ErrorIs(t, err, util.ErrStoreUnavailable)

	_, err = repo.FindAllByScope(context.Background(), scope)
	assert.ErrorIs(t, err, util.ErrStoreUnavailable)
}

func TestMongoFindMissingScope(t *testing.T) {
	repo := newMongoKeywordStatRepository(&fakeKeywordCollection{}, 0)

	stat, err := repo.FindFirstByScope(context.Background(), model.UserScope(uuid.New()))
	require.NoError(t, err)
	assert.Nil(t, stat)

	stats, err := repo.FindAllByScope(context.Background(), model.GlobalScope())
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.NotNil(t, stats)
}

func TestMongoConcurrentIncrements(t *testing.T) {
	coll := &fakeKeywordCollection{}
	repo := newMongoKeywordStatRepository(coll, 1000)
	scope := model.UserScope(uuid.New())

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Increment(context.Background(), scope, "Go"))
		}()
	}
	wg.Wait()

	assert.Len(t, coll.docs, 1)
	assert.Equal(t, []model.KeywordStat{{Category: "Go", Value: writers}}, keywordsOf(t, repo, scope))
}
