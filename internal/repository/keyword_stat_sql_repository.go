package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/logger"
	"roadmap_analysis/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SQLKeywordStatRepository 关系库后端：一行一个归属，关键词数组存 JSON 列，
// 通过 version 列做比较交换实现与文档库相同的自增语义
type SQLKeywordStatRepository struct {
	DB          *gorm.DB
	MaxAttempts int
	now         func() time.Time
}

func NewSQLKeywordStatRepository(db *gorm.DB, maxAttempts int) *SQLKeywordStatRepository {
	if maxAttempts <= 0 {
		maxAttempts = DefaultKeywordMaxAttempts
	}
	return &SQLKeywordStatRepository{DB: db, MaxAttempts: maxAttempts, now: time.Now}
}

func (r *SQLKeywordStatRepository) Backend() string {
	return "sql"
}

func (r *SQLKeywordStatRepository) FindFirstByScope(ctx context.Context, scope model.OwnerScope) (*model.DashboardStat, error) {
	var row model.KeywordStatRow
	err := r.DB.WithContext(ctx).Where("owner_key = ?", scope.Key()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, util.StoreError("find keyword stats", err)
	}
	stat := row.ToDashboardStat()
	return &stat, nil
}

func (r *SQLKeywordStatRepository) FindAllByScope(ctx context.Context, scope model.OwnerScope) ([]model.DashboardStat, error) {
	var rows []model.KeywordStatRow
	if err := r.DB.WithContext(ctx).Where("owner_key = ?", scope.Key()).Order("id").Find(&rows).Error; err != nil {
		return nil, util.StoreError("find keyword stats", err)
	}
	stats := make([]model.DashboardStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, row.ToDashboardStat())
	}
	return stats, nil
}

func (r *SQLKeywordStatRepository) Increment(ctx context.Context, scope model.OwnerScope, category string) error {
	key := scope.Key()
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		if attempt > 0 {
			monitoring.ObserveKeywordIncrement(r.Backend(), monitoring.PathRetried)
		}
		now := r.now().UTC()

		var row model.KeywordStatRow
		err := r.DB.WithContext(ctx).Where("owner_key = ?", key).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = r.create(ctx, key, category, now)
			if err == nil {
				monitoring.ObserveKeywordIncrement(r.Backend(), monitoring.PathCreated)
				return nil
			}
			if isDuplicateKey(err) {
				continue
			}
			return util.StoreError("create keyword stats", err)
		}
		if err != nil {
			return util.StoreError("find keyword stats", err)
		}

		keywords, path := bumpKeyword(row.Keywords, category)
		res := r.DB.WithContext(ctx).Model(&model.KeywordStatRow{}).
			Where("id = ? AND version = ?", row.ID, row.Version).
			Updates(map[string]interface{}{
				"keywords":   datatypes.JSONSlice[model.KeywordStat](keywords),
				"version":    row.Version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return util.StoreError("update keyword stats", res.Error)
		}
		if res.RowsAffected == 1 {
			monitoring.ObserveKeywordIncrement(r.Backend(), path)
			return nil
		}
		logger.Log.Debug("keyword row version changed, retrying",
			zap.String("scope", scope.String()),
			zap.String("category", category),
			zap.Int64("version", row.Version),
			zap.Int("attempt", attempt+1))
	}

	logger.Log.Warn("keyword increment exhausted attempts",
		zap.String("scope", scope.String()),
		zap.String("category", category),
		zap.Int("attempts", r.MaxAttempts))
	return fmt.Errorf("%w: %s/%s after %d attempts", util.ErrKeywordConflict, scope, category, r.MaxAttempts)
}

func (r *SQLKeywordStatRepository) create(ctx context.Context, key, category string, now time.Time) error {
	row := model.KeywordStatRow{
		OwnerKey:  key,
		Keywords:  datatypes.JSONSlice[model.KeywordStat]{{Category: category, Value: 1}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.DB.WithContext(ctx).Create(&row).Error
}

// bumpKeyword 返回自增后的新数组副本，以及对应的协议路径
func bumpKeyword(current []model.KeywordStat, category string) ([]model.KeywordStat, string) {
	keywords := make([]model.KeywordStat, len(current), len(current)+1)
	copy(keywords, current)
	for i := range keywords {
		if keywords[i].Category == category {
			keywords[i].Value++
			return keywords, monitoring.PathInPlace
		}
	}
	return append(keywords, model.KeywordStat{Category: category, Value: 1}), monitoring.PathAppended
}

// isDuplicateKey 未注册错误翻译的方言会直接返回驱动错误
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
