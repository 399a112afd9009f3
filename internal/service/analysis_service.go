package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"roadmap_analysis/internal/activity"
	"roadmap_analysis/internal/config"
	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/repository"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/logger"
	"roadmap_analysis/pkg/monitoring"
	"roadmap_analysis/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRadarLimit 雷达图最多展示的关键词数
const DefaultRadarLimit = 6

// RoadmapSource 路线图只读数据源
type RoadmapSource interface {
	FindByUserID(ctx context.Context, userID string) ([]model.RoadmapDocument, error)
	FindAll(ctx context.Context) ([]model.RoadmapDocument, error)
}

// AnalysisSettings 可热更新的统计参数
type AnalysisSettings struct {
	StreakLookbackDays int
	RadarLimit         int
	CacheTTL           time.Duration
	Location           *time.Location
}

func SettingsFromConfig(cfg config.AnalyticsConfig) (AnalysisSettings, error) {
	loc, err := cfg.Location()
	if err != nil {
		return AnalysisSettings{}, err
	}
	limit := cfg.RadarLimit
	if limit <= 0 {
		limit = DefaultRadarLimit
	}
	return AnalysisSettings{
		StreakLookbackDays: cfg.StreakLookbackDays,
		RadarLimit:         limit,
		CacheTTL:           cfg.CacheTTL,
		Location:           loc,
	}, nil
}

type AnalysisService struct {
	Roadmaps RoadmapSource
	Keywords repository.KeywordStatStore
	// Cache 与 Storage 可为空：未启用 Redis 时不缓存，未配置存储时不支持导出
	Cache   *repository.StatsCache
	Storage *StorageService

	mu       sync.RWMutex
	settings AnalysisSettings
	now      func() time.Time
}

func NewAnalysisService(
	roadmaps RoadmapSource,
	keywords repository.KeywordStatStore,
	cache *repository.StatsCache,
	storage *StorageService,
	settings AnalysisSettings,
) *AnalysisService {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	return &AnalysisService{
		Roadmaps: roadmaps,
		Keywords: keywords,
		Cache:    cache,
		Storage:  storage,
		settings: settings,
		now:      time.Now,
	}
}

func (s *AnalysisService) Settings() AnalysisSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// ApplyConfig 配置热更新回调
func (s *AnalysisService) ApplyConfig(cfg *config.Config) error {
	settings, err := SettingsFromConfig(cfg.Analytics)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	logger.Log.Info("Analytics settings reloaded",
		zap.Int("streak_lookback_days", settings.StreakLookbackDays),
		zap.Int("radar_limit", settings.RadarLimit),
		zap.Duration("cache_ttl", settings.CacheTTL),
		zap.String("timezone", settings.Location.String()))
	return nil
}

// GetDashboardStats 汇总仪表盘统计。year 为 0 时使用当前年份。
// 关键词文档与路线图并发读取，任一失败整个调用失败，不返回部分结果。
func (s *AnalysisService) GetDashboardStats(ctx context.Context, scope model.OwnerScope, year int) (stats *model.DashboardStatsResponse, err error) {
	started := time.Now()
	settings := s.Settings()
	today := activity.DateOf(s.now(), settings.Location)
	if year == 0 {
		year = today.Year
	}
	if year < util.MinStatsYear || year > util.MaxStatsYear {
		return nil, fmt.Errorf("%w: %d", util.ErrInvalidYear, year)
	}

	ctx, span := tracing.StartSpan(ctx, "AnalysisService.GetDashboardStats", scope.String())
	defer func() { tracing.EndSpan(span, err) }()

	field := repository.StatsCacheField(year, today.String())
	if cached := s.cached(ctx, scope, field); cached != nil {
		monitoring.ObserveDashboardStats(scope.IsGlobal(), true, time.Since(started))
		return cached, nil
	}

	gen, cacheable := s.cacheGeneration(ctx, scope, settings)

	var (
		stat     *model.DashboardStat
		roadmaps []model.RoadmapDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stat, err = s.Keywords.FindFirstByScope(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		roadmaps, err = s.findRoadmaps(gctx, scope)
		return err
	})
	if err = g.Wait(); err != nil {
		logger.Log.Error("Failed to load dashboard stats",
			zap.String("scope", scope.String()),
			zap.Int("year", year),
			zap.Error(err))
		return nil, err
	}

	extraction := activity.Extract(roadmaps, settings.Location)
	calc := activity.NewCalculator(settings.StreakLookbackDays)
	result := calc.Calculate(activity.NewDateSet(extraction.CompletedDates()), today, year)

	stats = &model.DashboardStatsResponse{
		RadarData:        TopKeywords(stat, settings.RadarLimit),
		CurrentStreak:    result.CurrentStreak,
		CompletedDays:    result.CompletedDays,
		TotalDays:        extraction.TotalDays,
		CompletedItems:   extraction.CompletedItems,
		ContributionData: result.ContributionData,
	}

	if cacheable {
		cerr := s.Cache.Set(ctx, scope, field, gen, stats, settings.CacheTTL)
		switch {
		case errors.Is(cerr, repository.ErrStaleStats):
			logger.Log.Debug("Skip caching stale dashboard stats", zap.String("scope", scope.String()))
		case cerr != nil:
			logger.Log.Warn("Failed to cache dashboard stats", zap.String("scope", scope.String()), zap.Error(cerr))
		}
	}

	monitoring.ObserveDashboardStats(scope.IsGlobal(), false, time.Since(started))
	return stats, nil
}

func (s *AnalysisService) cached(ctx context.Context, scope model.OwnerScope, field string) *model.DashboardStatsResponse {
	if s.Cache == nil {
		return nil
	}
	stats, err := s.Cache.Get(ctx, scope, field)
	if err != nil {
		logger.Log.Warn("Failed to read dashboard stats cache", zap.String("scope", scope.String()), zap.Error(err))
		return nil
	}
	return stats
}

// cacheGeneration 读库前记录作废代数，读取失败时本次结果不写缓存
func (s *AnalysisService) cacheGeneration(ctx context.Context, scope model.OwnerScope, settings AnalysisSettings) (int64, bool) {
	if s.Cache == nil || settings.CacheTTL <= 0 {
		return 0, false
	}
	gen, err := s.Cache.Generation(ctx, scope)
	if err != nil {
		logger.Log.Warn("Failed to read dashboard stats cache generation", zap.String("scope", scope.String()), zap.Error(err))
		return 0, false
	}
	return gen, true
}

// findRoadmaps 全局桶统计所有路线图
func (s *AnalysisService) findRoadmaps(ctx context.Context, scope model.OwnerScope) ([]model.RoadmapDocument, error) {
	if scope.IsGlobal() {
		return s.Roadmaps.FindAll(ctx)
	}
	return s.Roadmaps.FindByUserID(ctx, scope.Key())
}

// TopKeywords 按计数降序取前 limit 个关键词，计数相同保持数组原顺序
func TopKeywords(stat *model.DashboardStat, limit int) []model.RadarStat {
	radar := []model.RadarStat{}
	if stat == nil {
		return radar
	}
	for _, kw := range stat.Keywords {
		radar = append(radar, model.RadarStat{Category: kw.Category, Value: kw.Value})
	}
	sort.SliceStable(radar, func(i, j int) bool {
		return radar[i].Value > radar[j].Value
	})
	if limit > 0 && len(radar) > limit {
		radar = radar[:limit]
	}
	return radar
}

// SaveKeywords 每个非空关键词（去除首尾空白）自增一次，不去重
func (s *AnalysisService) SaveKeywords(ctx context.Context, scope model.OwnerScope, keywords []string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "AnalysisService.SaveKeywords", scope.String())
	defer func() { tracing.EndSpan(span, err) }()

	saved := 0
	defer func() {
		if saved > 0 {
			s.invalidate(ctx, scope)
		}
	}()

	for _, raw := range keywords {
		category := strings.TrimSpace(raw)
		if category == "" {
			continue
		}
		if err = s.Keywords.Increment(ctx, scope, category); err != nil {
			logger.Log.Error("Failed to save keyword",
				zap.String("scope", scope.String()),
				zap.String("category", category),
				zap.Int("saved", saved),
				zap.Error(err))
			return err
		}
		saved++
	}

	logger.Log.Debug("Keywords saved",
		zap.String("scope", scope.String()),
		zap.String("backend", s.Keywords.Backend()),
		zap.Int("count", saved))
	return nil
}

func (s *AnalysisService) invalidate(ctx context.Context, scope model.OwnerScope) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, scope); err != nil {
		logger.Log.Warn("Failed to invalidate dashboard stats cache", zap.String("scope", scope.String()), zap.Error(err))
	}
}

// ListRawStats 返回该归属下的全部原始关键词文档
func (s *AnalysisService) ListRawStats(ctx context.Context, scope model.OwnerScope) (*model.RawStatsResponse, error) {
	stats, err := s.Keywords.FindAllByScope(ctx, scope)
	if err != nil {
		logger.Log.Error("Failed to list raw stats", zap.String("scope", scope.String()), zap.Error(err))
		return nil, err
	}

	resp := &model.RawStatsResponse{Stats: stats}
	if !scope.IsGlobal() {
		key := scope.Key()
		resp.UserID = &key
	}
	return resp, nil
}

// ExportRawStats 将原始统计快照写入对象存储，返回访问地址
func (s *AnalysisService) ExportRawStats(ctx context.Context, scope model.OwnerScope) (string, error) {
	if s.Storage == nil {
		return "", fmt.Errorf("export storage is not configured")
	}

	raw, err := s.ListRawStats(ctx, scope)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", err
	}

	filename := path.Join("debug", scope.String(), s.now().UTC().Format("20060102T150405.000000000Z")+".json")
	url, err := s.Storage.Upload(ctx, filename, bytes.NewReader(data), int64(len(data)), util.MimeJSON)
	if err != nil {
		logger.Log.Error("Failed to export raw stats", zap.String("scope", scope.String()), zap.Error(err))
		return "", err
	}

	logger.Log.Info("Raw stats exported", zap.String("scope", scope.String()), zap.String("url", url))
	return url, nil
}
