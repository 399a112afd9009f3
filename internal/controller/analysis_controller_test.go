package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roadmap_analysis/internal/config"
	"roadmap_analysis/internal/middleware"
	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/repository"
	"roadmap_analysis/internal/service"
	"roadmap_analysis/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubRoadmaps struct {
	byUser map[string][]model.RoadmapDocument
}

func (s *stubRoadmaps) FindByUserID(ctx context.Context, userID string) ([]model.RoadmapDocument, error) {
	return s.byUser[userID], nil
}

func (s *stubRoadmaps) FindAll(ctx context.Context) ([]model.RoadmapDocument, error) {
	var all []model.RoadmapDocument
	for _, roadmaps := range s.byUser {
		all = append(all, roadmaps...)
	}
	return all, nil
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	users  map[string]uuid.UUID
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.KeywordStatRow{}, &model.User{}))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	jiwon := uuid.New()
	require.NoError(t, db.Create(&model.User{ID: jiwon.String(), Username: "jiwon"}).Error)

	now := time.Now()
	roadmaps := &stubRoadmaps{byUser: map[string][]model.RoadmapDocument{
		jiwon.String(): {{Items: []model.RoadmapItem{
			{Tasks: []model.RoadmapTask{{IsCompleted: intPtr(1), CompletedAt: &now}, {}}},
			{},
		}}},
	}}

	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: testSecret},
		Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir()},
	}
	analysis := service.NewAnalysisService(
		roadmaps,
		repository.NewSQLKeywordStatRepository(db, 0),
		nil,
		service.NewStorageService(&cfg.Storage),
		service.AnalysisSettings{RadarLimit: service.DefaultRadarLimit, StreakLookbackDays: 365, Location: time.Local},
	)
	identity := service.NewIdentityService(repository.NewUserRepository(db))
	ctrl := NewAnalysisController(analysis, identity)

	r := gin.New()
	r.Use(middleware.ConfigMiddleware(cfg))
	api := r.Group("/api/analysis/stats", middleware.TryAuthMiddleware())
	{
		api.GET("", ctrl.GetDashboardStats)
		api.POST("/keywords", ctrl.SaveKeywords)
		api.GET("/debug", ctrl.GetDashboardStatsDebug)
		api.POST("/debug/export", middleware.AuthMiddleware(), ctrl.ExportDebugStats)
	}

	return &testEnv{router: r, db: db, users: map[string]uuid.UUID{"jiwon": jiwon}}
}

func intPtr(v int) *int { return &v }

func token(t *testing.T, userID, username string) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, username, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, target, tok string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestGetDashboardStatsByUsernameToken(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, "", "jiwon")

	w, _ := env.do(t, http.MethodPost, "/api/analysis/stats/keywords", tok, model.SaveKeywordsRequest{
		Keywords: []string{"Go", " Go ", "", "Docker"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/analysis/stats", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats model.DashboardStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, []model.RadarStat{{Category: "Go", Value: 2}, {Category: "Docker", Value: 1}}, stats.RadarData)
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 1, stats.CompletedDays)
	assert.Equal(t, 2, stats.TotalDays)
	assert.Equal(t, 1, stats.CompletedItems)
}

func TestGetDashboardStatsAnonymousIsGlobal(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/analysis/stats/keywords", "", model.SaveKeywordsRequest{Keywords: []string{"Rust"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/analysis/stats?year=2024", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats model.DashboardStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, []model.RadarStat{{Category: "Rust", Value: 1}}, stats.RadarData)
	assert.Equal(t, 2, stats.TotalDays)
}

func TestGetDashboardStatsInvalidYear(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"/api/analysis/stats?year=abc", "/api/analysis/stats?year=12345"} {
		w, resp := env.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, http.StatusBadRequest, resp.Code, target)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodGet, "/api/analysis/stats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSaveKeywordsBodyUserID(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	w, _ := env.do(t, http.MethodPost, "/api/analysis/stats/keywords", "", model.SaveKeywordsRequest{
		UserID:   owner.String(),
		Keywords: []string{"Kafka"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/analysis/stats/debug", token(t, owner.String(), ""), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var raw model.RawStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &raw))
	require.NotNil(t, raw.UserID)
	assert.Equal(t, owner.String(), *raw.UserID)
	require.Len(t, raw.Stats, 1)
	assert.Equal(t, []model.KeywordStat{{Category: "Kafka", Value: 1}}, raw.Stats[0].Keywords)
}

func TestDebugStatsIgnoresQueryUserID(t *testing.T) {
	env := newTestEnv(t)
	owner := env.users["jiwon"]

	w, _ := env.do(t, http.MethodPost, "/api/analysis/stats/keywords", token(t, owner.String(), "jiwon"), model.SaveKeywordsRequest{
		Keywords: []string{"Secret"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/analysis/stats/debug?userId="+owner.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var raw model.RawStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &raw))
	assert.Nil(t, raw.UserID)
	for _, stat := range raw.Stats {
		assert.NotContains(t, stat.Keywords, model.KeywordStat{Category: "Secret", Value: 1})
	}

	other := uuid.New()
	w, resp = env.do(t, http.MethodGet, "/api/analysis/stats/debug?userId="+owner.String(), token(t, other.String(), ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &raw))
	require.NotNil(t, raw.UserID)
	assert.Equal(t, other.String(), *raw.UserID)
	assert.Empty(t, raw.Stats)
}

func TestSaveKeywordsRejectsMalformedInput(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/analysis/stats/keywords", "", model.SaveKeywordsRequest{
		UserID:   "user-42",
		Keywords: []string{"Go"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/stats/keywords", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var count int64
	require.NoError(t, env.db.Model(&model.KeywordStatRow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebugStatsForTokenUser(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, env.users["jiwon"].String(), "")

	w, _ := env.do(t, http.MethodPost, "/api/analysis/stats/keywords", tok, model.SaveKeywordsRequest{Keywords: []string{"Go"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/analysis/stats/debug", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var raw model.RawStatsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &raw))
	require.NotNil(t, raw.UserID)
	assert.Equal(t, env.users["jiwon"].String(), *raw.UserID)
	require.Len(t, raw.Stats, 1)
	assert.NotEmpty(t, raw.Stats[0].ID)
}

func TestExportDebugStatsRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/analysis/stats/debug/export", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok := token(t, env.users["jiwon"].String(), "jiwon")
	w, resp := env.do(t, http.MethodPost, "/api/analysis/stats/debug/export", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Contains(t, data["url"], env.users["jiwon"].String())
}

func TestStoreOutageIsServiceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, resp := env.do(t, http.MethodPost, "/api/analysis/stats/keywords", "", model.SaveKeywordsRequest{Keywords: []string{"Go"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	w, _ = env.do(t, http.MethodGet, "/api/analysis/stats", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctrl := NewHealthController(nil, newTestDB(t), rdb)
	r := gin.New()
	r.GET("/api/health", ctrl.HealthCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"up"`)
	assert.Contains(t, w.Body.String(), `"database":"up"`)

	mr.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"down"`)
}
