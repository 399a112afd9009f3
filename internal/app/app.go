package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"roadmap_analysis/internal/config"
	"roadmap_analysis/internal/controller"
	"roadmap_analysis/internal/repository"
	"roadmap_analysis/internal/service"
	"roadmap_analysis/pkg/configwatcher"
	"roadmap_analysis/pkg/database"
	"roadmap_analysis/pkg/logger"
	"roadmap_analysis/pkg/monitoring"
	"roadmap_analysis/pkg/security"
	"roadmap_analysis/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ConfigDir = "configs"

type App struct {
	Config  *config.Config
	Router  *gin.Engine
	Mongo   *mongo.Client
	MongoDB *mongo.Database
	// DB 与 Redis 未启用时为 nil
	DB    *gorm.DB
	Redis *redis.Client

	services        *services
	limiter         *security.RateLimiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []configwatcher.Reloader
}

type repositories struct {
	roadmap  *repository.RoadmapRepository
	keywords repository.KeywordStatStore
	user     *repository.UserRepository
	cache    *repository.StatsCache
}

type services struct {
	storage  *service.StorageService
	identity *service.IdentityService
	analysis *service.AnalysisService
}

type controllers struct {
	analysis *controller.AnalysisController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback configwatcher.Reloader) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(cfg *config.Config) *repositories {
	repos := &repositories{
		roadmap: repository.NewRoadmapRepository(a.MongoDB),
	}

	switch cfg.Analytics.KeywordBackend {
	case config.KeywordBackendSQL:
		repos.keywords = repository.NewSQLKeywordStatRepository(a.DB, cfg.Analytics.KeywordMaxAttempts)
	default:
		repos.keywords = repository.NewMongoKeywordStatRepository(a.MongoDB, cfg.Analytics.KeywordMaxAttempts)
	}

	if a.DB != nil {
		repos.user = repository.NewUserRepository(a.DB)
	}
	if a.Redis != nil {
		repos.cache = repository.NewStatsCache(a.Redis)
	}
	return repos
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	settings, err := service.SettingsFromConfig(cfg.Analytics)
	if err != nil {
		logger.Log.Fatal("Invalid analytics settings", zap.Error(err))
	}

	s := &services{
		storage: service.NewStorageService(&cfg.Storage),
	}
	// 接口类型的 nil 需单独处理，避免得到非空接口
	if repos.user != nil {
		s.identity = service.NewIdentityService(repos.user)
	} else {
		s.identity = service.NewIdentityService(nil)
	}
	s.analysis = service.NewAnalysisService(repos.roadmap, repos.keywords, repos.cache, s.storage, settings)

	a.RegisterConfigCallback(s.analysis.ApplyConfig)
	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		analysis: controller.NewAnalysisController(s.analysis, s.identity),
		health:   controller.NewHealthController(a.Mongo, a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// migrate 创建 Mongo 索引与关系库表。release 模式下仅在显式指定时执行
func (a *App) migrate(ctx context.Context) error {
	if a.DB != nil {
		if err := database.Migrate(a.DB); err != nil {
			return err
		}
		logger.Log.Info("Database migration completed")
	}
	return nil
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	ctx := context.Background()
	mongoClient, mongoDB, err := database.InitMongo(ctx, &cfg.Mongo)
	if err != nil {
		logger.Log.Fatal("Failed to initialize mongo", zap.Error(err))
	}

	app := &App{
		Config:  cfg,
		Mongo:   mongoClient,
		MongoDB: mongoDB,
		limiter: security.NewRateLimiter(cfg.RateLimit),
	}

	// 唯一索引是关键词并发写入的前提，不受迁移开关控制
	if err := database.EnsureIndexes(ctx, mongoDB); err != nil {
		logger.Log.Fatal("Failed to ensure mongo indexes", zap.Error(err))
	}
	logger.Log.Info("MongoDB indexes ensured")

	if cfg.Database.Enabled {
		db, err := database.InitDB(&cfg.Database, false)
		if err != nil {
			logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		}
		app.DB = db
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		app.Redis = rdb
	}

	if cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode {
		if err := app.migrate(ctx); err != nil {
			logger.Log.Fatal("Failed to migrate", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(cfg)
	app.services = app.initServices(repos, cfg)
	controllers := app.initControllers(app.services)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.limiter.Run(ctx)
	a.watchConfig(ctx)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(shutdownCtx)
	logger.Log.Info("Server exiting")
}

func (a *App) watchConfig(ctx context.Context) {
	watcher, err := configwatcher.New(filepath.Join(ConfigDir, "config.yaml"))
	if err != nil {
		logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		return
	}
	for _, cb := range a.configCallbacks {
		watcher.OnReload(cb)
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

// Close 释放外部连接
func (a *App) Close(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Log.Error("Failed to close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil {
			logger.Log.Error("Failed to disconnect mongo", zap.Error(err))
		}
	}
	_ = logger.Log.Sync()
}
