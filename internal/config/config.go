package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Log       LogConfig       `mapstructure:"log"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout_seconds"`
}

type DatabaseConfig struct {
	Enabled   bool
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AnalyticsConfig 统计引擎参数，支持热更新
type AnalyticsConfig struct {
	// 连续天数回溯上限（天），0 表示不限制
	StreakLookbackDays int    `mapstructure:"streak_lookback_days"`
	RadarLimit         int    `mapstructure:"radar_limit"`
	Timezone           string `mapstructure:"timezone"`
	// 关键词存储后端：mongo 或 sql
	KeywordBackend     string        `mapstructure:"keyword_backend"`
	KeywordMaxAttempts int           `mapstructure:"keyword_max_attempts"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl_seconds"`
}

type LogConfig struct {
	File string `mapstructure:"file"`
}

const (
	KeywordBackendMongo = "mongo"
	KeywordBackendSQL   = "sql"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8083")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/jiwon")
	v.SetDefault("mongo.database", "jiwon")
	v.SetDefault("mongo.connect_timeout_seconds", 10)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "exports")
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("analytics.streak_lookback_days", 365)
	v.SetDefault("analytics.radar_limit", 6)
	v.SetDefault("analytics.keyword_backend", KeywordBackendMongo)
	v.SetDefault("analytics.keyword_max_attempts", 8)
	v.SetDefault("analytics.cache_ttl_seconds", 30)
	v.SetDefault("log.file", "logs/analysis.log")
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ANALYSIS")
	v.AutomaticEnv()
	setDefaults(v)

	// Mongo（沿用原部署的变量名）
	v.BindEnv("mongo.uri", "ANALYSIS_MONGO_URI")
	v.BindEnv("mongo.database", "MONGO_DB_NAME")

	// Database
	v.BindEnv("database.enabled", "DATABASE_ENABLED")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Analytics
	v.BindEnv("analytics.keyword_backend", "KEYWORD_BACKEND")
	v.BindEnv("analytics.timezone", "ANALYTICS_TIMEZONE")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Mongo.ConnectTimeout = cfg.Mongo.ConnectTimeout * time.Second
	cfg.Analytics.CacheTTL = cfg.Analytics.CacheTTL * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Analytics.KeywordBackend {
	case KeywordBackendMongo:
	case KeywordBackendSQL:
		if !c.Database.Enabled {
			return fmt.Errorf("keyword backend %q requires database.enabled", c.Analytics.KeywordBackend)
		}
	default:
		return fmt.Errorf("unknown keyword backend %q", c.Analytics.KeywordBackend)
	}

	if c.Analytics.StreakLookbackDays < 0 {
		return fmt.Errorf("analytics.streak_lookback_days must not be negative, got %d", c.Analytics.StreakLookbackDays)
	}
	if c.Analytics.RadarLimit <= 0 {
		return fmt.Errorf("analytics.radar_limit must be positive, got %d", c.Analytics.RadarLimit)
	}
	if c.Analytics.KeywordMaxAttempts <= 0 {
		return fmt.Errorf("analytics.keyword_max_attempts must be positive, got %d", c.Analytics.KeywordMaxAttempts)
	}
	if _, err := c.Analytics.Location(); err != nil {
		return err
	}

	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	return nil
}

// Location 统计使用的时区，未配置时使用服务器本地时区
func (a AnalyticsConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid analytics.timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}
