package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Remote    RemoteConfig
	Sync      SyncConfig
	Evidence  EvidenceConfig
	Preflight PreflightConfig
	Exports   ExportsConfig
	CORS      CORSConfig
	Log       LogConfig
}

// DatabaseConfig points at the on-device SQLite store.
type DatabaseConfig struct {
	Path         string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// RemoteConfig describes the upstream mutation API consumed by the sync engine.
type RemoteConfig struct {
	BaseURL           string
	Timeout           time.Duration
	DeviceID          string
	DeviceTokenSecret string
	DeviceTokenTTL    time.Duration
}

// SyncConfig governs queue draining and retry behaviour.
type SyncConfig struct {
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	AutoInterval   time.Duration
	StatusCacheTTL time.Duration
	CoalesceWrites bool
}

// EvidenceConfig bounds media capture.
type EvidenceConfig struct {
	MaxBlobBytes         int64
	MaxRecordingDuration time.Duration
	RecordingWarning     time.Duration
	AllowedMIMEs         []string
	PruneSyncedBlobs     bool
}

// PreflightConfig tunes the capability checks run before fieldwork starts.
type PreflightConfig struct {
	MinFreeBytes  int64
	WarnFreeBytes int64
}

// ExportsConfig configures asynchronous fieldwork report generation.
type ExportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Path:         v.GetString("DB_PATH"),
		BusyTimeout:  parseDuration(v.GetString("DB_BUSY_TIMEOUT"), 5*time.Second),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Remote = RemoteConfig{
		BaseURL:           v.GetString("REMOTE_BASE_URL"),
		Timeout:           parseDuration(v.GetString("REMOTE_TIMEOUT"), 30*time.Second),
		DeviceID:          v.GetString("REMOTE_DEVICE_ID"),
		DeviceTokenSecret: v.GetString("REMOTE_DEVICE_TOKEN_SECRET"),
		DeviceTokenTTL:    parseDuration(v.GetString("REMOTE_DEVICE_TOKEN_TTL"), time.Hour),
	}

	cfg.Sync = SyncConfig{
		MaxRetries:     v.GetInt("SYNC_MAX_RETRIES"),
		BackoffBase:    parseDuration(v.GetString("SYNC_BACKOFF_BASE"), 2*time.Second),
		BackoffMax:     parseDuration(v.GetString("SYNC_BACKOFF_MAX"), 5*time.Minute),
		AutoInterval:   parseDuration(v.GetString("SYNC_AUTO_INTERVAL"), 0),
		StatusCacheTTL: parseDuration(v.GetString("SYNC_STATUS_CACHE_TTL"), 5*time.Second),
		CoalesceWrites: v.GetBool("SYNC_COALESCE_WRITES"),
	}

	maxBlob := v.GetInt64("EVIDENCE_MAX_BLOB_BYTES")
	if maxBlob <= 0 {
		maxBlob = 50 * 1024 * 1024
	}
	cfg.Evidence = EvidenceConfig{
		MaxBlobBytes:         maxBlob,
		MaxRecordingDuration: parseDuration(v.GetString("EVIDENCE_MAX_RECORDING"), 10*time.Minute),
		RecordingWarning:     parseDuration(v.GetString("EVIDENCE_RECORDING_WARNING"), 9*time.Minute),
		AllowedMIMEs:         splitAndTrim(v.GetString("EVIDENCE_ALLOWED_MIME_TYPES")),
		PruneSyncedBlobs:     v.GetBool("EVIDENCE_PRUNE_SYNCED"),
	}

	cfg.Preflight = PreflightConfig{
		MinFreeBytes:  v.GetInt64("PREFLIGHT_MIN_FREE_BYTES"),
		WarnFreeBytes: v.GetInt64("PREFLIGHT_WARN_FREE_BYTES"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("ENABLE_EXPORTS"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8085)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_PATH", "./fieldsync.db")
	v.SetDefault("DB_BUSY_TIMEOUT", "5s")
	v.SetDefault("DB_MAX_OPEN_CONNS", 1)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("REMOTE_BASE_URL", "http://localhost:8080")
	v.SetDefault("REMOTE_TIMEOUT", "30s")
	v.SetDefault("REMOTE_DEVICE_ID", "")
	v.SetDefault("REMOTE_DEVICE_TOKEN_SECRET", "dev_device_secret")
	v.SetDefault("REMOTE_DEVICE_TOKEN_TTL", "1h")

	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_BACKOFF_BASE", "2s")
	v.SetDefault("SYNC_BACKOFF_MAX", "5m")
	v.SetDefault("SYNC_AUTO_INTERVAL", "0")
	v.SetDefault("SYNC_STATUS_CACHE_TTL", "5s")
	v.SetDefault("SYNC_COALESCE_WRITES", false)

	v.SetDefault("EVIDENCE_MAX_BLOB_BYTES", 50*1024*1024)
	v.SetDefault("EVIDENCE_MAX_RECORDING", "10m")
	v.SetDefault("EVIDENCE_RECORDING_WARNING", "9m")
	v.SetDefault("EVIDENCE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,audio/webm,audio/mp4,video/mp4,video/webm")
	v.SetDefault("EVIDENCE_PRUNE_SYNCED", true)

	v.SetDefault("PREFLIGHT_MIN_FREE_BYTES", 100*1024*1024)
	v.SetDefault("PREFLIGHT_WARN_FREE_BYTES", 500*1024*1024)

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
