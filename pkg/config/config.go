package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Result storage drivers.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env            string
	Port           int
	APIPrefix      string
	RequestTimeout time.Duration

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Metrics       MetricsConfig
	Appointments  AppointmentsConfig
	Results       ResultsConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// AppointmentsConfig governs the appointment lifecycle.
type AppointmentsConfig struct {
	// EnforceTransitions rejects writes on terminal appointments and status
	// edges that the lifecycle table does not allow.
	EnforceTransitions bool
}

// ResultsConfig controls result file storage and the verification workflow.
type ResultsConfig struct {
	StorageDriver    string
	StorageDir       string
	S3Bucket         string
	S3Prefix         string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowRedecision  bool
}

// NotificationsConfig tunes the cached notification feeds.
type NotificationsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.RequestTimeout = parseDuration(v.GetString("HTTP_REQUEST_TIMEOUT"), 15*time.Second)

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Appointments = AppointmentsConfig{
		EnforceTransitions: v.GetBool("APPOINTMENTS_ENFORCE_TRANSITIONS"),
	}

	maxResultSize := v.GetInt64("RESULTS_MAX_FILE_SIZE")
	if maxResultSize <= 0 {
		maxResultSize = 10 * 1024 * 1024
	}
	driver := strings.ToLower(strings.TrimSpace(v.GetString("RESULTS_STORAGE_DRIVER")))
	if driver != StorageDriverS3 {
		driver = StorageDriverLocal
	}
	cfg.Results = ResultsConfig{
		StorageDriver:    driver,
		StorageDir:       v.GetString("RESULTS_STORAGE_DIR"),
		S3Bucket:         v.GetString("RESULTS_S3_BUCKET"),
		S3Prefix:         v.GetString("RESULTS_S3_PREFIX"),
		SignedURLSecret:  v.GetString("RESULTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("RESULTS_SIGNED_URL_TTL"), 15*time.Minute),
		MaxFileSizeBytes: maxResultSize,
		AllowRedecision:  v.GetBool("RESULTS_ALLOW_REDECISION"),
	}

	cfg.Notifications = NotificationsConfig{
		CacheEnabled: v.GetBool("ENABLE_NOTIFICATION_CACHE"),
		CacheTTL:     parseDuration(v.GetString("NOTIFICATIONS_CACHE_TTL"), time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("HTTP_REQUEST_TIMEOUT", "15s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "diagnostics_clinic")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "clinic-workflow-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("APPOINTMENTS_ENFORCE_TRANSITIONS", true)

	v.SetDefault("RESULTS_STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("RESULTS_STORAGE_DIR", "./uploads/results")
	v.SetDefault("RESULTS_S3_BUCKET", "")
	v.SetDefault("RESULTS_S3_PREFIX", "results")
	v.SetDefault("RESULTS_SIGNED_URL_SECRET", "dev_results_secret")
	v.SetDefault("RESULTS_SIGNED_URL_TTL", "15m")
	v.SetDefault("RESULTS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("RESULTS_ALLOW_REDECISION", true)

	v.SetDefault("ENABLE_NOTIFICATION_CACHE", false)
	v.SetDefault("NOTIFICATIONS_CACHE_TTL", "1m")
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
