package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SKYDRIVE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RelayLimit   RelayRateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Storage      BunnyStorageConfig
	Stream       BunnyStreamConfig
	Upload       UploadConfig
	Reconcile    ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SKYDRIVE_APP_ENV" required:"true"`
	Port         string `envconfig:"SKYDRIVE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SKYDRIVE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SKYDRIVE_LOG_WARN_STACK" default:"false"`
	APIKey       string `envconfig:"SKYDRIVE_PLATFORM_API_KEY"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SKYDRIVE_DB_DSN"`
	Driver string `envconfig:"SKYDRIVE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SKYDRIVE_DB_HOST"`
	LegacyPort     int    `envconfig:"SKYDRIVE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SKYDRIVE_DB_USER"`
	LegacyPassword string `envconfig:"SKYDRIVE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SKYDRIVE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SKYDRIVE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SKYDRIVE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SKYDRIVE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SKYDRIVE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SKYDRIVE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SKYDRIVE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SKYDRIVE_REDIS_ADDR"`
	Password     string        `envconfig:"SKYDRIVE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SKYDRIVE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SKYDRIVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SKYDRIVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SKYDRIVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SKYDRIVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SKYDRIVE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SKYDRIVE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SKYDRIVE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SKYDRIVE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RelayRateLimitConfig struct {
	Window    time.Duration `envconfig:"SKYDRIVE_RELAY_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"SKYDRIVE_RELAY_RATE_LIMIT_IP_LIMIT" default:"120"`
	UserLimit int           `envconfig:"SKYDRIVE_RELAY_RATE_LIMIT_USER_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SKYDRIVE_AUTO_MIGRATE" default:"false"`
}

// BunnyStorageConfig holds the blob-storage vendor credentials. These live in
// server config only; they are never returned to callers.
type BunnyStorageConfig struct {
	Zone     string        `envconfig:"SKYDRIVE_BUNNY_STORAGE_ZONE"`
	Host     string        `envconfig:"SKYDRIVE_BUNNY_STORAGE_HOST" default:"storage.bunnycdn.com"`
	Password string        `envconfig:"SKYDRIVE_BUNNY_STORAGE_PASSWORD"`
	Timeout  time.Duration `envconfig:"SKYDRIVE_BUNNY_STORAGE_TIMEOUT" default:"5m"`
}

func (c BunnyStorageConfig) Configured() bool {
	return c.Zone != "" && c.Host != "" && c.Password != ""
}

// BunnyStreamConfig holds the video-hosting vendor credentials scoped to a
// single library. The API key is exposed to callers only through the
// create-video response, as the short-lived direct-upload credential.
type BunnyStreamConfig struct {
	LibraryID string        `envconfig:"SKYDRIVE_BUNNY_STREAM_LIBRARY_ID"`
	APIKey    string        `envconfig:"SKYDRIVE_BUNNY_STREAM_API_KEY"`
	Timeout   time.Duration `envconfig:"SKYDRIVE_BUNNY_STREAM_TIMEOUT" default:"10m"`
}

func (c BunnyStreamConfig) Configured() bool {
	return c.LibraryID != "" && c.APIKey != ""
}

type UploadConfig struct {
	MaxUploadMB   int           `envconfig:"SKYDRIVE_MAX_UPLOAD_MB" default:"500"`
	TaskLinger    time.Duration `envconfig:"SKYDRIVE_UPLOAD_TASK_LINGER" default:"2s"`
	MaxBatchFiles int           `envconfig:"SKYDRIVE_UPLOAD_MAX_BATCH_FILES" default:"20"`
}

type ReconcileConfig struct {
	Interval  time.Duration `envconfig:"SKYDRIVE_RECONCILE_INTERVAL" default:"24h"`
	Retention time.Duration `envconfig:"SKYDRIVE_RECONCILE_RETENTION" default:"48h"`
	LockKey   string        `envconfig:"SKYDRIVE_RECONCILE_LOCK_KEY" default:"sd:cron:reconcile"`
	LockTTL   time.Duration `envconfig:"SKYDRIVE_RECONCILE_LOCK_TTL" default:"25h"`
	DryRun    bool          `envconfig:"SKYDRIVE_RECONCILE_DRY_RUN" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"SKYDRIVE_DB_HOST": db.LegacyHost,
		"SKYDRIVE_DB_USER": db.LegacyUser,
		"SKYDRIVE_DB_NAME": db.LegacyName,
	}
	for _, envVar := range []string{"SKYDRIVE_DB_HOST", "SKYDRIVE_DB_USER", "SKYDRIVE_DB_NAME"} {
		if legacyValues[envVar] == "" {
			missing = append(missing, envVar)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either SKYDRIVE_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
