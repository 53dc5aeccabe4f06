package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration for the ClipVault backend service.
type Config struct {
	AppPort      int
	Environment  string
	DatabaseURL  string
	MigrationDir string
	SeedDir      string
	LogLevel     string

	AccessTokenSecret string
	AccessTokenTTL    time.Duration
	RefreshTTLDays    int
	BcryptCost        int
	CookieTokens      bool

	LoginRateWindow   time.Duration
	LoginRateMax      int
	GlobalRatePerMin  int
	GlobalRateBurst   int
	ResponseCacheTTL  time.Duration
	MaxUploadBytes    int64
	ObjectStore       ObjectStoreConfig
}

// ObjectStoreConfig describes the S3-compatible bucket that receives
// uploaded video assets.
type ObjectStoreConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

// Load reads configuration from the environment, applying sensible defaults
// for local development. A .env file in the working directory is honoured
// when present. Missing security-critical values are load errors so the
// process refuses to start rather than failing per request.
func Load() (Config, error) {
	// Best effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		AppPort:      getInt("CLIPVAULT_PORT", 8080),
		Environment:  getString("CLIPVAULT_ENV", "development"),
		DatabaseURL:  os.Getenv("CLIPVAULT_DATABASE_URL"),
		MigrationDir: getString("CLIPVAULT_MIGRATIONS", "migrations"),
		SeedDir:      getString("CLIPVAULT_SEEDS", "seeds"),
		LogLevel:     getString("CLIPVAULT_LOG_LEVEL", "info"),

		AccessTokenSecret: os.Getenv("JWT_ACCESS_SECRET"),
		AccessTokenTTL:    getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTLDays:    getInt("REFRESH_TOKEN_EXPIRES_DAYS", 30),
		BcryptCost:        getInt("BCRYPT_COST", 10),
		CookieTokens:      getBool("CLIPVAULT_COOKIE_TOKENS", true),

		LoginRateWindow:  getDuration("CLIPVAULT_LOGIN_RATE_WINDOW", time.Minute),
		LoginRateMax:     getInt("CLIPVAULT_LOGIN_RATE_MAX", 10),
		GlobalRatePerMin: getInt("CLIPVAULT_GLOBAL_RATE_PER_MIN", 300),
		GlobalRateBurst:  getInt("CLIPVAULT_GLOBAL_RATE_BURST", 50),
		ResponseCacheTTL: getDuration("CLIPVAULT_RESPONSE_CACHE_TTL", 10*time.Second),
		MaxUploadBytes:   getInt64("CLIPVAULT_MAX_UPLOAD_BYTES", 500<<20),
		ObjectStore: ObjectStoreConfig{
			Bucket:        getString("CLIPVAULT_S3_BUCKET", "clipvault-videos"),
			Region:        getString("CLIPVAULT_S3_REGION", "us-east-1"),
			Endpoint:      os.Getenv("CLIPVAULT_S3_ENDPOINT"),
			PublicBaseURL: os.Getenv("CLIPVAULT_S3_PUBLIC_URL"),
		},
	}

	if cfg.AccessTokenSecret == "" {
		return Config{}, errors.New("config: JWT_ACCESS_SECRET must be set")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("config: CLIPVAULT_DATABASE_URL must be set")
	}

	return cfg, nil
}

// Production reports whether the service runs with production hardening,
// which controls the Secure flag on the refresh cookie.
func (c Config) Production() bool {
	return c.Environment == "production"
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
