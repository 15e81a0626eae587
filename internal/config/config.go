package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	AuthMode   string `mapstructure:"AUTH_MODE"`
	AuthSecret string `mapstructure:"AUTH_SECRET"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	GovAPIURL     string        `mapstructure:"GOV_API_URL"`
	GovAPIKey     string        `mapstructure:"GOV_API_KEY"`
	GovAPITimeout time.Duration `mapstructure:"GOV_API_TIMEOUT"`

	// Legal submission window, day-of-month inclusive on both ends.
	WindowStartDay int `mapstructure:"SUBMISSION_WINDOW_START_DAY"`
	WindowEndDay   int `mapstructure:"SUBMISSION_WINDOW_END_DAY"`

	MaxRetries     int           `mapstructure:"MAX_RETRIES"`
	RetryBaseDelay time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RetryCapDelay  time.Duration `mapstructure:"RETRY_CAP_DELAY"`

	WorkerPoolSize      int           `mapstructure:"WORKER_POOL_SIZE"`
	DrainInterval       time.Duration `mapstructure:"QUEUE_DRAIN_INTERVAL"`
	WindowCheckInterval time.Duration `mapstructure:"WINDOW_CHECK_INTERVAL"`
	LockExpiry          time.Duration `mapstructure:"PROCESSING_LOCK_EXPIRY"`
	QueueItemMaxAge     time.Duration `mapstructure:"QUEUE_ITEM_MAX_AGE"`

	// 64 hex chars (32 bytes) for AES-256-GCM payload encryption.
	PayloadEncryptionKey string `mapstructure:"PAYLOAD_ENCRYPTION_KEY"`
	PayloadKeyVersion    string `mapstructure:"PAYLOAD_KEY_VERSION"`
	PatientHashSalt      string `mapstructure:"PATIENT_HASH_SALT"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults. Window and retry values mirror the legal/product defaults
	// and are configuration, not protocol constants.
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("GOV_API_TIMEOUT", "120s")
	v.SetDefault("SUBMISSION_WINDOW_START_DAY", 5)
	v.SetDefault("SUBMISSION_WINDOW_END_DAY", 10)
	v.SetDefault("MAX_RETRIES", 5)
	v.SetDefault("RETRY_BASE_DELAY", "30s")
	v.SetDefault("RETRY_CAP_DELAY", "5m")
	v.SetDefault("WORKER_POOL_SIZE", 4)
	v.SetDefault("QUEUE_DRAIN_INTERVAL", "5m")
	v.SetDefault("WINDOW_CHECK_INTERVAL", "1h")
	v.SetDefault("PROCESSING_LOCK_EXPIRY", "5m")
	v.SetDefault("QUEUE_ITEM_MAX_AGE", "168h")
	v.SetDefault("PAYLOAD_KEY_VERSION", "v1")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "AUTH_MODE", "AUTH_SECRET",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"GOV_API_URL", "GOV_API_KEY", "GOV_API_TIMEOUT",
		"SUBMISSION_WINDOW_START_DAY", "SUBMISSION_WINDOW_END_DAY",
		"MAX_RETRIES", "RETRY_BASE_DELAY", "RETRY_CAP_DELAY",
		"WORKER_POOL_SIZE", "QUEUE_DRAIN_INTERVAL", "WINDOW_CHECK_INTERVAL",
		"PROCESSING_LOCK_EXPIRY", "QUEUE_ITEM_MAX_AGE",
		"PAYLOAD_ENCRYPTION_KEY", "PAYLOAD_KEY_VERSION", "PATIENT_HASH_SALT",
		"CORS_ORIGINS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Sandbox() {
		log.Println("WARNING: DATABASE_URL is not set; running with in-memory stores.")
		log.Println("WARNING: All submission state is lost on restart. Development only.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Sandbox reports whether the server runs without a database, using in-memory
// stores and the simulated government client.
func (c *Config) Sandbox() bool {
	return c.IsDev() && c.DatabaseURL == ""
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise "development" is inferred in dev mode and
// "standalone" (built-in HS256 bearer tokens) everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "standalone"
}

// Validate checks that the configuration is safe to run. Outside development
// a database, an auth secret, a government endpoint, and a payload encryption
// key are all required; the submission window must be a sane day range.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "standalone" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"standalone\", got %q", mode)
	}
	if mode == "standalone" && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when AUTH_MODE is \"standalone\"")
	}

	if c.WindowStartDay < 1 || c.WindowEndDay > 28 || c.WindowStartDay > c.WindowEndDay {
		return fmt.Errorf("submission window days must satisfy 1 <= start <= end <= 28, got %d-%d",
			c.WindowStartDay, c.WindowEndDay)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryBaseDelay <= 0 || c.RetryCapDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < RETRY_BASE_DELAY <= RETRY_CAP_DELAY")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be >= 1, got %d", c.WorkerPoolSize)
	}

	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.GovAPIURL == "" {
			return fmt.Errorf("GOV_API_URL is required in production")
		}
		if c.PayloadEncryptionKey == "" {
			return fmt.Errorf("PAYLOAD_ENCRYPTION_KEY is required in production")
		}
	}
	if c.PayloadEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.PayloadEncryptionKey)
		if err != nil {
			return fmt.Errorf("PAYLOAD_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("PAYLOAD_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
