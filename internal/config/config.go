package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"school-ledger/internal/domain"
)

type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	AutoMigrate bool
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	URLTTLMinutes   int
}

type StorageConfig struct {
	Driver             string // local | s3
	ExportDir          string
	FilesPublicPrefix  string
	ExternalURL        string
	CleanupAfterMinute int
}

type LedgerConfig struct {
	StoreDriver string // postgres | memory
	MaxRetries  int
	LowBalance  domain.Money
}

type AuthConfig struct {
	// StaticTokens is "token=tenant:user_id,..." for the memory store driver.
	StaticTokens string
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Port         string
	Postgres     PostgresConfig
	Redis        RedisConfig
	S3           S3Config
	Storage      StorageConfig
	Ledger       LedgerConfig
	Auth         AuthConfig
	Log          LogConfig
	ExportPrefix string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loader collects the first bad value instead of exiting.
type loader struct {
	err error
}

func (l *loader) atoi(key, def string) int {
	s := getenv(key, def)
	i, err := strconv.Atoi(s)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid int value %q for %s: %w", s, key, err)
	}
	return i
}

func (l *loader) bool(key, def string) bool {
	s := getenv(key, def)
	b, err := strconv.ParseBool(s)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid bool value %q for %s: %w", s, key, err)
	}
	return b
}

func (l *loader) money(key, def string) domain.Money {
	s := getenv(key, def)
	m, err := domain.ParseMoney(s)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid amount %q for %s: %w", s, key, err)
	}
	return m
}

func (l *loader) oneOf(key, def string, allowed ...string) string {
	s := strings.ToLower(getenv(key, def))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	if l.err == nil {
		l.err = fmt.Errorf("invalid value %q for %s, want one of %s", s, key, strings.Join(allowed, ", "))
	}
	return s
}

func Load() (AppConfig, error) {
	var l loader
	cfg := AppConfig{
		Port: getenv("APP_PORT", "8010"),
		Postgres: PostgresConfig{
			Host:        getenv("PG_HOST", "127.0.0.1"),
			Port:        l.atoi("PG_PORT", "5432"),
			User:        getenv("PG_USER", "postgres"),
			Password:    getenv("PG_PASSWORD", "postgres"),
			DBName:      getenv("PG_DB", "school_ledger"),
			SSLMode:     getenv("PG_SSLMODE", "disable"),
			MaxConns:    l.atoi("PG_MAX_CONNS", "20"),
			AutoMigrate: l.bool("PG_AUTO_MIGRATE", "true"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          l.atoi("REDIS_DB", "0"),
			MaxRetries:  l.atoi("REDIS_MAX_RETRIES", "5"),
			DialTimeout: l.atoi("REDIS_DIAL_TIMEOUT", "10"),
			Timeout:     l.atoi("REDIS_TIMEOUT", "5"),
			Prefix:      getenv("REDIS_PREFIX", "school_ledger_"),
		},
		S3: S3Config{
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "reports"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          l.bool("S3_USE_SSL", "false"),
			Prefix:          getenv("S3_PREFIX", "exports/"),
			URLTTLMinutes:   l.atoi("S3_URL_TTL_MINUTES", "60"),
		},
		Storage: StorageConfig{
			Driver:             l.oneOf("STORAGE_DRIVER", "local", "local", "s3"),
			ExportDir:          getenv("EXPORT_DIR", "./exports"),
			FilesPublicPrefix:  getenv("FILES_PUBLIC_PREFIX", "/files"),
			ExternalURL:        getenv("EXTERNAL_URL", ""),
			CleanupAfterMinute: l.atoi("EXPORT_CLEANUP_MINUTES", "30"),
		},
		Ledger: LedgerConfig{
			StoreDriver: l.oneOf("STORE_DRIVER", "postgres", "postgres", "memory"),
			MaxRetries:  l.atoi("LEDGER_MAX_RETRIES", "3"),
			LowBalance:  l.money("LEDGER_LOW_BALANCE", "100.00"),
		},
		Auth: AuthConfig{
			StaticTokens: getenv("AUTH_STATIC_TOKENS", ""),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
		ExportPrefix: getenv("EXPORT_CACHE_PREFIX", "school_ledger_cache:"),
	}
	if l.err != nil {
		return AppConfig{}, l.err
	}
	if cfg.Ledger.MaxRetries < 1 {
		return AppConfig{}, fmt.Errorf("LEDGER_MAX_RETRIES must be at least 1, got %d", cfg.Ledger.MaxRetries)
	}
	return cfg, nil
}
