package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "COUPLEMOVIE_"

// Config captures the runtime configuration for the CoupleMovie backend service.
type Config struct {
	AppPort      int    `yaml:"port"`
	DatabaseURL  string `yaml:"databaseUrl"`
	MigrationDir string `yaml:"migrations"`
	SeedDir      string `yaml:"seeds"`
	LogLevel     string `yaml:"logLevel"`
	LogFormat    string `yaml:"logFormat"`

	JWTSecret  string        `yaml:"jwtSecret"`
	AccessTTL  time.Duration `yaml:"accessTtl"`
	RefreshTTL time.Duration `yaml:"refreshTtl"`

	OMDbAPIKey      string        `yaml:"omdbApiKey"`
	OMDbBaseURL     string        `yaml:"omdbBaseUrl"`
	CatalogTimeout  time.Duration `yaml:"catalogTimeout"`
	CatalogCacheTTL time.Duration `yaml:"catalogCacheTtl"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`

	AMQPURL         string `yaml:"amqpUrl"`
	AMQPExchange    string `yaml:"amqpExchange"`
	NotifyQueueSize int    `yaml:"notifyQueueSize"`
	NotifyWorkers   int    `yaml:"notifyWorkers"`

	ArchiveBucket   string `yaml:"archiveBucket"`
	ArchiveRegion   string `yaml:"archiveRegion"`
	ArchiveEndpoint string `yaml:"archiveEndpoint"`
	ArchivePrefix   string `yaml:"archivePrefix"`

	InviteRateLimit  int           `yaml:"inviteRateLimit"`
	InviteRateWindow time.Duration `yaml:"inviteRateWindow"`
	AuthRateLimit    int           `yaml:"authRateLimit"`
	AuthRateWindow   time.Duration `yaml:"authRateWindow"`

	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Defaults returns the configuration used for local development.
func Defaults() Config {
	return Config{
		AppPort:          8080,
		DatabaseURL:      "postgres://root@localhost:26257/couplemovie?sslmode=disable",
		MigrationDir:     "migrations",
		SeedDir:          "seeds",
		LogLevel:         "info",
		LogFormat:        "json",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       30 * 24 * time.Hour,
		CatalogTimeout:   5 * time.Second,
		CatalogCacheTTL:  6 * time.Hour,
		NotifyQueueSize:  256,
		NotifyWorkers:    2,
		ArchivePrefix:    "collections",
		InviteRateLimit:  10,
		InviteRateWindow: time.Hour,
		AuthRateLimit:    20,
		AuthRateWindow:   time.Minute,
		ShutdownTimeout:  15 * time.Second,
	}
}

// Load reads configuration from environment variables, applying sensible defaults
// for local development. When COUPLEMOVIE_CONFIG_FILE names a YAML file it is
// applied first, so environment variables always win.
func Load() (Config, error) {
	return LoadFile(os.Getenv(EnvPrefix + "CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML file. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := applyYAML(&cfg, data); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyYAML(cfg *Config, data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.AppPort = getInt("PORT", cfg.AppPort)
	cfg.DatabaseURL = getString("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationDir = getString("MIGRATIONS", cfg.MigrationDir)
	cfg.SeedDir = getString("SEEDS", cfg.SeedDir)
	cfg.LogLevel = getString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getString("LOG_FORMAT", cfg.LogFormat)

	cfg.JWTSecret = getString("JWT_SECRET", cfg.JWTSecret)
	cfg.AccessTTL = getDuration("ACCESS_TTL", cfg.AccessTTL)
	cfg.RefreshTTL = getDuration("REFRESH_TTL", cfg.RefreshTTL)

	cfg.OMDbAPIKey = getString("OMDB_API_KEY", cfg.OMDbAPIKey)
	cfg.OMDbBaseURL = getString("OMDB_BASE_URL", cfg.OMDbBaseURL)
	cfg.CatalogTimeout = getDuration("CATALOG_TIMEOUT", cfg.CatalogTimeout)
	cfg.CatalogCacheTTL = getDuration("CATALOG_CACHE_TTL", cfg.CatalogCacheTTL)

	cfg.RedisAddr = getString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getInt("REDIS_DB", cfg.RedisDB)

	cfg.AMQPURL = getString("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getString("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.NotifyQueueSize = getInt("NOTIFY_QUEUE_SIZE", cfg.NotifyQueueSize)
	cfg.NotifyWorkers = getInt("NOTIFY_WORKERS", cfg.NotifyWorkers)

	cfg.ArchiveBucket = getString("ARCHIVE_BUCKET", cfg.ArchiveBucket)
	cfg.ArchiveRegion = getString("ARCHIVE_REGION", cfg.ArchiveRegion)
	cfg.ArchiveEndpoint = getString("ARCHIVE_ENDPOINT", cfg.ArchiveEndpoint)
	cfg.ArchivePrefix = getString("ARCHIVE_PREFIX", cfg.ArchivePrefix)

	cfg.InviteRateLimit = getInt("INVITE_RATE_LIMIT", cfg.InviteRateLimit)
	cfg.InviteRateWindow = getDuration("INVITE_RATE_WINDOW", cfg.InviteRateWindow)
	cfg.AuthRateLimit = getInt("AUTH_RATE_LIMIT", cfg.AuthRateLimit)
	cfg.AuthRateWindow = getDuration("AUTH_RATE_WINDOW", cfg.AuthRateWindow)

	cfg.AllowedOrigins = getList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var problems []string
	if c.AppPort <= 0 || c.AppPort > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.AppPort))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, EnvPrefix+"DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		problems = append(problems, EnvPrefix+"JWT_SECRET must be at least 32 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= c.AccessTTL {
		problems = append(problems, "refresh ttl must be longer than a positive access ttl")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
