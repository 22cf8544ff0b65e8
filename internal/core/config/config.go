package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/datahub-lab/datahub/internal/analytics"
)

// Config represents the top-level application config plus resolved report windows.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	BlobStore BlobStoreConfig `koanf:"blobstore"`
	Analytics AnalyticsConfig `koanf:"analytics"`

	// ReportWindows is populated by Load after parsing window files.
	ReportWindows []analytics.ReportWindow `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type BlobStoreConfig struct {
	Bucket string `koanf:"bucket"`
	Region string `koanf:"region"`
	URLTTL string `koanf:"url_ttl"` // parsed and validated on startup
}

type AnalyticsConfig struct {
	WindowsDir   string `koanf:"windows_dir"`
	TopN         int    `koanf:"top_n"`
	HistoryLimit int    `koanf:"history_limit"`
}

// ParsedURLTTL returns the presigned URL lifetime as a duration.
func (c BlobStoreConfig) ParsedURLTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.URLTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid blobstore.url_ttl %q: %w", c.URLTTL, err)
	}
	return ttl, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.BlobStore.Bucket) == "" {
		return fmt.Errorf("blobstore.bucket is required")
	}
	if strings.TrimSpace(c.BlobStore.Region) == "" {
		return fmt.Errorf("blobstore.region is required")
	}
	ttl, err := c.BlobStore.ParsedURLTTL()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("blobstore.url_ttl must be > 0")
	}

	if c.Analytics.TopN <= 0 {
		return fmt.Errorf("analytics.top_n must be > 0")
	}
	if c.Analytics.HistoryLimit <= 0 {
		return fmt.Errorf("analytics.history_limit must be > 0")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads report window files.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"database.dsn":            "postgres://localhost:5432/datahub?sslmode=disable",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"blobstore.bucket":        "datahub-blobs",
		"blobstore.region":        "us-east-1",
		"blobstore.url_ttl":       "15m",
		"analytics.windows_dir":   "./config/windows",
		"analytics.top_n":         10,
		"analytics.history_limit": 50,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("DATAHUB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "DATAHUB_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	windows, err := analytics.LoadWindows(cfg.Analytics.WindowsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load report windows: %w", err)
	}
	cfg.ReportWindows = windows

	return &cfg, nil
}
