// Package config loads the gateway's immutable configuration from the
// environment. The resulting value is passed explicitly to every component.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string // MCPGATE_HTTP_ADDR (default ":8443")
	GRPCAddr    string // MCPGATE_GRPC_ADDR (default ":9090"; empty disables the health service)
	DatabaseURL string // MCPGATE_DATABASE_URL (required)
	RedisURL    string // MCPGATE_REDIS_URL (default "redis://localhost:6379")
	NATSURL     string // MCPGATE_NATS_URL (optional, empty = no events)
	LogLevel    slog.Level

	// Credentials
	JWTSecret string        // MCPGATE_JWT_SECRET (required, at least 32 bytes)
	JWTTTL    time.Duration // MCPGATE_JWT_TTL (default 24h)

	// Rate limiting (shared by all callers)
	RateLimitWindow time.Duration // MCPGATE_RATE_LIMIT_WINDOW (default 60s)
	RateLimitMax    int64         // MCPGATE_RATE_LIMIT_MAX (default 60)

	// Upstreams
	UpstreamsFile      string   // MCPGATE_UPSTREAMS_FILE (TOML; overrides the defaults below)
	MetaAdsCommand     string   // MCPGATE_META_ADS_COMMAND (default "uvx")
	MetaAdsArgs        []string // MCPGATE_META_ADS_ARGS (space separated, default "meta-ads-mcp")
	PostgresMCPCommand string   // MCPGATE_POSTGRES_MCP_COMMAND (default "postgres-mcp")
	PipeboardAPIToken  string   // MCPGATE_PIPEBOARD_API_TOKEN

	ResourcesDir string // MCPGATE_RESOURCES_DIR (optional overrides for served documents)

	// Profile export
	SyncInterval   time.Duration // MCPGATE_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // MCPGATE_SYNC_S3_BUCKET (required when sync is enabled)
	SyncS3Endpoint string        // MCPGATE_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // MCPGATE_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // MCPGATE_SYNC_S3_KEY (default "mcpgate/company_profiles.jsonl")
	SyncSnapshots  bool          // MCPGATE_SYNC_SNAPSHOTS (keep timestamped copies)
}

const minJWTSecretLen = 32

func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:           envOrDefault("MCPGATE_HTTP_ADDR", ":8443"),
		GRPCAddr:           envOrDefault("MCPGATE_GRPC_ADDR", ":9090"),
		DatabaseURL:        os.Getenv("MCPGATE_DATABASE_URL"),
		RedisURL:           envOrDefault("MCPGATE_REDIS_URL", "redis://localhost:6379"),
		NATSURL:            os.Getenv("MCPGATE_NATS_URL"),
		JWTSecret:          os.Getenv("MCPGATE_JWT_SECRET"),
		UpstreamsFile:      os.Getenv("MCPGATE_UPSTREAMS_FILE"),
		MetaAdsCommand:     envOrDefault("MCPGATE_META_ADS_COMMAND", "uvx"),
		MetaAdsArgs:        strings.Fields(envOrDefault("MCPGATE_META_ADS_ARGS", "meta-ads-mcp")),
		PostgresMCPCommand: envOrDefault("MCPGATE_POSTGRES_MCP_COMMAND", "postgres-mcp"),
		PipeboardAPIToken:  os.Getenv("MCPGATE_PIPEBOARD_API_TOKEN"),
		ResourcesDir:       os.Getenv("MCPGATE_RESOURCES_DIR"),
		SyncS3Bucket:       os.Getenv("MCPGATE_SYNC_S3_BUCKET"),
		SyncS3Endpoint:     os.Getenv("MCPGATE_SYNC_S3_ENDPOINT"),
		SyncS3Region:       envOrDefault("MCPGATE_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:          envOrDefault("MCPGATE_SYNC_S3_KEY", "mcpgate/company_profiles.jsonl"),
		SyncSnapshots:      os.Getenv("MCPGATE_SYNC_SNAPSHOTS") == "true",
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("MCPGATE_DATABASE_URL is required")
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return nil, fmt.Errorf("MCPGATE_JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}

	var err error
	if c.JWTTTL, err = durationEnv("MCPGATE_JWT_TTL", "24h"); err != nil {
		return nil, err
	}
	if c.RateLimitWindow, err = durationEnv("MCPGATE_RATE_LIMIT_WINDOW", "60s"); err != nil {
		return nil, err
	}
	if c.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("MCPGATE_RATE_LIMIT_WINDOW must be positive")
	}
	maxStr := envOrDefault("MCPGATE_RATE_LIMIT_MAX", "60")
	c.RateLimitMax, err = strconv.ParseInt(maxStr, 10, 64)
	if err != nil || c.RateLimitMax <= 0 {
		return nil, fmt.Errorf("MCPGATE_RATE_LIMIT_MAX: must be a positive integer, got %q", maxStr)
	}
	if c.SyncInterval, err = durationEnv("MCPGATE_SYNC_INTERVAL", "0s"); err != nil {
		return nil, err
	}
	if c.SyncInterval > 0 && c.SyncS3Bucket == "" {
		return nil, fmt.Errorf("MCPGATE_SYNC_S3_BUCKET is required when MCPGATE_SYNC_INTERVAL is set")
	}
	if c.LogLevel, err = parseLevel(envOrDefault("MCPGATE_LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	return c, nil
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("MCPGATE_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
