package config

import (
	"log/slog"
	"slices"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// allEnvVars lists every variable Load reads; they are cleared between tests.
var allEnvVars = []string{
	"MCPGATE_HTTP_ADDR", "MCPGATE_GRPC_ADDR", "MCPGATE_DATABASE_URL", "MCPGATE_REDIS_URL",
	"MCPGATE_NATS_URL", "MCPGATE_JWT_SECRET", "MCPGATE_JWT_TTL", "MCPGATE_RATE_LIMIT_WINDOW",
	"MCPGATE_RATE_LIMIT_MAX", "MCPGATE_UPSTREAMS_FILE", "MCPGATE_META_ADS_COMMAND",
	"MCPGATE_META_ADS_ARGS", "MCPGATE_POSTGRES_MCP_COMMAND", "MCPGATE_PIPEBOARD_API_TOKEN",
	"MCPGATE_SYNC_INTERVAL", "MCPGATE_SYNC_S3_BUCKET", "MCPGATE_SYNC_S3_ENDPOINT",
	"MCPGATE_SYNC_S3_REGION", "MCPGATE_SYNC_S3_KEY", "MCPGATE_LOG_LEVEL", "MCPGATE_RESOURCES_DIR",
	"MCPGATE_SYNC_SNAPSHOTS",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MCPGATE_DATABASE_URL", "postgres://localhost/mcpgate")
	t.Setenv("MCPGATE_JWT_SECRET", testSecret)
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantHTTPAddr string
		wantRedisURL string
		wantNATSURL  string
	}{
		{
			name:    "MissingDatabaseURL",
			env:     map[string]string{"MCPGATE_JWT_SECRET": testSecret},
			wantErr: true,
		},
		{
			name:    "ShortSecret",
			env:     map[string]string{"MCPGATE_DATABASE_URL": "postgres://x", "MCPGATE_JWT_SECRET": "short"},
			wantErr: true,
		},
		{
			name:         "Defaults",
			env:          map[string]string{"MCPGATE_DATABASE_URL": "postgres://localhost/mcpgate", "MCPGATE_JWT_SECRET": testSecret},
			wantHTTPAddr: ":8443",
			wantRedisURL: "redis://localhost:6379",
		},
		{
			name: "Custom",
			env: map[string]string{
				"MCPGATE_DATABASE_URL": "postgres://db:5432/mcpgate",
				"MCPGATE_JWT_SECRET":   testSecret,
				"MCPGATE_HTTP_ADDR":    ":3000",
				"MCPGATE_REDIS_URL":    "redis://cache:6379/2",
				"MCPGATE_NATS_URL":     "nats://localhost:4222",
			},
			wantHTTPAddr: ":3000",
			wantRedisURL: "redis://cache:6379/2",
			wantNATSURL:  "nats://localhost:4222",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.RedisURL != tc.wantRedisURL {
				t.Errorf("RedisURL = %q, want %q", cfg.RedisURL, tc.wantRedisURL)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoadRateLimitDefaults(t *testing.T) {
	clearAllEnv(t)
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %v, want 1m", cfg.RateLimitWindow)
	}
	if cfg.RateLimitMax != 60 {
		t.Errorf("RateLimitMax = %d, want 60", cfg.RateLimitMax)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Errorf("JWTTTL = %v, want 24h", cfg.JWTTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadRateLimitInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		key  string
		val  string
	}{
		{"ZeroMax", "MCPGATE_RATE_LIMIT_MAX", "0"},
		{"NonNumericMax", "MCPGATE_RATE_LIMIT_MAX", "lots"},
		{"BadWindow", "MCPGATE_RATE_LIMIT_WINDOW", "soon"},
		{"ZeroWindow", "MCPGATE_RATE_LIMIT_WINDOW", "0s"},
		{"BadLogLevel", "MCPGATE_LOG_LEVEL", "loud"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			setRequired(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoadUpstreamDefaults(t *testing.T) {
	clearAllEnv(t)
	setRequired(t)
	t.Setenv("MCPGATE_META_ADS_ARGS", "meta-ads-mcp --verbose")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MetaAdsCommand != "uvx" {
		t.Errorf("MetaAdsCommand = %q", cfg.MetaAdsCommand)
	}
	if !slices.Equal(cfg.MetaAdsArgs, []string{"meta-ads-mcp", "--verbose"}) {
		t.Errorf("MetaAdsArgs = %v", cfg.MetaAdsArgs)
	}
	if cfg.PostgresMCPCommand != "postgres-mcp" {
		t.Errorf("PostgresMCPCommand = %q", cfg.PostgresMCPCommand)
	}
}

func TestLoadSync(t *testing.T) {
	clearAllEnv(t)
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 0 {
		t.Errorf("SyncInterval = %v, want 0 (disabled)", cfg.SyncInterval)
	}
	if cfg.SyncS3Region != "us-east-1" {
		t.Errorf("SyncS3Region = %q", cfg.SyncS3Region)
	}

	t.Setenv("MCPGATE_SYNC_INTERVAL", "10m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when sync is enabled without a bucket")
	}

	t.Setenv("MCPGATE_SYNC_S3_BUCKET", "profiles")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %v, want 10m", cfg.SyncInterval)
	}
	if cfg.SyncSnapshots {
		t.Error("SyncSnapshots = true, want false by default")
	}

	t.Setenv("MCPGATE_SYNC_SNAPSHOTS", "true")
	if cfg, err = Load(); err != nil || !cfg.SyncSnapshots {
		t.Errorf("SyncSnapshots not enabled: cfg=%+v err=%v", cfg, err)
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
