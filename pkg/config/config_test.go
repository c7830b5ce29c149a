package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/pagestream/pkg/client"
	"github.com/Sternrassler/pagestream/pkg/logging"
	"github.com/Sternrassler/pagestream/pkg/pagination"
	"github.com/Sternrassler/pagestream/pkg/ratelimit"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pagination.PageSize != pagination.InitialDefaultPageSize {
		t.Errorf("PageSize = %d, want %d", cfg.Pagination.PageSize, pagination.InitialDefaultPageSize)
	}
	if cfg.ParallelConfig() != pagination.DefaultConfig() {
		t.Errorf("ParallelConfig() = %+v, want %+v", cfg.ParallelConfig(), pagination.DefaultConfig())
	}
	if cfg.Retry != client.DefaultRetryConfig() {
		t.Errorf("Retry = %+v, want %+v", cfg.Retry, client.DefaultRetryConfig())
	}
	if cfg.RateLimit != ratelimit.DefaultThresholds() {
		t.Errorf("RateLimit = %+v, want %+v", cfg.RateLimit, ratelimit.DefaultThresholds())
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Timeout)
	}
	if cfg.Logger.Level != logging.LevelInfo || cfg.Logger.Pretty {
		t.Errorf("Logger = %+v, want info level without pretty output", cfg.Logger)
	}
	if cfg.NewRedisClient() != nil {
		t.Error("NewRedisClient() != nil without redis.addr")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, "pagestream.yaml", `
base_url: https://api.example.com
user_agent: pagedump/1.0
timeout: 10s
redis:
  addr: localhost:6380
  db: 3
pagination:
  page_size: 200
  max_concurrency: 6
  splits_per_worker: 2
retry:
  max_attempts: 5
  initial_backoff: 250ms
rate_limit:
  critical: 2
logger:
  level: debug
  pretty: true
`)

	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseURL != "https://api.example.com" || cfg.UserAgent != "pagedump/1.0" {
		t.Errorf("BaseURL, UserAgent = %q, %q", cfg.BaseURL, cfg.UserAgent)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %s, want 10s", cfg.Timeout)
	}
	if cfg.Redis.Addr != "localhost:6380" || cfg.Redis.DB != 3 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if want := (Pagination{PageSize: 200, MaxConcurrency: 6, SplitsPerWorker: 2}); cfg.Pagination != want {
		t.Errorf("Pagination = %+v, want %+v", cfg.Pagination, want)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.InitialBackoff != 250*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Retry.MaxBackoff != client.DefaultRetryConfig().MaxBackoff {
		t.Errorf("Retry.MaxBackoff = %s, want the default", cfg.Retry.MaxBackoff)
	}
	if cfg.RateLimit.Critical != 2 || cfg.RateLimit.Warning != ratelimit.DefaultThresholds().Warning {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Logger.Level != logging.LevelDebug || !cfg.Logger.Pretty {
		t.Errorf("Logger = %+v", cfg.Logger)
	}

	redisClient := cfg.NewRedisClient()
	if redisClient == nil {
		t.Fatal("NewRedisClient() = nil with redis.addr set")
	}
	defer redisClient.Close()
	if opts := redisClient.Options(); opts.Addr != "localhost:6380" || opts.DB != 3 {
		t.Errorf("redis options = %s db %d", opts.Addr, opts.DB)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "pagestream.yaml", "pagination:\n  page_size: 200\n")
	t.Setenv("PAGESTREAM_PAGINATION_PAGE_SIZE", "25")
	t.Setenv("PAGESTREAM_BASE_URL", "https://env.example.com")
	t.Setenv("PAGESTREAM_RETRY_MAX_BACKOFF", "1m")

	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pagination.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25 from the environment", cfg.Pagination.PageSize)
	}
	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Retry.MaxBackoff != time.Minute {
		t.Errorf("Retry.MaxBackoff = %s, want 1m", cfg.Retry.MaxBackoff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "zero page size",
			content: "pagination:\n  page_size: 0\n",
			wantErr: "pagination.page_size must be positive",
		},
		{
			name:    "zero concurrency",
			content: "pagination:\n  max_concurrency: 0\n",
			wantErr: "pagination.max_concurrency must be >= 1",
		},
		{
			name:    "zero splits per worker",
			content: "pagination:\n  splits_per_worker: 0\n",
			wantErr: "pagination.splits_per_worker must be >= 1",
		},
		{
			name:    "negative timeout",
			content: "timeout: -1s\n",
			wantErr: "timeout must be positive",
		},
		{
			name:    "unknown log level",
			content: "logger:\n  level: verbose\n",
			wantErr: `logger.level "verbose"`,
		},
		{
			name:    "malformed file",
			content: "pagination: [\n",
			wantErr: "failed to read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "pagestream.yaml", tt.content)

			_, err := Load(NewViper(), path)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil for a missing file")
	}
}

func TestConfig_Apply(t *testing.T) {
	t.Cleanup(func() {
		pagination.SetDefaultPageSize(pagination.InitialDefaultPageSize)
	})

	cfg, err := Load(NewViper(), writeConfig(t, "pagestream.json", `{"pagination":{"page_size":7}}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Apply(); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pagination.DefaultPageSize(); got != 7 {
		t.Errorf("DefaultPageSize() = %d, want 7", got)
	}
}

func TestConfig_ClientConfig(t *testing.T) {
	path := writeConfig(t, "pagestream.yaml", `
base_url: https://api.example.com
user_agent: pagedump/1.0
timeout: 5s
retry:
  max_attempts: 2
`)
	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cc := cfg.ClientConfig(nil)
	if cc.BaseURL != cfg.BaseURL || cc.UserAgent != cfg.UserAgent {
		t.Errorf("ClientConfig() = %+v", cc)
	}
	if cc.Timeout != 5*time.Second || cc.Retry.MaxAttempts != 2 {
		t.Errorf("ClientConfig() timeout %s, max attempts %d", cc.Timeout, cc.Retry.MaxAttempts)
	}

	c, err := client.New(cc)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	c.Close()
}

func TestConfig_LoggingConfig(t *testing.T) {
	cfg := &Config{Logger: Logger{Level: logging.LevelWarn, Pretty: true}}

	lc := cfg.LoggingConfig()
	if lc.Level != logging.LevelWarn || !lc.Pretty || lc.Output == nil {
		t.Errorf("LoggingConfig() = %+v", lc)
	}
}
