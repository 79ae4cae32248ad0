package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://api.example.com/reports"
poll_interval: 5m
page_limit: 500
lookback_months: 3
max_pages: 40
request_timeout: 10s
retry:
  retries: 5
  base_delay: 250ms
  max_delay: 2s
storage:
  backend: sqlite
  path: /tmp/cache.db
output: /tmp/reports.json
log:
  level: DEBUG
  file: /tmp/reportsync.log
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIURL != "https://api.example.com/reports" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if cfg.PageLimit != 500 || cfg.LookbackMonths != 3 || cfg.MaxPages != 40 {
		t.Errorf("PageLimit/LookbackMonths/MaxPages = %d/%d/%d, want 500/3/40",
			cfg.PageLimit, cfg.LookbackMonths, cfg.MaxPages)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.Retry.RetryCount() != 5 || cfg.Retry.BaseDelay != 250*time.Millisecond || cfg.Retry.MaxDelay != 2*time.Second {
		t.Errorf("Retry = %d/%v/%v", cfg.Retry.RetryCount(), cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	}
	if cfg.Storage.Path != "/tmp/cache.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Output != "/tmp/reports.json" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want lower-cased debug", cfg.Log.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://api.example.com/reports"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, DefaultPollInterval)
	}
	if cfg.PageLimit != 20000 {
		t.Errorf("PageLimit = %d, want 20000", cfg.PageLimit)
	}
	if cfg.LookbackMonths != 1 {
		t.Errorf("LookbackMonths = %d, want 1", cfg.LookbackMonths)
	}
	if cfg.MaxPages != DefaultMaxPages || cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("MaxPages = %d, RequestTimeout = %v", cfg.MaxPages, cfg.RequestTimeout)
	}
	if cfg.Retry.RetryCount() != 3 {
		t.Errorf("RetryCount = %d, want 3", cfg.Retry.RetryCount())
	}
	if cfg.Retry.BaseDelay != DefaultBaseDelay || cfg.Retry.MaxDelay != DefaultMaxDelay {
		t.Errorf("Retry delays = %v/%v", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "info" || cfg.Log.MaxSizeMB != 10 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 28 {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Telemetry != nil {
		t.Error("expected Telemetry to be nil when block is omitted")
	}
}

func TestLoad_ZeroRetriesDisables(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://api.example.com/reports"
retry:
  retries: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retry.RetryCount() != 0 {
		t.Errorf("RetryCount = %d, want 0", cfg.Retry.RetryCount())
	}
}

func TestLoad_RedisBackend(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://api.example.com/reports"
storage:
  backend: redis
  redis_addr: "localhost:6379"
  redis_db: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.KeyPrefix != DefaultKeyPrefix {
		t.Errorf("KeyPrefix = %q, want %q", cfg.Storage.KeyPrefix, DefaultKeyPrefix)
	}
	if cfg.Storage.RedisDB != 2 {
		t.Errorf("RedisDB = %d, want 2", cfg.Storage.RedisDB)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing api_url", `poll_interval: 5m`, "api_url is required"},
		{"invalid api_url", `api_url: "not-a-url"`, "must be a valid http or https URL"},
		{"ftp api_url", `api_url: "ftp://example.com/reports"`, "must be a valid http or https URL"},
		{"poll too short", "api_url: https://x.test/r\npoll_interval: 30s", "too short"},
		{"poll too long", "api_url: https://x.test/r\npoll_interval: 25h", "too long"},
		{"negative page_limit", "api_url: https://x.test/r\npage_limit: -1", "page_limit"},
		{"lookback too large", "api_url: https://x.test/r\nlookback_months: 121", "lookback_months"},
		{"negative retries", "api_url: https://x.test/r\nretry:\n  retries: -1", "retry.retries"},
		{"base above max", "api_url: https://x.test/r\nretry:\n  base_delay: 10s\n  max_delay: 1s", "exceeds"},
		{"unknown backend", "api_url: https://x.test/r\nstorage:\n  backend: etcd", "storage.backend"},
		{"redis without addr", "api_url: https://x.test/r\nstorage:\n  backend: redis", "redis_addr"},
		{"bad log level", "api_url: https://x.test/r\nlog:\n  level: loud", "log.level"},
		{"unknown key", "api_url: https://x.test/r\nunknown_field: oops", "unknown_field"},
		{"telemetry without endpoint", "api_url: https://x.test/r\ntelemetry:\n  insecure: true", "otlp_endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(".config", "reportsync", "config.yaml")) {
		t.Errorf("DefaultPath = %q", path)
	}
}

func TestLoad_TelemetryValid(t *testing.T) {
	path := writeConfig(t, `
api_url: "https://api.example.com/reports"
telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true
  service_name: "my-reportsync"
  headers:
    Authorization: "Bearer secret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry == nil {
		t.Fatal("expected Telemetry to be non-nil")
	}
	if cfg.Telemetry.OTLPEndpoint != "localhost:4317" {
		t.Errorf("OTLPEndpoint = %q, want %q", cfg.Telemetry.OTLPEndpoint, "localhost:4317")
	}
	if !cfg.Telemetry.Insecure {
		t.Error("Insecure = false, want true")
	}
	if cfg.Telemetry.ServiceName != "my-reportsync" {
		t.Errorf("ServiceName = %q, want %q", cfg.Telemetry.ServiceName, "my-reportsync")
	}
	if cfg.Telemetry.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("Authorization header = %q", cfg.Telemetry.Headers["Authorization"])
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	zero := 0
	cfg := &Config{
		APIURL:       "https://api.example.com/reports",
		PollInterval: 30 * time.Minute,
		Retry:        RetryConfig{Retries: &zero},
		Storage:      StorageConfig{Backend: "redis", RedisAddr: "cache:6379", RedisPassword: "pw"},
		Output:       "/tmp/reports.json",
	}
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := cfg.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.APIURL != cfg.APIURL || got.PollInterval != 30*time.Minute || got.Output != cfg.Output {
		t.Errorf("loaded = %+v", got)
	}
	if got.Retry.RetryCount() != 0 {
		t.Errorf("RetryCount = %d, want 0", got.Retry.RetryCount())
	}
	if got.Storage.RedisAddr != "cache:6379" || got.Storage.RedisPassword != "pw" {
		t.Errorf("Storage = %+v", got.Storage)
	}
}
