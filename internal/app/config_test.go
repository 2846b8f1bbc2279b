package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progressledger.yaml")
	yaml := `
http_addr: ":9090"
auto_accept_threshold: 0.9
db:
  driver: sqlite
  sqlite_path: /tmp/ledger.db
jobs:
  executor: local
  lease_ttl_seconds: 600
  process_batch_size: 25
redis:
  addr: redis:6379
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("PROCESS_BATCH_SIZE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("env should override file, got %q", cfg.HTTPAddr)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.SQLitePath != "/tmp/ledger.db" {
		t.Fatalf("db config from file: %+v", cfg.DB)
	}
	if cfg.AutoAcceptThreshold != 0.9 || cfg.Jobs.LeaseTTLSeconds != 600 || cfg.Jobs.ProcessBatchSize != 25 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.Channel == "" {
		t.Fatalf("redis config: %+v", cfg.Redis)
	}
	if cfg.Jobs.Heartbeat() <= 0 {
		t.Fatalf("heartbeat default lost")
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JOB_EXECUTOR", "cron")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected unknown executor to fail")
	}
	t.Setenv("JOB_EXECUTOR", "Temporal")
	t.Setenv("AUTO_ACCEPT_THRESHOLD", "1.5")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected threshold above 1 to fail")
	}
	t.Setenv("AUTO_ACCEPT_THRESHOLD", "")
	cfg, err := LoadConfig()
	if err != nil || cfg.Jobs.Executor != ExecutorTemporal {
		t.Fatalf("executor should normalize, got %q err=%v", cfg.Jobs.Executor, err)
	}
}

func TestNewWiresSQLiteApp(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("LOG_MODE", "test")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("JOB_EXECUTOR", "local")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	a, err := New(t.Context(), cfg, ModeServe)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Server == nil || a.Services.Worker == nil || a.Services.Jobs == nil {
		t.Fatalf("app not fully wired")
	}
	want := []string{"classify", "ingest", "process"}
	got := a.Services.Registry.Types()
	if len(got) != len(want) {
		t.Fatalf("registered types %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("registered types %v, want %v", got, want)
		}
	}
}
