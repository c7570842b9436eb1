package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  port: "9090"
store:
  backend: redis
redis:
  addr: localhost:6379
quiz:
  ttl: 5m
cors:
  allowedOrigins: ["https://quiz.example.com"]
retry:
  maxAttempts: 5
`

// chdir moves into dir so Load does not pick up a stray .env.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Store.Backend != BackendRedis || cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || TTLDuration(cfg.Quiz.TTL, time.Minute) != 5*time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "7070")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_URL", "postgres://quiz@localhost/quiz")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7070" || cfg.Store.Backend != BackendPostgres || len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("AUTH_JWT_SECRET", "")
	os.Unsetenv("AUTH_JWT_SECRET")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTH_JWT_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" || cfg.Store.Backend != BackendMemory {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateBackends(t *testing.T) {
	chdir(t, t.TempDir())
	for _, body := range []string{
		"store:\n  backend: redis\n",
		"store:\n  backend: postgres\n",
		"store:\n  backend: cassandra\n",
	} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: %s", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("bogus: %s", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("90s: %s", got)
	}
}
