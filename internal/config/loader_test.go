package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var optionalKeys = []string{
	"LIVECLASS_ENV",
	"LIVECLASS_HTTP_PORT",
	"LIVECLASS_SQLITE_DSN",
	"LIVECLASS_TIMEZONE",
	"LIVECLASS_STREAM_TOKEN_TTL",
	"LIVECLASS_REDIS_ADDR",
	"LIVECLASS_MATERIALIZE_INTERVAL",
	"LIVECLASS_MATERIALIZE_HORIZON_DAYS",
	"LIVECLASS_UPCOMING_HORIZON_DAYS",
	"LIVECLASS_ENV_FILE",
}

func unsetAll(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		unsetAll(t, optionalKeys...)
		t.Setenv("LIVECLASS_AUTH_SECRET", "auth-secret")
		t.Setenv("LIVECLASS_STREAM_SECRET", "stream-secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.Env != EnvLocal {
			t.Fatalf("expected local env, got %q", cfg.Env)
		}
		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:liveclass.db?_pragma=foreign_keys(1)" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.Location == nil || cfg.Location.String() != "Africa/Cairo" {
			t.Fatalf("expected Africa/Cairo reference timezone, got %v", cfg.Location)
		}
		if cfg.MaterializeInterval != time.Minute || cfg.MaterializeHorizon != 14 || cfg.UpcomingHorizon != 14 {
			t.Fatalf("unexpected materialization defaults: %+v", cfg)
		}
		if cfg.RedisAddr != "" {
			t.Fatalf("expected redis to be disabled by default, got %q", cfg.RedisAddr)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		unsetAll(t, append(optionalKeys, "LIVECLASS_AUTH_SECRET", "LIVECLASS_STREAM_SECRET")...)

		if _, err := Load(); err == nil {
			t.Fatal("expected error when required values are missing")
		}
	})

	t.Run("reports blank secrets by name", func(t *testing.T) {
		unsetAll(t, optionalKeys...)
		t.Setenv("LIVECLASS_AUTH_SECRET", "  ")
		t.Setenv("LIVECLASS_STREAM_SECRET", "stream-secret")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "LIVECLASS_AUTH_SECRET") {
			t.Fatalf("expected missing auth secret error, got %v", err)
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		unsetAll(t, optionalKeys...)
		t.Setenv("LIVECLASS_AUTH_SECRET", "auth-secret")
		t.Setenv("LIVECLASS_STREAM_SECRET", "stream-secret")
		t.Setenv("LIVECLASS_ENV", "prod")
		t.Setenv("LIVECLASS_HTTP_PORT", "9090")
		t.Setenv("LIVECLASS_TIMEZONE", "UTC")
		t.Setenv("LIVECLASS_MATERIALIZE_INTERVAL", "30s")
		t.Setenv("LIVECLASS_UPCOMING_HORIZON_DAYS", "30")
		t.Setenv("LIVECLASS_REDIS_ADDR", "localhost:6379")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 || cfg.Env != EnvProd {
			t.Fatalf("unexpected values: %+v", cfg)
		}
		if cfg.MaterializeInterval != 30*time.Second {
			t.Fatalf("expected 30s interval, got %s", cfg.MaterializeInterval)
		}
		if cfg.UpcomingHorizon != 30 {
			t.Fatalf("expected upcoming horizon 30, got %d", cfg.UpcomingHorizon)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC, got %v", cfg.Location)
		}
		if cfg.RedisAddr != "localhost:6379" {
			t.Fatalf("unexpected redis address %q", cfg.RedisAddr)
		}
	})

	t.Run("collects invalid values", func(t *testing.T) {
		unsetAll(t, optionalKeys...)
		t.Setenv("LIVECLASS_AUTH_SECRET", "auth-secret")
		t.Setenv("LIVECLASS_STREAM_SECRET", "stream-secret")
		t.Setenv("LIVECLASS_ENV", "staging")
		t.Setenv("LIVECLASS_TIMEZONE", "Mars/Olympus")
		t.Setenv("LIVECLASS_UPCOMING_HORIZON_DAYS", "0")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		for _, key := range []string{"LIVECLASS_ENV", "LIVECLASS_TIMEZONE", "LIVECLASS_UPCOMING_HORIZON_DAYS"} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in error, got %q", key, err.Error())
			}
		}
	})

	t.Run("reports missing secrets together with bad values", func(t *testing.T) {
		unsetAll(t, append(optionalKeys, "LIVECLASS_AUTH_SECRET", "LIVECLASS_STREAM_SECRET")...)
		t.Setenv("LIVECLASS_STREAM_TOKEN_TTL", "forever")
		t.Setenv("LIVECLASS_HTTP_PORT", "http")
		t.Setenv("LIVECLASS_MATERIALIZE_HORIZON_DAYS", "two weeks")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, key := range []string{
			"LIVECLASS_AUTH_SECRET",
			"LIVECLASS_STREAM_SECRET",
			"LIVECLASS_STREAM_TOKEN_TTL",
			"LIVECLASS_HTTP_PORT",
			"LIVECLASS_MATERIALIZE_HORIZON_DAYS",
		} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in error, got %q", key, err.Error())
			}
		}
	})

	t.Run("reads secrets from an env file", func(t *testing.T) {
		unsetAll(t, append(optionalKeys, "LIVECLASS_AUTH_SECRET", "LIVECLASS_STREAM_SECRET")...)
		t.Cleanup(func() { unsetAll(t, "LIVECLASS_AUTH_SECRET", "LIVECLASS_STREAM_SECRET", "LIVECLASS_HTTP_PORT") })

		path := filepath.Join(t.TempDir(), "liveclass.env")
		content := "LIVECLASS_AUTH_SECRET=file-auth\nLIVECLASS_STREAM_SECRET=file-stream\nLIVECLASS_HTTP_PORT=7070\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write env file: %v", err)
		}
		t.Setenv("LIVECLASS_ENV_FILE", path)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.AuthSecret != "file-auth" || cfg.StreamSecret != "file-stream" || cfg.HTTPPort != 7070 {
			t.Fatalf("expected values from env file, got %+v", cfg)
		}
	})
}
