package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv(envReplitDevDomain, "")
	t.Setenv(envReplSlug, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.MaxUploadBytes != 10*1024*1024 {
		t.Fatalf("expected 10 MiB limit, got %d", cfg.MaxUploadBytes)
	}
	if cfg.RateLimit.MaxRequests != 10 || cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected 10 per minute, got %d per %s", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}
	if cfg.OCR.MaxConcurrent != 2 || cfg.OCR.Timeout != time.Minute {
		t.Fatalf("expected 2 OCR slots with 60s timeout, got %d / %s", cfg.OCR.MaxConcurrent, cfg.OCR.Timeout)
	}
	want := []string{"http://localhost:5000", "https://localhost:5000"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("expected origins %v, got %v", want, cfg.AllowedOrigins)
	}
}

func TestDefaultOriginsIncludeHostedDevOrigins(t *testing.T) {
	t.Setenv(envReplitDevDomain, "abc.worf.replit.dev")
	t.Setenv(envReplSlug, "namefinder")
	t.Setenv(envReplOwner, "lleong")

	got := defaultOrigins()
	want := []string{
		"http://localhost:5000",
		"https://localhost:5000",
		"https://abc.worf.replit.dev",
		"https://namefinder.lleong.repl.co",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLoadReadsYAML(t *testing.T) {
	path := writeConfig(t, `
port: "9090"
allowed-origins:
  - https://app.example.org
max-upload-bytes: 2048
rate-limit:
  max-requests: 3
  window: 30s
  redis:
    addr: 127.0.0.1:6379
ocr:
  max-concurrent: 4
  timeout: 15s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != "9090" || cfg.MaxUploadBytes != 2048 {
		t.Fatalf("expected port 9090 and 2048 bytes, got %s / %d", cfg.Port, cfg.MaxUploadBytes)
	}
	if cfg.RateLimit.MaxRequests != 3 || cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("expected 3 per 30s, got %d per %s", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}
	if cfg.RateLimit.SweepInterval != 5*time.Minute {
		t.Fatalf("expected default sweep interval to survive, got %s", cfg.RateLimit.SweepInterval)
	}
	if cfg.RateLimit.Redis.Addr != "127.0.0.1:6379" || cfg.RateLimit.Redis.Prefix != "namefinder:ratelimit" {
		t.Fatalf("expected redis addr with default prefix, got %+v", cfg.RateLimit.Redis)
	}
	if cfg.OCR.MaxConcurrent != 4 || cfg.OCR.Timeout != 15*time.Second {
		t.Fatalf("expected 4 slots / 15s, got %d / %s", cfg.OCR.MaxConcurrent, cfg.OCR.Timeout)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://app.example.org"}) {
		t.Fatalf("expected origins from file, got %v", cfg.AllowedOrigins)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "rate-limit:\n  max-requests: 3\n")
	t.Setenv(EnvRateLimitMaxRequests, "25")
	t.Setenv(EnvRateLimitWindow, "120")
	t.Setenv(EnvOCRTimeout, "90s")
	t.Setenv(EnvAllowedOrigins, " https://a.example , ,https://b.example")
	t.Setenv(EnvTrustedProxies, "10.0.0.0/8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.RateLimit.MaxRequests != 25 {
		t.Fatalf("expected env max requests 25, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window != 2*time.Minute {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.RateLimit.Window)
	}
	if cfg.OCR.Timeout != 90*time.Second {
		t.Fatalf("expected 90s timeout, got %s", cfg.OCR.Timeout)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("expected trimmed origin list, got %v", cfg.AllowedOrigins)
	}
	if !reflect.DeepEqual(cfg.TrustedProxies, []string{"10.0.0.0/8"}) {
		t.Fatalf("expected trusted proxies, got %v", cfg.TrustedProxies)
	}
}

func TestLoadUsesConfigPathEnv(t *testing.T) {
	path := writeConfig(t, "port: \"7070\"\n")
	t.Setenv(EnvConfigPath, path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("expected port from CONFIG_PATH file, got %s", cfg.Port)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "rate-limit: [")); err == nil {
			t.Fatalf("expected parse error")
		}
	})
	t.Run("env", func(t *testing.T) {
		t.Setenv(EnvOCRMaxConcurrent, "two")
		_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		if err == nil || !strings.Contains(err.Error(), EnvOCRMaxConcurrent) {
			t.Fatalf("expected error naming %s, got %v", EnvOCRMaxConcurrent, err)
		}
	})
	t.Run("validate", func(t *testing.T) {
		t.Setenv(EnvRateLimitMaxRequests, "0")
		t.Setenv(EnvMaxUploadBytes, "-1")
		_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		if err == nil {
			t.Fatalf("expected validation error")
		}
		for _, want := range []string{"max upload bytes", "rate limit max requests"} {
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error to mention %q, got %v", want, err)
			}
		}
	})
}

func TestResolveConfigPath(t *testing.T) {
	got := ResolveConfigPath("  ")
	if !filepath.IsAbs(got) || filepath.Base(got) != "config.yaml" {
		t.Fatalf("expected absolute default path, got %q", got)
	}
}

func TestDeploymentWarningsRequireTrustedProxiesInCloud(t *testing.T) {
	t.Setenv(envCloudService, "")
	cfg := Default()
	if w := cfg.DeploymentWarnings(); len(w) != 0 {
		t.Fatalf("expected no warnings outside the cloud, got %v", w)
	}

	t.Setenv(envCloudService, "text-extractor")
	w := cfg.DeploymentWarnings()
	if len(w) != 1 || !strings.Contains(w[0], EnvTrustedProxies) {
		t.Fatalf("expected %s warning, got %v", EnvTrustedProxies, w)
	}

	cfg.TrustedProxies = []string{"10.0.0.0/8"}
	if w := cfg.DeploymentWarnings(); len(w) != 0 {
		t.Fatalf("expected no warnings with trusted proxies set, got %v", w)
	}
}
