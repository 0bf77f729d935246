// Package config resolves runtime settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/namefinder/internal/gcp"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath             = "CONFIG_PATH"
	EnvPort                   = "PORT"
	EnvAllowedOrigins         = "ALLOWED_ORIGINS"
	EnvTrustedProxies         = "TRUSTED_PROXIES"
	EnvMaxUploadBytes         = "MAX_UPLOAD_BYTES"
	EnvStagingBucket          = "STAGING_BUCKET"
	EnvRateLimitMaxRequests   = "RATE_LIMIT_MAX_REQUESTS"
	EnvRateLimitWindow        = "RATE_LIMIT_WINDOW"
	EnvRateLimitSweepInterval = "RATE_LIMIT_SWEEP_INTERVAL"
	EnvRateLimitRedisAddr     = "RATE_LIMIT_REDIS_ADDR"
	EnvRateLimitRedisPassword = "RATE_LIMIT_REDIS_PASSWORD"
	EnvRateLimitRedisDB       = "RATE_LIMIT_REDIS_DB"
	EnvRateLimitRedisPrefix   = "RATE_LIMIT_REDIS_PREFIX"
	EnvOCRMaxConcurrent       = "OCR_MAX_CONCURRENT"
	EnvOCRTimeout             = "OCR_TIMEOUT"
)

// envCloudService is set by Cloud Functions and Cloud Run on every instance.
const envCloudService = "K_SERVICE"

// Hosted dev environment variables used to derive extra CORS origins.
const (
	envReplitDevDomain = "REPLIT_DEV_DOMAIN"
	envReplSlug        = "REPL_SLUG"
	envReplOwner       = "REPL_OWNER"
)

const (
	defaultConfigPath           = "./config.yaml"
	defaultPort                 = "8080"
	defaultMaxUploadBytes       = 10 * 1024 * 1024
	defaultRateLimitMax         = 10
	defaultRateLimitWindow      = 60 * time.Second
	defaultRateLimitSweep       = 5 * time.Minute
	defaultRateLimitRedisPrefix = "namefinder:ratelimit"
	defaultOCRMaxConcurrent     = 2
	defaultOCRTimeout           = 60 * time.Second
)

// Config holds every resolved setting.
//
// TrustedProxies lists the proxy addresses or CIDRs whose X-Forwarded-For is
// believed. It is empty by default, so the client key is the socket peer.
// Deployments behind a front-end proxy must set TRUSTED_PROXIES, otherwise
// every caller shares the proxy's rate limit window.
type Config struct {
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed-origins"`
	TrustedProxies []string        `yaml:"trusted-proxies"`
	MaxUploadBytes int64           `yaml:"max-upload-bytes"`
	StagingBucket  string          `yaml:"staging-bucket"`
	RateLimit      RateLimitConfig `yaml:"rate-limit"`
	OCR            OCRConfig       `yaml:"ocr"`
}

type RateLimitConfig struct {
	MaxRequests   int           `yaml:"max-requests"`
	Window        time.Duration `yaml:"window"`
	SweepInterval time.Duration `yaml:"sweep-interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig enables the shared limiter when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type OCRConfig struct {
	MaxConcurrent int           `yaml:"max-concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:           defaultPort,
		AllowedOrigins: defaultOrigins(),
		MaxUploadBytes: defaultMaxUploadBytes,
		RateLimit: RateLimitConfig{
			MaxRequests:   defaultRateLimitMax,
			Window:        defaultRateLimitWindow,
			SweepInterval: defaultRateLimitSweep,
			Redis:         RedisConfig{Prefix: defaultRateLimitRedisPrefix},
		},
		OCR: OCRConfig{
			MaxConcurrent: defaultOCRMaxConcurrent,
			Timeout:       defaultOCRTimeout,
		},
	}
}

// defaultOrigins allows the local dev server plus the hosted dev origins when
// the hosting environment advertises them.
func defaultOrigins() []string {
	origins := []string{"http://localhost:5000", "https://localhost:5000"}
	if domain := strings.TrimSpace(os.Getenv(envReplitDevDomain)); domain != "" {
		origins = append(origins, "https://"+domain)
	}
	slug := strings.TrimSpace(os.Getenv(envReplSlug))
	owner := strings.TrimSpace(os.Getenv(envReplOwner))
	if slug != "" && owner != "" {
		origins = append(origins, fmt.Sprintf("https://%s.%s.repl.co", slug, owner))
	}
	return origins
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = defaultConfigPath
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadDotEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment are kept.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load resolves the configuration. An empty path falls back to CONFIG_PATH
// and then ./config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		path = gcp.GetEnv(EnvConfigPath, "")
	}
	path = ResolveConfigPath(path)

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, errUnmarshal)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range cfg.DeploymentWarnings() {
		slog.Warn(w)
	}
	return &cfg, nil
}

// DeploymentWarnings lists settings that are valid but unsafe for the
// environment the process is running in.
func (c *Config) DeploymentWarnings() []string {
	var warnings []string
	if strings.TrimSpace(os.Getenv(envCloudService)) != "" && len(c.TrustedProxies) == 0 {
		warnings = append(warnings, fmt.Sprintf("%s is not set; behind the platform proxy every client shares one rate limit window.", EnvTrustedProxies))
	}
	return warnings
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(gcp.GetEnv(EnvPort, "")); v != "" {
		c.Port = v
	}
	if v := gcp.GetEnv(EnvAllowedOrigins, ""); strings.TrimSpace(v) != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := gcp.GetEnv(EnvTrustedProxies, ""); strings.TrimSpace(v) != "" {
		c.TrustedProxies = splitList(v)
	}
	if v := strings.TrimSpace(gcp.GetEnv(EnvStagingBucket, "")); v != "" {
		c.StagingBucket = v
	}
	if v := strings.TrimSpace(gcp.GetEnv(EnvRateLimitRedisAddr, "")); v != "" {
		c.RateLimit.Redis.Addr = v
	}
	if v := gcp.GetEnv(EnvRateLimitRedisPassword, ""); v != "" {
		c.RateLimit.Redis.Password = v
	}
	if v := strings.TrimSpace(gcp.GetEnv(EnvRateLimitRedisPrefix, "")); v != "" {
		c.RateLimit.Redis.Prefix = v
	}

	var err error
	if c.MaxUploadBytes, err = envInt64(EnvMaxUploadBytes, c.MaxUploadBytes); err != nil {
		return err
	}
	if c.RateLimit.MaxRequests, err = envInt(EnvRateLimitMaxRequests, c.RateLimit.MaxRequests); err != nil {
		return err
	}
	if c.RateLimit.Redis.DB, err = envInt(EnvRateLimitRedisDB, c.RateLimit.Redis.DB); err != nil {
		return err
	}
	if c.OCR.MaxConcurrent, err = envInt(EnvOCRMaxConcurrent, c.OCR.MaxConcurrent); err != nil {
		return err
	}
	if c.RateLimit.Window, err = envDuration(EnvRateLimitWindow, c.RateLimit.Window); err != nil {
		return err
	}
	if c.RateLimit.SweepInterval, err = envDuration(EnvRateLimitSweepInterval, c.RateLimit.SweepInterval); err != nil {
		return err
	}
	if c.OCR.Timeout, err = envDuration(EnvOCRTimeout, c.OCR.Timeout); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate limit max requests must be positive, got %d", c.RateLimit.MaxRequests))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window))
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("rate limit sweep interval must be positive, got %s", c.RateLimit.SweepInterval))
	}
	if c.RateLimit.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("rate limit redis db must not be negative, got %d", c.RateLimit.Redis.DB))
	}
	if c.OCR.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("ocr max concurrent must be positive, got %d", c.OCR.MaxConcurrent))
	}
	if c.OCR.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ocr timeout must be positive, got %s", c.OCR.Timeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// envDuration accepts Go durations ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
