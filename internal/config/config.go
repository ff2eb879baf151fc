// Package config loads the server configuration.
//
// LAYERED LOADING (lowest to highest priority):
//  1. Defaults: defaultConfig() below
//  2. Config file: optional YAML, path from CONFIG_PATH or ./config.yaml
//  3. Environment variables: explicit mapping in envTransformFunc
//
// Only mapped environment variables are read. Anything else in the
// environment is ignored, so a stray PORT_FOO never leaks into config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable holding the YAML path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Site     SiteConfig     `koanf:"site"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Storage  StorageConfig  `koanf:"storage"`
	Email    EmailConfig    `koanf:"email"`
	Paddle   PaddleConfig   `koanf:"paddle"`
	Redis    RedisConfig    `koanf:"redis"`
	Security SecurityConfig `koanf:"security"`
	Plans    PlansConfig    `koanf:"plans"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type SiteConfig struct {
	// BaseURL prefixes every public share link: {base_url}/s/{publicId}.
	BaseURL string `koanf:"base_url"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	JWTSecret          string        `koanf:"jwt_secret"`
	TokenTTL           time.Duration `koanf:"token_ttl"`
	CookieSecure       bool          `koanf:"cookie_secure"`
	GitHubClientID     string        `koanf:"github_client_id"`
	GitHubClientSecret string        `koanf:"github_client_secret"`
	GitHubCallbackURL  string        `koanf:"github_callback_url"`
}

type StorageConfig struct {
	Endpoint        string `koanf:"endpoint"`
	Region          string `koanf:"region"`
	Bucket          string `koanf:"bucket"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`
	PublicBaseURL   string `koanf:"public_base_url"`
	MaxUploadBytes  int64  `koanf:"max_upload_bytes"`
	MaxFiles        int    `koanf:"max_files"`
}

type EmailConfig struct {
	SendGridAPIKey string `koanf:"sendgrid_api_key"`
	FromName       string `koanf:"from_name"`
	FromAddress    string `koanf:"from_address"`
}

type PaddleConfig struct {
	WebhookSecret string `koanf:"webhook_secret"`
	// InsecureSkipSignature processes webhooks whose signature fails to
	// verify. For local testing against the Paddle sandbox only.
	InsecureSkipSignature bool          `koanf:"insecure_skip_signature"`
	MaxSignatureAge       time.Duration `koanf:"max_signature_age"`
	PriceID               string        `koanf:"price_id"`
	ClientToken           string        `koanf:"client_token"`
	Environment           string        `koanf:"environment"`
}

type RedisConfig struct {
	URL      string        `koanf:"url"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type SecurityConfig struct {
	CORSOrigins     []string `koanf:"cors_origins"`
	RateLimitPerMin int      `koanf:"rate_limit_per_min"`
}

type PlansConfig struct {
	FreeSnippetLimit     int `koanf:"free_snippet_limit"`
	FreeBoilerplateLimit int `koanf:"free_boilerplate_limit"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Site: SiteConfig{
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Path: "data/vault.db",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Region:         "us-east-1",
			MaxUploadBytes: 10 << 20,
			MaxFiles:       20,
		},
		Email: EmailConfig{
			FromName:    "Snippet Vault",
			FromAddress: "noreply@localhost",
		},
		Paddle: PaddleConfig{
			MaxSignatureAge: 5 * time.Minute,
			Environment:     "sandbox",
		},
		Redis: RedisConfig{
			CacheTTL: 10 * time.Minute,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"http://localhost:8080"},
			RateLimitPerMin: 60,
		},
		Plans: PlansConfig{
			FreeSnippetLimit:     50,
			FreeBoilerplateLimit: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads defaults, the optional YAML file and the environment, then
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	cfg.Site.BaseURL = strings.TrimRight(cfg.Site.BaseURL, "/")
	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = cfg.Site.BaseURL + "/auth/github/callback"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values into slices. Values
// from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("config: setting %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"port":                 "server.port",
	"server_read_timeout":  "server.read_timeout",
	"server_write_timeout": "server.write_timeout",
	"server_idle_timeout":  "server.idle_timeout",
	"shutdown_timeout":     "server.shutdown_timeout",

	"site_url": "site.base_url",

	"db_path": "database.path",

	"jwt_secret":           "auth.jwt_secret",
	"token_ttl":            "auth.token_ttl",
	"cookie_secure":        "auth.cookie_secure",
	"github_client_id":     "auth.github_client_id",
	"github_client_secret": "auth.github_client_secret",
	"github_callback_url":  "auth.github_callback_url",

	"storage_endpoint":      "storage.endpoint",
	"storage_region":        "storage.region",
	"storage_bucket":        "storage.bucket",
	"storage_access_key_id": "storage.access_key_id",
	"storage_secret_key":    "storage.secret_access_key",
	"storage_path_style":    "storage.use_path_style",
	"storage_public_url":    "storage.public_base_url",
	"max_upload_bytes":      "storage.max_upload_bytes",
	"max_upload_files":      "storage.max_files",

	"sendgrid_api_key":   "email.sendgrid_api_key",
	"email_from_name":    "email.from_name",
	"email_from_address": "email.from_address",

	"paddle_webhook_secret":          "paddle.webhook_secret",
	"paddle_insecure_skip_signature": "paddle.insecure_skip_signature",
	"paddle_max_signature_age":       "paddle.max_signature_age",
	"paddle_price_id":                "paddle.price_id",
	"paddle_client_token":            "paddle.client_token",
	"paddle_environment":             "paddle.environment",

	"redis_url":       "redis.url",
	"redis_cache_ttl": "redis.cache_ttl",

	"cors_origins":       "security.cors_origins",
	"rate_limit_per_min": "security.rate_limit_per_min",

	"free_snippet_limit":     "plans.free_snippet_limit",
	"free_boilerplate_limit": "plans.free_boilerplate_limit",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc maps SITE_URL -> site.base_url and so on. Unmapped
// variables return "" and are skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
