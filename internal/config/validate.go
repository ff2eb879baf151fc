package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate rejects configurations the server cannot run safely with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if u, err := url.Parse(c.Site.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("site.base_url must be an absolute http(s) URL, got %q", c.Site.BaseURL))
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters (JWT_SECRET)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}

	if c.Storage.Bucket != "" && c.Storage.PublicBaseURL == "" {
		errs = append(errs, errors.New("storage.public_base_url is required when storage.bucket is set"))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("storage.max_upload_bytes must be positive"))
	}
	if c.Storage.MaxFiles <= 0 {
		errs = append(errs, errors.New("storage.max_files must be positive"))
	}

	switch c.Paddle.Environment {
	case "sandbox", "production":
	default:
		errs = append(errs, fmt.Errorf("paddle.environment must be sandbox or production, got %q", c.Paddle.Environment))
	}
	if c.Paddle.InsecureSkipSignature && c.Paddle.Environment == "production" {
		errs = append(errs, errors.New("paddle.insecure_skip_signature cannot be enabled in production"))
	}
	if c.Paddle.MaxSignatureAge < 0 {
		errs = append(errs, errors.New("paddle.max_signature_age cannot be negative"))
	}

	if c.Plans.FreeSnippetLimit < 1 || c.Plans.FreeBoilerplateLimit < 1 {
		errs = append(errs, errors.New("plans limits must be at least 1"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// EmailEnabled reports whether a SendGrid key is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.SendGridAPIKey != ""
}

// StorageEnabled reports whether an object store bucket is configured.
func (c *Config) StorageEnabled() bool {
	return c.Storage.Bucket != ""
}

// GitHubEnabled reports whether GitHub sign-in can be offered.
func (c *Config) GitHubEnabled() bool {
	return c.Auth.GitHubClientID != "" && c.Auth.GitHubClientSecret != ""
}
