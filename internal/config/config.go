// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package config loads broker configuration with Koanf v2 layered sources:
// built-in defaults, an optional YAML config file, and environment
// variables (highest priority). Secrets referenced by the service catalog
// are loaded separately, optionally from an encrypted file.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete broker configuration.
type Config struct {
	// Hostname is the public hostname used for callback URI templating.
	Hostname string `koanf:"hostname" validate:"required"`

	// AppName is the short application name shown on rendered pages and in
	// de-authorize instructions.
	AppName string `koanf:"app_name" validate:"required"`

	// DisplayName is the long page title; defaults to AppName.
	DisplayName string `koanf:"display_name"`

	// Services optionally restricts the catalog to a comma-separated set.
	Services []string `koanf:"services"`

	// Secrets is a file path or "base64:<…>" inline secret table.
	Secrets string `koanf:"secrets"`

	// SecretsPassphrase optionally decrypts the secrets file.
	SecretsPassphrase string `koanf:"secrets_passphrase"`

	// ConfigFile optionally overrides the service catalog (path or base64).
	ConfigFile string `koanf:"config_file"`

	// Storage is the V1 credential directory (path or file:// URL). When
	// empty the broker runs stateless and only issues v2 AuthIds.
	Storage string `koanf:"storage"`

	// PrivacyPolicyURL redirects /privacy-policy when set.
	PrivacyPolicyURL string `koanf:"privacy_policy_url" validate:"omitempty,url"`

	// StaticPath serves /.well-known and other static assets when set.
	StaticPath string `koanf:"static_path"`

	// RevokedStatusCode is the HTTP status returned on successful revoke.
	// The historical behavior is 400; operators may set 200.
	RevokedStatusCode int `koanf:"revoked_status_code" validate:"oneof=200 400"`

	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds rate limiting and CORS settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"gt=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, overridden by config file
// and environment variables during load.
func defaultConfig() *Config {
	return &Config{
		RevokedStatusCode: 400, // matches the original service; see /revoked
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration and applies derived defaults.
func (c *Config) Validate() error {
	if c.DisplayName == "" {
		c.DisplayName = c.AppName
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
