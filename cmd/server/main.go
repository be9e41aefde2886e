// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package main is the entry point for the OAuthBridge server.
//
// OAuthBridge is a self-hosted OAuth 2.0 authorization-code broker: it
// holds the client secrets for a catalog of storage providers, walks
// end users through the provider consent flow, and hands back an
// AuthId that CLI tools exchange for short-lived access tokens via
// POST /refresh.
//
// # Startup Order
//
//  1. Configuration: environment variables over an optional YAML file
//     over built-in defaults (Koanf v2)
//  2. Logging: zerolog, JSON by default
//  3. Secrets: plain dotenv, inline base64, or an encrypted container
//  4. Service catalog: built-in providers merged with CONFIGFILE
//  5. Credential store (optional): STORAGE directory for V1 AuthIds
//  6. HTTP server under a Suture supervisor tree
//
// # Configuration
//
// Required environment variables:
//   - HOSTNAME: public hostname used in callback URIs
//   - APPNAME: short application name shown on rendered pages
//
// Common optional variables:
//   - SERVICES: comma-separated catalog subset (e.g. "gd,db,od")
//   - SECRETS: dotenv path or "base64:<...>" inline secret table
//   - SECRETS_PASSPHRASE: decrypts an encrypted secrets container
//   - CONFIGFILE: YAML catalog override (path or base64)
//   - STORAGE: directory (or file:// URL) for V1 credential files;
//     unset runs the broker stateless with v2 AuthIds only
//   - HTTP_PORT: listener port (default 8080)
//   - REVOKED_STATUS_CODE: 200 or 400 (default 400)
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the listener stops
// accepting connections and in-flight requests get 10 seconds to
// complete.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/oauthbridge/internal/api"
	"github.com/tomtom215/oauthbridge/internal/catalog"
	"github.com/tomtom215/oauthbridge/internal/config"
	"github.com/tomtom215/oauthbridge/internal/logging"
	"github.com/tomtom215/oauthbridge/internal/render"
	"github.com/tomtom215/oauthbridge/internal/storage"
	"github.com/tomtom215/oauthbridge/internal/supervisor"
	"github.com/tomtom215/oauthbridge/internal/upstream"
)

// cacheGaugeInterval is how often cache sizes are published as metrics.
const cacheGaugeInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("hostname", cfg.Hostname).
		Str("app", cfg.AppName).
		Msg("Starting OAuthBridge")

	secrets, err := config.LoadSecrets(cfg.Secrets, cfg.SecretsPassphrase)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load secrets")
	}

	cat, err := catalog.Load(catalog.LoadOptions{
		Hostname:   cfg.Hostname,
		ConfigFile: cfg.ConfigFile,
		Services:   cfg.Services,
		Secrets:    secrets,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load service catalog")
	}
	if cat.Len() == 0 {
		logging.Fatal().Msg("No services configured; set SECRETS or CONFIGFILE")
	}

	var store *storage.Store
	if cfg.Storage != "" {
		dir, err := storage.ParseLocation(cfg.Storage)
		if err != nil {
			logging.Fatal().Err(err).Msg("Invalid STORAGE location")
		}
		store, err = storage.New(dir)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open credential store")
		}
		logging.Info().Str("dir", dir).Msg("Credential store opened")
	} else {
		logging.Info().Msg("STORAGE not set; running stateless (v2 AuthIds only)")
	}

	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to parse page templates")
	}

	tokens := upstream.NewClient(cfg.Server.Timeout)
	handler := api.NewHandler(cfg, cat, store, tokens, renderer)
	router := api.NewRouter(cfg, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	tree.AddMaintenanceService(supervisor.NewTickerService("cache-gauges", cacheGaugeInterval, func(context.Context) {
		handler.ReportCacheSizes()
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor tree terminated")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Some services did not stop in time")
	}
	logging.Info().Msg("Shutdown complete")
}
