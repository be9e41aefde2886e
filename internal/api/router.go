// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/oauthbridge/internal/config"
	"github.com/tomtom215/oauthbridge/internal/middleware"
)

// NewRouter assembles the chi router: shared middleware, the broker's
// endpoints with stricter rate limits on the credential-minting routes,
// the metrics and health endpoints, and optional static serving for
// ACME challenges and assets.
func NewRouter(cfg *config.Config, h *Handler) chi.Router {
	cm := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-AuthID"},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if len(cfg.Security.CORSOrigins) > 0 {
		r.Use(cm.CORS())
	}

	r.Group(func(g chi.Router) {
		g.Use(cm.RateLimit())

		g.Get("/", h.Index)
		g.Get("/logged-in", h.CompleteLogin)
		g.Get("/cli-token", h.CliTokenForm)
		g.Get("/fetch", h.Fetch)
		g.Get("/privacy-policy", h.PrivacyPolicy)
		g.Get("/revoke", h.RevokeForm)
		g.Post("/revoked", h.CompleteRevoke)
	})

	r.Group(func(g chi.Router) {
		g.Use(cm.AuthRateLimit())

		g.Get("/login", h.StartLogin)
		g.Post("/cli-token-login", h.CliTokenLogin)
		g.Get("/refresh", h.Refresh)
		g.Post("/refresh", h.Refresh)
	})

	r.Get("/api/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.StaticPath != "" {
		fileServer := http.FileServer(http.Dir(cfg.StaticPath))
		r.Handle("/.well-known/*", fileServer)
		r.Handle("/*", fileServer)
	}

	return r
}
