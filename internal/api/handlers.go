// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/oauthbridge/internal/cache"
	"github.com/tomtom215/oauthbridge/internal/catalog"
	"github.com/tomtom215/oauthbridge/internal/config"
	"github.com/tomtom215/oauthbridge/internal/metrics"
	"github.com/tomtom215/oauthbridge/internal/render"
	"github.com/tomtom215/oauthbridge/internal/storage"
	"github.com/tomtom215/oauthbridge/internal/upstream"
)

const (
	// stateTTL bounds how long a login may sit between the redirect to
	// the provider and the callback.
	stateTTL = 10 * time.Minute

	// fetchPendingTTL is the rendezvous window before completion;
	// fetchReadyTTL the pickup window after the AuthId is bound.
	fetchPendingTTL = 5 * time.Minute
	fetchReadyTTL   = 30 * time.Second

	// minFetchKeyLen: caller-chosen fetch-token keys shorter than this
	// are silently ignored.
	minFetchKeyLen = 9

	// minTokenLen applies to refresh tokens and CLI token blobs.
	minTokenLen = 6

	// expirySlack is subtracted from the provider's expires_in before a
	// token is handed to clients or cached.
	expirySlack = 10 * time.Second

	// minServeValidity: cached access tokens with less remaining
	// lifetime than this are treated as misses.
	minServeValidity = 30 * time.Second
)

// requestState is the transient record bound to one login's state key.
type requestState struct {
	ServiceID     string
	FetchTokenKey string
	UseV2         bool
}

// fetchSlot is the rendezvous entry a polling client reads via /fetch.
type fetchSlot struct {
	AuthID       string
	ErrorMessage string
}

// accessToken is one cached short-lived token.
type accessToken struct {
	Token     string
	Expires   time.Time
	ServiceID string
}

// Handler carries the broker's nine endpoint handlers and their shared
// state: the service catalog, the three TTL caches, the credential
// store (nil when running stateless), and the upstream token client.
type Handler struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	store    *storage.Store
	tokens   *upstream.Client
	renderer render.Renderer

	states     *cache.Cache[requestState]
	fetchSlots *cache.Cache[fetchSlot]
	access     *cache.Cache[accessToken]
}

// NewHandler wires the handlers. store may be nil; the broker then
// issues only stateless v2 AuthIds.
func NewHandler(cfg *config.Config, cat *catalog.Catalog, store *storage.Store, tokens *upstream.Client, renderer render.Renderer) *Handler {
	return &Handler{
		cfg:        cfg,
		catalog:    cat,
		store:      store,
		tokens:     tokens,
		renderer:   renderer,
		states:     cache.New[requestState](stateTTL),
		fetchSlots: cache.New[fetchSlot](fetchPendingTTL),
		access:     cache.New[accessToken](cache.DefaultTTL),
	}
}

// ReportCacheSizes publishes the current entry counts of the three TTL
// caches as gauges. Called periodically from the maintenance layer.
func (h *Handler) ReportCacheSizes() {
	metrics.CacheSize.WithLabelValues("state").Set(float64(h.states.Len()))
	metrics.CacheSize.WithLabelValues("fetch").Set(float64(h.fetchSlots.Len()))
	metrics.CacheSize.WithLabelValues("token").Set(float64(h.access.Len()))
}

// newStateKey draws 16 random bytes and hex-encodes them, yielding the
// 32-character lowercase state key handed to the provider.
func newStateKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// hashComponent is the cache-key transform for refresh-token material:
// SHA-256 encoded as standard base64 with padding.
func hashComponent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func v2CacheKey(refreshToken, serviceID string) string {
	return "/v2/token?id=" + hashComponent(refreshToken) + "&service=" + serviceID
}

func v1CacheKey(password, keyID string) string {
	return "/v1/token?password=" + hashComponent(password) + "&id=" + keyID
}

// storedExpiry computes a persisted entry's expiry from a provider
// response: the larger of expires and expires_in, floored at 1000 s.
func storedExpiry(resp *upstream.TokenResponse) time.Time {
	secs := resp.Expires
	if resp.ExpiresIn > secs {
		secs = resp.ExpiresIn
	}
	if secs < 1000 {
		secs = 1000
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

// writeJSON marshals v with the shared JSON codec and writes it under
// the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// authIDFromRequest collects the AuthId from the form (POST), the query
// string (GET), or the X-AuthID header in either mode.
func authIDFromRequest(r *http.Request) string {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			if v := r.PostForm.Get("authid"); v != "" {
				return v
			}
		}
	} else if v := r.URL.Query().Get("authid"); v != "" {
		return v
	}
	return r.Header.Get("X-AuthID")
}
