// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/oauthbridge/internal/logging"
	"github.com/tomtom215/oauthbridge/internal/metrics"
	"github.com/tomtom215/oauthbridge/internal/upstream"
)

// tokenReply is the /refresh response body.
type tokenReply struct {
	AccessToken string `json:"access_token"`
	Expires     int64  `json:"expires"`
	Type        string `json:"type"`
}

// Refresh converts an AuthId into a short-lived access token, serving
// from the in-memory cache when the cached token still has more than 30
// seconds of validity. V1 and V2 AuthIds dispatch by prefix.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	authID := authIDFromRequest(r)
	if authID == "" {
		writeError(w, r, badRequest("Missing authid"))
		return
	}

	if strings.HasPrefix(authID, "v2:") {
		h.refreshV2(w, r, authID)
		return
	}
	h.refreshV1(w, r, authID)
}

func (h *Handler) refreshV2(w http.ResponseWriter, r *http.Request, authID string) {
	// SplitN keeps colons inside the refresh token intact; CompleteLogin
	// mints whatever token the provider issued.
	parts := strings.SplitN(authID, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		writeError(w, r, badRequest("Invalid authid"))
		return
	}
	serviceID, refreshToken := parts[1], parts[2]

	svc, ok := h.catalog.Get(serviceID)
	if !ok {
		writeError(w, r, badRequest("No such service"))
		return
	}
	if len(refreshToken) < minTokenLen {
		writeError(w, r, badRequest("Invalid refresh token"))
		return
	}

	cacheKey := v2CacheKey(refreshToken, svc.ID)
	if h.serveCached(w, "v2", cacheKey, svc.ID) {
		return
	}

	resp, err := h.tokens.Refresh(r.Context(), svc.AuthURL, svc.ClientID, svc.ClientSecret, refreshToken, upstream.RefreshOptions{
		OmitRedirectURI: svc.NoRedirectURIForRefreshRequest,
		RedirectURI:     svc.RedirectURI,
	})
	if err != nil {
		metrics.RefreshRequests.WithLabelValues("v2", "rejected").Inc()
		writeError(w, r, upstreamFailure("Failed to refresh the access token", err))
		return
	}

	metrics.RefreshRequests.WithLabelValues("v2", "refreshed").Inc()
	h.cacheAndReply(w, cacheKey, svc.ID, resp)
}

func (h *Handler) refreshV1(w http.ResponseWriter, r *http.Request, authID string) {
	keyID, password, found := strings.Cut(authID, ":")
	if !found || keyID == "" || password == "" {
		writeError(w, r, badRequest("Invalid authid"))
		return
	}
	if h.store == nil {
		writeError(w, r, badRequest("Storage is not configured on this server"))
		return
	}

	cacheKey := v1CacheKey(password, keyID)
	if h.serveCached(w, "v1", cacheKey, "") {
		return
	}

	entry, err := h.store.Get(r.Context(), keyID, password)
	metrics.RecordStoreOperation("get", err)
	if err != nil {
		metrics.RefreshRequests.WithLabelValues("v1", "rejected").Inc()
		writeError(w, r, unauthorized("Unauthorized", "Invalid key or password"))
		return
	}

	svc, ok := h.catalog.Get(entry.ServiceID)
	if !ok {
		writeError(w, r, badRequest("No such service"))
		return
	}
	if len(entry.RefreshToken) < minTokenLen {
		writeError(w, r, badRequest("Invalid refresh token"))
		return
	}

	resp, err := h.tokens.Refresh(r.Context(), svc.AuthURL, svc.ClientID, svc.ClientSecret, entry.RefreshToken, upstream.RefreshOptions{
		OmitRedirectURI: svc.NoRedirectURIForRefreshRequest,
		RedirectURI:     svc.RedirectURI,
	})
	if err != nil {
		metrics.RefreshRequests.WithLabelValues("v1", "rejected").Inc()
		writeError(w, r, upstreamFailure("Failed to refresh the access token", err))
		return
	}

	// Rewrite the stored entry under the same credentials. Fields the
	// provider omitted keep their prior values; in particular a missing
	// refresh_token means the old one stays valid.
	if resp.AccessToken != "" {
		entry.AccessToken = resp.AccessToken
	}
	if resp.RefreshToken != "" {
		entry.RefreshToken = resp.RefreshToken
	}
	if resp.Raw != "" {
		entry.Blob = resp.Raw
	}
	entry.Expires = storedExpiry(resp)

	err = h.store.Put(r.Context(), keyID, password, entry)
	metrics.RecordStoreOperation("put", err)
	if err != nil {
		writeError(w, r, internalError("Failed to store rotated credentials", err))
		return
	}

	metrics.RefreshRequests.WithLabelValues("v1", "refreshed").Inc()
	logging.Ctx(r.Context()).Debug().Str("service", svc.ID).Msg("Access token refreshed")
	h.cacheAndReply(w, cacheKey, svc.ID, resp)
}

// serveCached writes a cached access token if one exists with more than
// minServeValidity remaining. Returns true when the response was served.
func (h *Handler) serveCached(w http.ResponseWriter, version, cacheKey, serviceID string) bool {
	cached, ok := h.access.Get(cacheKey)
	remaining := time.Until(cached.Expires)
	if !ok || remaining <= minServeValidity {
		metrics.RecordCacheAccess("token", false)
		return false
	}

	metrics.RecordCacheAccess("token", true)
	metrics.RefreshRequests.WithLabelValues(version, "cache_hit").Inc()
	if serviceID == "" {
		serviceID = cached.ServiceID
	}
	writeJSON(w, http.StatusOK, tokenReply{
		AccessToken: cached.Token,
		Expires:     int64(remaining.Seconds()),
		Type:        serviceID,
	})
	return true
}

// cacheAndReply stores the freshly-minted token and answers the client.
// Both see the provider's expires_in shortened by the slack window.
func (h *Handler) cacheAndReply(w http.ResponseWriter, cacheKey, serviceID string, resp *upstream.TokenResponse) {
	validity := time.Duration(resp.ExpiresIn)*time.Second - expirySlack
	if validity > 0 {
		h.access.SetWithTTL(cacheKey, accessToken{
			Token:     resp.AccessToken,
			Expires:   time.Now().Add(validity),
			ServiceID: serviceID,
		}, validity)
	}

	expires := int64(validity.Seconds())
	if expires < 0 {
		expires = 0
	}
	writeJSON(w, http.StatusOK, tokenReply{
		AccessToken: resp.AccessToken,
		Expires:     expires,
		Type:        serviceID,
	})
}
