// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"net/http"
	"strings"

	"github.com/tomtom215/oauthbridge/internal/logging"
	"github.com/tomtom215/oauthbridge/internal/metrics"
	"github.com/tomtom215/oauthbridge/internal/render"
)

// RevokeForm renders the revocation entry page.
func (h *Handler) RevokeForm(w http.ResponseWriter, r *http.Request) {
	if err := h.renderer.Revoke(w, render.RevokeData{AppName: h.cfg.AppName}); err != nil {
		writeError(w, r, internalError("Failed to render page", err))
	}
}

// CompleteRevoke deletes the stored entry named by a V1 AuthId. The
// password must decrypt the entry first, proving the caller holds the
// credential and not just the key id.
func (h *Handler) CompleteRevoke(w http.ResponseWriter, r *http.Request) {
	authID := ""
	if err := r.ParseForm(); err == nil {
		authID = r.PostForm.Get("authid")
	}
	if authID == "" {
		authID = r.Header.Get("X-AuthID")
	}

	if strings.HasPrefix(authID, "v2:") {
		metrics.Revocations.WithLabelValues("unsupported").Inc()
		h.renderRevoked(w, r, http.StatusBadRequest,
			"This AuthId holds no state on this server. To withdraw access, de-authorize the application on the storage providers website.")
		return
	}

	keyID, password, found := strings.Cut(authID, ":")
	if !found || keyID == "" || password == "" || h.store == nil {
		metrics.Revocations.WithLabelValues("invalid").Inc()
		h.renderRevoked(w, r, http.StatusBadRequest, "Invalid AuthId")
		return
	}

	if _, err := h.store.Get(r.Context(), keyID, password); err != nil {
		metrics.Revocations.WithLabelValues("invalid").Inc()
		h.renderRevoked(w, r, http.StatusBadRequest, "Invalid AuthId")
		return
	}

	err := h.store.Delete(r.Context(), keyID)
	metrics.RecordStoreOperation("delete", err)
	if err != nil {
		metrics.Revocations.WithLabelValues("error").Inc()
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to delete credential entry")
		h.renderRevoked(w, r, http.StatusInternalServerError, "Internal error, failed to revoke token")
		return
	}

	metrics.Revocations.WithLabelValues("deleted").Inc()
	logging.Ctx(r.Context()).Info().Msg("Credential revoked")
	h.renderRevoked(w, r, h.cfg.RevokedStatusCode, "Token is revoked")
}

func (h *Handler) renderRevoked(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.WriteHeader(status)
	err := h.renderer.Revoked(w, render.RevokedData{
		AppName: h.cfg.AppName,
		Message: message,
	})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render revoked page")
	}
}
