// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/oauthbridge/internal/catalog"
	"github.com/tomtom215/oauthbridge/internal/logging"
	"github.com/tomtom215/oauthbridge/internal/metrics"
	"github.com/tomtom215/oauthbridge/internal/render"
)

// cliTokenBlob is the decoded payload of a Jottacloud-style personal
// login token.
type cliTokenBlob struct {
	Username  string `json:"username"`
	AuthToken string `json:"auth_token"`
}

// CliTokenForm renders the token entry page for providers using the
// resource-owner password flow.
func (h *Handler) CliTokenForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	svc, ok := h.catalog.Get(q.Get("id"))
	if !ok || !svc.CliToken {
		writeError(w, r, badRequest("No such service"))
		return
	}

	h.renderCliTokenForm(w, r, svc, q.Get("token"), http.StatusOK, "")
}

// CliTokenLogin exchanges the pasted personal token for a provider
// access token and issues a v2 AuthId carrying it. These AuthIds are
// not refreshable; the provider's token is long-lived by design.
func (h *Handler) CliTokenLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, badRequest("Invalid form data"))
		return
	}

	svc, ok := h.catalog.Get(r.PostForm.Get("id"))
	if !ok || !svc.CliToken {
		writeError(w, r, badRequest("No such service"))
		return
	}

	fetchKey := r.PostForm.Get("fetchtoken")
	token := r.PostForm.Get("token")
	if len(token) < minTokenLen {
		h.renderCliTokenForm(w, r, svc, fetchKey, http.StatusBadRequest, "The token is too short")
		return
	}

	blob, err := decodeCliToken(token)
	if err != nil {
		h.renderCliTokenForm(w, r, svc, fetchKey, http.StatusBadRequest, "The token could not be decoded")
		return
	}

	resp, err := h.tokens.PasswordGrant(r.Context(), svc.AuthURL, svc.ClientID, svc.Scope, blob.Username, blob.AuthToken)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("service", svc.ID).Msg("CLI token login failed")
		h.renderCliTokenForm(w, r, svc, fetchKey, http.StatusInternalServerError, "Login failed, check the token and try again")
		return
	}

	// The access token occupies the refresh-token slot; see PasswordGrant.
	authID := "v2:" + svc.ID + ":" + resp.AccessToken

	if fetchKey != "" && h.fetchSlots.Has(fetchKey) {
		h.fetchSlots.SetWithTTL(fetchKey, fetchSlot{AuthID: authID}, fetchReadyTTL)
	}

	metrics.CliTokensIssued.WithLabelValues(svc.ID).Inc()
	logging.Ctx(r.Context()).Info().Str("service", svc.ID).Msg("CLI token login completed")

	renderErr := h.renderer.LoggedIn(w, render.LoggedInData{
		AppName:     h.cfg.AppName,
		ServiceName: svc.Name,
		AuthID:      authID,
		FetchToken:  fetchKey,
	})
	if renderErr != nil {
		logging.Ctx(r.Context()).Error().Err(renderErr).Msg("Failed to render logged-in page")
	}
}

func (h *Handler) renderCliTokenForm(w http.ResponseWriter, r *http.Request, svc *catalog.ServiceConfig, fetchKey string, status int, errorMsg string) {
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	err := h.renderer.CliToken(w, render.CliTokenData{
		AppName:     h.cfg.AppName,
		ServiceName: svc.Name,
		ServiceID:   svc.ID,
		FetchToken:  fetchKey,
		Error:       errorMsg,
	})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render cli-token page")
	}
}

// decodeCliToken converts the base64url token blob to standard base64,
// re-pads it, and parses the embedded JSON credentials.
func decodeCliToken(token string) (*cliTokenBlob, error) {
	s := strings.ReplaceAll(token, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	blob := &cliTokenBlob{}
	if err := json.Unmarshal(raw, blob); err != nil {
		return nil, err
	}
	return blob, nil
}
