// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/oauthbridge/internal/catalog"
	"github.com/tomtom215/oauthbridge/internal/logging"
	"github.com/tomtom215/oauthbridge/internal/metrics"
	"github.com/tomtom215/oauthbridge/internal/password"
	"github.com/tomtom215/oauthbridge/internal/render"
	"github.com/tomtom215/oauthbridge/internal/storage"
	"github.com/tomtom215/oauthbridge/internal/upstream"
)

// StartLogin begins the authorization-code flow: it binds a fresh state
// key to the chosen service and redirects the browser to the provider's
// authorize endpoint.
func (h *Handler) StartLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	svc, ok := h.catalog.Get(q.Get("id"))
	if !ok {
		writeError(w, r, badRequest("No such service"))
		return
	}

	// A fetch token is honored only if the slot was pre-registered.
	fetchKey := q.Get("token")
	if fetchKey != "" && !h.fetchSlots.Has(fetchKey) {
		fetchKey = ""
	}

	useV2 := h.store == nil || svc.PreferV2

	stateKey, err := newStateKey()
	if err != nil {
		writeError(w, r, internalError("Failed to generate state", err))
		return
	}
	if h.states.Has(stateKey) {
		writeError(w, r, internalError("key collision", nil))
		return
	}
	h.states.SetWithTTL(stateKey, requestState{
		ServiceID:     svc.ID,
		FetchTokenKey: fetchKey,
		UseV2:         useV2,
	}, stateTTL)

	metrics.LoginsStarted.WithLabelValues(svc.ID).Inc()
	logging.Ctx(r.Context()).Info().Str("service", svc.ID).Bool("v2", useV2).Msg("Login started")

	http.Redirect(w, r, buildLoginURL(svc, stateKey), http.StatusFound)
}

// buildLoginURL assembles the provider authorize URL. ExtraURL is a
// pre-encoded literal suffix and is appended without re-encoding.
func buildLoginURL(svc *catalog.ServiceConfig, stateKey string) string {
	var b strings.Builder
	b.WriteString(svc.LoginURL)
	b.WriteString("?client_id=")
	b.WriteString(url.QueryEscape(svc.ClientID))
	b.WriteString("&response_type=code")
	b.WriteString("&scope=")
	b.WriteString(url.QueryEscape(svc.Scope))
	b.WriteString("&state=")
	b.WriteString(url.QueryEscape(stateKey))
	b.WriteString("&redirect_uri=")
	b.WriteString(url.QueryEscape(svc.RedirectURI))
	b.WriteString(svc.ExtraURL)
	return b.String()
}

// CompleteLogin is the provider callback: it validates the state key,
// exchanges the authorization code, mints the AuthId in the selected
// format, performs the fetch-token hand-off, and renders the result.
func (h *Handler) CompleteLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stateKey, code := q.Get("state"), q.Get("code")
	if stateKey == "" || code == "" {
		writeError(w, r, badRequest("Missing state or code"))
		return
	}

	state, ok := h.states.Get(stateKey)
	if !ok {
		writeError(w, r, badRequest("Invalid or expired state"))
		return
	}
	svc, ok := h.catalog.Get(state.ServiceID)
	if !ok {
		writeError(w, r, badRequest("No such service"))
		return
	}

	var fields []render.Field
	for _, name := range svc.AdditionalElements {
		if value := q.Get(name); value != "" {
			fields = append(fields, render.Field{Name: name, Value: value})
		}
	}

	// The redirect_uri sent on the exchange must match the one the
	// provider saw, including the forwarded fetch token.
	redirectURI := svc.RedirectURI
	if token := q.Get("token"); token != "" {
		sep := "?"
		if strings.Contains(redirectURI, "?") {
			sep = "&"
		}
		redirectURI += sep + "token=" + url.QueryEscape(token)
	}

	authURL := svc.AuthURL
	if svc.UseHostnameFromCallback {
		if hostname := q.Get("hostname"); hostname != "" {
			swapped, err := swapHost(authURL, hostname)
			if err != nil {
				writeError(w, r, badRequest("Invalid hostname"))
				return
			}
			authURL = swapped
		}
	}

	resp, err := h.tokens.ExchangeCode(r.Context(), authURL, svc.ClientID, svc.ClientSecret, redirectURI, code)
	if err != nil {
		if errors.Is(err, upstream.ErrNoAccessToken) {
			h.renderLoginError(w, r, svc, state, fields)
			return
		}
		metrics.LoginsCompleted.WithLabelValues(svc.ID, "exchange_failed").Inc()
		writeError(w, r, upstreamFailure("Failed to exchange the authorization code", err))
		return
	}

	var authID string
	switch {
	case svc.AccessTokenOnly:
		authID = resp.AccessToken
	case resp.RefreshToken == "":
		h.renderLoginError(w, r, svc, state, fields)
		return
	case state.UseV2 || h.store == nil:
		authID = "v2:" + svc.ID + ":" + resp.RefreshToken
	default:
		authID, err = h.mintV1(r, svc, resp)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	if state.FetchTokenKey != "" && h.fetchSlots.Has(state.FetchTokenKey) {
		h.fetchSlots.SetWithTTL(state.FetchTokenKey, fetchSlot{AuthID: authID}, fetchReadyTTL)
	}

	metrics.LoginsCompleted.WithLabelValues(svc.ID, "success").Inc()
	logging.Ctx(r.Context()).Info().Str("service", svc.ID).Bool("v2", state.UseV2).Msg("Login completed")

	renderErr := h.renderer.LoggedIn(w, render.LoggedInData{
		AppName:     h.cfg.AppName,
		ServiceName: svc.Name,
		AuthID:      authID,
		Fields:      fields,
		FetchToken:  state.FetchTokenKey,
	})
	if renderErr != nil {
		logging.Ctx(r.Context()).Error().Err(renderErr).Msg("Failed to render logged-in page")
	}
}

// renderLoginError handles an exchange that produced no usable token:
// the page carries a human-readable failure and the provider's
// de-authorize link; a waiting fetch slot learns about the failure too.
func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request, svc *catalog.ServiceConfig, state requestState, fields []render.Field) {
	message := "Server error, you must de-authorize " + h.cfg.AppName
	metrics.LoginsCompleted.WithLabelValues(svc.ID, "no_token").Inc()

	if state.FetchTokenKey != "" && h.fetchSlots.Has(state.FetchTokenKey) {
		h.fetchSlots.SetWithTTL(state.FetchTokenKey, fetchSlot{ErrorMessage: message}, fetchReadyTTL)
	}

	err := h.renderer.LoggedIn(w, render.LoggedInData{
		AppName:     h.cfg.AppName,
		ServiceName: svc.Name,
		AuthID:      message,
		DeAuthLink:  svc.DeAuthLink,
		Fields:      fields,
	})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render logged-in page")
	}
}

// mintV1 creates the stateful credential: a fresh keyId/password pair
// naming an encrypted entry in the blob store.
func (h *Handler) mintV1(r *http.Request, svc *catalog.ServiceConfig, resp *upstream.TokenResponse) (string, error) {
	keyID := strings.ReplaceAll(uuid.New().String(), "-", "")
	pw, err := password.Generate()
	if err != nil {
		return "", internalError("Failed to generate credentials", err)
	}

	entry := &storage.Entry{
		ServiceID:    svc.ID,
		Expires:      storedExpiry(resp),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Blob:         resp.Raw,
	}
	err = h.store.Put(r.Context(), keyID, pw, entry)
	metrics.RecordStoreOperation("put", err)
	if err != nil {
		return "", internalError("Failed to store credentials", err)
	}
	return keyID + ":" + pw, nil
}

// swapHost replaces the host of rawURL, preserving scheme and path.
func swapHost(rawURL, host string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.Host = host
	return u.String(), nil
}
