// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"net/http"
	"net/url"

	"github.com/tomtom215/oauthbridge/internal/render"
)

// Index serves the landing page. A `token` parameter longer than eight
// characters pre-registers a fetch-token rendezvous slot; `type` filters
// the listing to one service; `redir` is passed through untouched.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	fetchToken := q.Get("token")
	if len(fetchToken) >= minFetchKeyLen {
		h.fetchSlots.SetWithTTL(fetchToken, fetchSlot{}, fetchPendingTTL)
	} else {
		fetchToken = ""
	}

	filter := q.Get("type")
	services := make([]render.IndexService, 0, h.catalog.Len())
	for _, svc := range h.catalog.List() {
		if filter != "" {
			if svc.ID != filter {
				continue
			}
		} else if svc.Hidden {
			continue
		}

		path := "/login"
		if svc.CliToken {
			path = "/cli-token"
		}
		link := path + "?id=" + url.QueryEscape(svc.ID)
		if fetchToken != "" {
			link += "&token=" + url.QueryEscape(fetchToken)
		}

		services = append(services, render.IndexService{
			ID:          svc.ID,
			Name:        svc.Name,
			LoginURL:    link,
			Notes:       svc.Notes,
			BrandImage:  svc.BrandImage,
			ServiceLink: svc.ServiceLink,
			CliToken:    svc.CliToken,
		})
	}

	data := render.IndexData{
		DisplayName:      h.cfg.DisplayName,
		AppName:          h.cfg.AppName,
		Services:         services,
		PrivacyPolicyURL: h.cfg.PrivacyPolicyURL,
		Redir:            q.Get("redir"),
	}
	if err := h.renderer.Index(w, data); err != nil {
		writeError(w, r, internalError("Failed to render page", err))
	}
}

// Health answers container liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PrivacyPolicy redirects to the configured policy URL or serves the
// built-in statement.
func (h *Handler) PrivacyPolicy(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PrivacyPolicyURL != "" {
		http.Redirect(w, r, h.cfg.PrivacyPolicyURL, http.StatusFound)
		return
	}
	if err := h.renderer.PrivacyPolicy(w, render.PrivacyData{AppName: h.cfg.AppName}); err != nil {
		writeError(w, r, internalError("Failed to render page", err))
	}
}
