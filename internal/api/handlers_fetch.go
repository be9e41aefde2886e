// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/oauthbridge/internal/metrics"
)

// Fetch lets a polling client collect the AuthId produced by a browser
// flow on another device. Outcomes are reported in the JSON body, not
// the HTTP status; an optional callback/jsonp name wraps the payload.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callback := q.Get("callback")
	if callback == "" {
		callback = q.Get("jsonp")
	}

	token := q.Get("token")
	if token == "" {
		writeFetchJSON(w, callback, map[string]string{"error": "Missing token"})
		return
	}

	slot, ok := h.fetchSlots.Get(token)
	metrics.RecordCacheAccess("fetch", ok)
	switch {
	case !ok:
		writeFetchJSON(w, callback, map[string]string{"error": "No such entry"})
	case slot.ErrorMessage != "":
		writeFetchJSON(w, callback, map[string]string{"error": slot.ErrorMessage})
	case slot.AuthID == "":
		writeFetchJSON(w, callback, map[string]string{"wait": "Not ready"})
	default:
		writeFetchJSON(w, callback, map[string]string{"authid": slot.AuthID})
	}
}

// writeFetchJSON writes the payload as plain JSON, or wrapped in a
// callback invocation with a javascript content type.
func writeFetchJSON(w http.ResponseWriter, callback string, payload map[string]string) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if callback != "" {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(callback + "("))
		w.Write(body)
		w.Write([]byte(")"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
