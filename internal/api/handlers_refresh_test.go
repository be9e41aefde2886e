// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/oauthbridge/internal/catalog"
	"github.com/tomtom215/oauthbridge/internal/storage"
)

const (
	testKeyID    = "0123456789abcdef0123456789abcdef"
	testPassword = "a1B!c2D-e3F_g4H.i5J!k6L-m7N_o8P."
)

// seedEntry writes a stored credential the refresh tests can target.
func seedEntry(t *testing.T, b *broker, refreshToken string) {
	t.Helper()
	entry := &storage.Entry{
		ServiceID:    "gd",
		Expires:      time.Now().Add(time.Hour),
		AccessToken:  "A-old",
		RefreshToken: refreshToken,
	}
	if err := b.store.Put(t.Context(), testKeyID, testPassword, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func decodeTokenReply(t *testing.T, body string) tokenReply {
	t.Helper()
	var reply tokenReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		t.Fatalf("decode reply %q: %v", body, err)
	}
	return reply
}

func TestRefreshV2(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	rec := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:refresh-token-1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	reply := decodeTokenReply(t, rec.Body.String())
	if reply.AccessToken != "A" || reply.Type != "gd" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Expires != 3590 {
		t.Errorf("expires = %d, want 3590 (expires_in minus slack)", reply.Expires)
	}
}

func TestRefreshV2TokenContainingColons(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	rec := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:1//0gToken:with=colons"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if got := b.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestRefreshV2TouchesNoFiles(t *testing.T) {
	b := newBroker(t, true, providerTokenJSON, nil)

	rec := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:refresh-token-1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	entries, err := os.ReadDir(b.storeDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("store directory has %d entries after a stateless refresh, want 0", len(entries))
	}
}

func TestRefreshCacheHit(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	first := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:refresh-token-1"}})
	second := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:refresh-token-1"}})

	if got := b.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (second request served from cache)", got)
	}
	a := decodeTokenReply(t, first.Body.String())
	c := decodeTokenReply(t, second.Body.String())
	if a.AccessToken != c.AccessToken {
		t.Errorf("access tokens differ across cache window: %q vs %q", a.AccessToken, c.AccessToken)
	}
}

func TestRefreshCacheIsolatedPerToken(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:refresh-token-1"}})
	b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:refresh-token-2"}})

	if got := b.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 (distinct tokens must not share cache)", got)
	}
}

func TestRefreshV1RotatesStoredEntry(t *testing.T) {
	b := newBroker(t, true, `{"access_token":"A2","refresh_token":"R2","expires_in":3600}`, nil)
	seedEntry(t, b, "R1-long-enough")

	rec := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {testKeyID + ":" + testPassword}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	reply := decodeTokenReply(t, rec.Body.String())
	if reply.AccessToken != "A2" {
		t.Errorf("access_token = %q, want A2", reply.AccessToken)
	}

	entry, err := b.store.Get(t.Context(), testKeyID, testPassword)
	if err != nil {
		t.Fatalf("Get after rotation: %v", err)
	}
	if entry.RefreshToken != "R2" {
		t.Errorf("stored RefreshToken = %q, want R2", entry.RefreshToken)
	}
	if entry.AccessToken != "A2" {
		t.Errorf("stored AccessToken = %q, want A2", entry.AccessToken)
	}
}

func TestRefreshV1PreservesOmittedRefreshToken(t *testing.T) {
	b := newBroker(t, true, `{"access_token":"A2","expires_in":3600}`, nil)
	seedEntry(t, b, "R1-long-enough")

	rec := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {testKeyID + ":" + testPassword}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	entry, err := b.store.Get(t.Context(), testKeyID, testPassword)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.RefreshToken != "R1-long-enough" {
		t.Errorf("omitted refresh_token must preserve the stored value, got %q", entry.RefreshToken)
	}
}

func TestRefreshV1WrongPassword(t *testing.T) {
	b := newBroker(t, true, providerTokenJSON, nil)
	seedEntry(t, b, "R1-long-enough")

	rec := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {testKeyID + ":wrong-password"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("X-Reason"); got != "Invalid key or password" {
		t.Errorf("X-Reason = %q", got)
	}
	if got := b.calls.Load(); got != 0 {
		t.Errorf("upstream calls = %d, want 0", got)
	}
}

func TestRefreshInputValidation(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	cases := []struct {
		name   string
		authid string
		want   int
	}{
		{"missing", "", http.StatusBadRequest},
		{"v2 malformed", "v2:gd", http.StatusBadRequest},
		{"v2 unknown service", "v2:nope:refresh-token", http.StatusBadRequest},
		{"v2 short token", "v2:gd:abc", http.StatusBadRequest},
		{"v1 without storage", "0123:password", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := url.Values{}
			if tc.authid != "" {
				form.Set("authid", tc.authid)
			}
			if rec := b.do(t, http.MethodPost, "/refresh", form); rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRefreshMethodNotAllowed(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)
	if rec := b.do(t, http.MethodPut, "/refresh", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRefreshAcceptsHeaderAuthID(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	req.Header.Set("X-AuthID", "v2:gd:refresh-token-1")
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshUpstreamRejection(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(rejecting.Close)

	b := newBroker(t, false, providerTokenJSON, func(svc *catalog.ServiceConfig) {
		svc.AuthURL = rejecting.URL + "/token"
	})

	rec := b.do(t, http.MethodPost, "/refresh", url.Values{"authid": {"v2:gd:refresh-token-1"}})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "invalid_grant") {
		t.Error("provider error body leaked to the client")
	}
}
