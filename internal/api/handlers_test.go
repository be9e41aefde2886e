// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/oauthbridge/internal/catalog"
	"github.com/tomtom215/oauthbridge/internal/config"
	"github.com/tomtom215/oauthbridge/internal/render"
	"github.com/tomtom215/oauthbridge/internal/storage"
	"github.com/tomtom215/oauthbridge/internal/upstream"
)

// broker bundles a handler under test with its collaborators.
type broker struct {
	handler  *Handler
	router   http.Handler
	store    *storage.Store
	storeDir string
	upstream *httptest.Server
	calls    *atomic.Int32
	service  catalog.ServiceConfig
}

// newBroker builds a handler against a stubbed provider token endpoint.
// withStorage controls whether V1 credentials are available; mutate can
// adjust the test service before the catalog is built.
func newBroker(t *testing.T, withStorage bool, upstreamBody string, mutate func(*catalog.ServiceConfig)) *broker {
	t.Helper()

	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(upstreamBody))
	}))
	t.Cleanup(srv.Close)

	svc := catalog.ServiceConfig{
		ID:           "gd",
		Name:         "Google Drive",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      srv.URL + "/token",
		LoginURL:     "https://accounts.example.com/authorize",
		Scope:        "drive",
		RedirectURI:  "https://broker.example.com/logged-in",
		ExtraURL:     "&access_type=offline&approval_prompt=force",
		DeAuthLink:   "https://security.example.com/permissions",
	}
	if mutate != nil {
		mutate(&svc)
	}
	cat, err := catalog.NewCatalog([]catalog.ServiceConfig{svc})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	var store *storage.Store
	storeDir := ""
	if withStorage {
		storeDir = t.TempDir()
		store, err = storage.New(storeDir)
		if err != nil {
			t.Fatalf("storage.New: %v", err)
		}
	}

	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		t.Fatalf("NewHTMLRenderer: %v", err)
	}

	cfg := &config.Config{
		Hostname:          "broker.example.com",
		AppName:           "Example",
		DisplayName:       "Example OAuth Handler",
		RevokedStatusCode: 400,
		Security: config.SecurityConfig{
			RateLimitReqs:     1000,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: true,
		},
	}

	h := NewHandler(cfg, cat, store, upstream.NewClient(5*time.Second), renderer)
	return &broker{
		handler:  h,
		router:   NewRouter(cfg, h),
		store:    store,
		storeDir: storeDir,
		upstream: srv,
		calls:    calls,
		service:  svc,
	}
}

const providerTokenJSON = `{"access_token":"A","refresh_token":"R","token_type":"Bearer","expires_in":3600}`

var v1AuthIDPattern = regexp.MustCompile(`[0-9a-f]{32}:[!-~]{32}`)

func (b *broker) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	return rec
}

// startLogin drives /login and returns the state key from the redirect.
func (b *broker) startLogin(t *testing.T, extra string) string {
	t.Helper()
	rec := b.do(t, http.MethodGet, "/login?id=gd"+extra, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("/login status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	state := loc.Query().Get("state")
	if len(state) != 32 {
		t.Fatalf("state = %q, want 32 hex chars", state)
	}
	return state
}

func TestStartLoginRedirect(t *testing.T) {
	b := newBroker(t, true, providerTokenJSON, nil)
	rec := b.do(t, http.MethodGet, "/login?id=gd", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "https://accounts.example.com/authorize?client_id=client-id") {
		t.Errorf("Location = %q", location)
	}
	if !strings.HasSuffix(location, "&access_type=offline&approval_prompt=force") {
		t.Errorf("ExtraURL not appended raw: %q", location)
	}

	loc, _ := url.Parse(location)
	q := loc.Query()
	if q.Get("response_type") != "code" || q.Get("scope") != "drive" {
		t.Errorf("query = %v", q)
	}
	if q.Get("redirect_uri") != "https://broker.example.com/logged-in" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}

	state := q.Get("state")
	if _, ok := b.handler.states.Get(state); !ok {
		t.Error("state key not registered in the request-state cache")
	}
}

func TestStartLoginUnknownService(t *testing.T) {
	b := newBroker(t, true, providerTokenJSON, nil)
	if rec := b.do(t, http.MethodGet, "/login?id=nope", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHappyPathV1Login(t *testing.T) {
	b := newBroker(t, true, providerTokenJSON, nil)
	state := b.startLogin(t, "")

	rec := b.do(t, http.MethodGet, "/logged-in?state="+state+"&code=C", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/logged-in status = %d, body: %s", rec.Code, rec.Body.String())
	}

	authID := v1AuthIDPattern.FindString(rec.Body.String())
	if authID == "" {
		t.Fatalf("no V1 AuthId in page: %s", rec.Body.String())
	}

	keyID, password, _ := strings.Cut(authID, ":")
	entry, err := b.store.Get(t.Context(), keyID, password)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if entry.RefreshToken != "R" {
		t.Errorf("RefreshToken = %q, want R", entry.RefreshToken)
	}
	if entry.ServiceID != "gd" {
		t.Errorf("ServiceID = %q, want gd", entry.ServiceID)
	}
	if entry.Blob != providerTokenJSON {
		t.Errorf("Blob = %q", entry.Blob)
	}
}

func TestV2LoginWithoutStorage(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)
	state := b.startLogin(t, "")

	rec := b.do(t, http.MethodGet, "/logged-in?state="+state+"&code=C", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/logged-in status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "v2:gd:R") {
		t.Errorf("page missing v2 AuthId: %s", rec.Body.String())
	}
}

func TestPreferV2WithStorage(t *testing.T) {
	b := newBroker(t, true, providerTokenJSON, func(svc *catalog.ServiceConfig) {
		svc.PreferV2 = true
	})
	state := b.startLogin(t, "")

	rec := b.do(t, http.MethodGet, "/logged-in?state="+state+"&code=C", nil)
	if !strings.Contains(rec.Body.String(), "v2:gd:R") {
		t.Errorf("PreferV2 service must issue a v2 AuthId: %s", rec.Body.String())
	}
}

func TestCompleteLoginRejectsInvalidState(t *testing.T) {
	b := newBroker(t, true, providerTokenJSON, nil)
	if rec := b.do(t, http.MethodGet, "/logged-in?state=deadbeef&code=C", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if rec := b.do(t, http.MethodGet, "/logged-in?code=C", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing state: status = %d, want 400", rec.Code)
	}
}

func TestCompleteLoginMissingRefreshTokenRendersDeAuth(t *testing.T) {
	b := newBroker(t, true, `{"access_token":"A","expires_in":3600}`, nil)
	state := b.startLogin(t, "")

	rec := b.do(t, http.MethodGet, "/logged-in?state="+state+"&code=C", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Server error, you must de-authorize Example") {
		t.Errorf("page missing de-authorize message: %s", body)
	}
	if !strings.Contains(body, "https://security.example.com/permissions") {
		t.Errorf("page missing DeAuthLink: %s", body)
	}
}

func TestAccessTokenOnlyService(t *testing.T) {
	b := newBroker(t, true, `{"access_token":"AT-ONLY","expires_in":3600}`, func(svc *catalog.ServiceConfig) {
		svc.AccessTokenOnly = true
		svc.AdditionalElements = []string{"hostname", "locationid"}
	})
	state := b.startLogin(t, "")

	rec := b.do(t, http.MethodGet, "/logged-in?state="+state+"&code=C&hostname=eapi.example.com&locationid=2", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "AT-ONLY") {
		t.Errorf("page missing access-token AuthId: %s", body)
	}
	if !strings.Contains(body, "eapi.example.com") || !strings.Contains(body, "locationid") {
		t.Errorf("additional elements not echoed: %s", body)
	}
}

func TestFetchRendezvous(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	// Pre-register the rendezvous slot, then poll before completion.
	b.do(t, http.MethodGet, "/?token=abcdefghij", nil)
	rec := b.do(t, http.MethodGet, "/fetch?token=abcdefghij", nil)
	if got := rec.Body.String(); got != `{"wait":"Not ready"}` {
		t.Errorf("pre-completion body = %s", got)
	}

	state := b.startLogin(t, "&token=abcdefghij")
	b.do(t, http.MethodGet, "/logged-in?state="+state+"&code=C", nil)

	rec = b.do(t, http.MethodGet, "/fetch?token=abcdefghij", nil)
	if got := rec.Body.String(); got != `{"authid":"v2:gd:R"}` {
		t.Errorf("post-completion body = %s", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestFetchReportsLoginFailure(t *testing.T) {
	b := newBroker(t, true, `{"access_token":"A","expires_in":3600}`, nil)

	b.do(t, http.MethodGet, "/?token=abcdefghij", nil)
	state := b.startLogin(t, "&token=abcdefghij")
	b.do(t, http.MethodGet, "/logged-in?state="+state+"&code=C", nil)

	rec := b.do(t, http.MethodGet, "/fetch?token=abcdefghij", nil)
	if got := rec.Body.String(); got != `{"error":"Server error, you must de-authorize Example"}` {
		t.Errorf("fetch body = %s", got)
	}
}

func TestFetchErrorBodies(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	if got := b.do(t, http.MethodGet, "/fetch", nil).Body.String(); got != `{"error":"Missing token"}` {
		t.Errorf("missing token body = %s", got)
	}
	if got := b.do(t, http.MethodGet, "/fetch?token=unknown-key", nil).Body.String(); got != `{"error":"No such entry"}` {
		t.Errorf("unknown token body = %s", got)
	}
}

func TestFetchJSONPWrapping(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)

	rec := b.do(t, http.MethodGet, "/fetch?token=unknown-key&callback=cb", nil)
	if got := rec.Body.String(); got != `cb({"error":"No such entry"})` {
		t.Errorf("jsonp body = %s", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = b.do(t, http.MethodGet, "/fetch?token=unknown-key&jsonp=j", nil)
	if got := rec.Body.String(); got != `j({"error":"No such entry"})` {
		t.Errorf("jsonp alias body = %s", got)
	}
}

func TestIndexIgnoresShortFetchTokens(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)
	b.do(t, http.MethodGet, "/?token=short", nil)
	if b.handler.fetchSlots.Has("short") {
		t.Error("fetch-token keys of 8 characters or fewer must be ignored")
	}
}

func TestHealthEndpoint(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)
	rec := b.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("body = %s", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, nil)
	b.do(t, http.MethodGet, "/", nil) // generate at least one sample
	rec := b.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Error("metrics exposition missing http_requests_total")
	}
}

func TestIndexHidesHiddenServices(t *testing.T) {
	b := newBroker(t, false, providerTokenJSON, func(svc *catalog.ServiceConfig) {
		svc.Hidden = true
	})

	if body := b.do(t, http.MethodGet, "/", nil).Body.String(); strings.Contains(body, "Google Drive") {
		t.Error("hidden service listed without a type filter")
	}
	if body := b.do(t, http.MethodGet, "/?type=gd", nil).Body.String(); !strings.Contains(body, "Google Drive") {
		t.Error("type filter must list hidden services")
	}
}
