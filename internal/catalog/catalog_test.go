// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package catalog

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestMergeOverridesNonEmptyFields(t *testing.T) {
	base := ServiceConfig{
		ID:       "gd",
		Name:     "Google Drive",
		ClientID: "default-id",
		AuthURL:  "https://example.com/token",
		Hidden:   false,
	}
	rec := ServiceRecord{
		ClientID: "override-id",
		Hidden:   boolPtr(true),
	}

	out := Merge(base, rec)
	if out.ClientID != "override-id" {
		t.Errorf("ClientID = %q, want override-id", out.ClientID)
	}
	if out.Name != "Google Drive" {
		t.Errorf("Name = %q, want base value preserved", out.Name)
	}
	if !out.Hidden {
		t.Error("Hidden flag override not applied")
	}
	if out.AuthURL != base.AuthURL {
		t.Errorf("AuthURL = %q, want base value", out.AuthURL)
	}
}

func TestMergeUnsetFlagKeepsBase(t *testing.T) {
	base := ServiceConfig{ID: "box", NoRedirectURIForRefreshRequest: true}
	out := Merge(base, ServiceRecord{})
	if !out.NoRedirectURIForRefreshRequest {
		t.Error("Unset flag pointer must keep base value")
	}
}

func TestMergeAdditionalElements(t *testing.T) {
	out := Merge(ServiceConfig{ID: "pcloud"}, ServiceRecord{AdditionalElements: "hostname, locationid ,"})
	if len(out.AdditionalElements) != 2 || out.AdditionalElements[0] != "hostname" || out.AdditionalElements[1] != "locationid" {
		t.Errorf("AdditionalElements = %v", out.AdditionalElements)
	}
}

func TestSplitElements(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a,b,c", 3},
		{" a , ,b ", 2},
	}
	for _, tc := range cases {
		if got := SplitElements(tc.in); len(got) != tc.want {
			t.Errorf("SplitElements(%q) = %v, want %d items", tc.in, got, tc.want)
		}
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]ServiceConfig{
		{ID: "gd", Name: "A", AuthURL: "https://example.com/token"},
		{ID: "gd", Name: "B", AuthURL: "https://example.com/token"},
	})
	if err == nil {
		t.Error("Expected duplicate id to fail")
	}
}

func TestNewCatalogValidates(t *testing.T) {
	_, err := NewCatalog([]ServiceConfig{{ID: "bad", Name: "Bad", AuthURL: "not-a-url"}})
	if err == nil {
		t.Error("Expected invalid AuthURL to fail validation")
	}
}

func TestLoadExpandsPlaceholders(t *testing.T) {
	cat, err := Load(LoadOptions{
		Hostname: "broker.example.com",
		Services: []string{"gd"},
		Secrets: map[string]string{
			"GD_CLIENT_ID":     "client-123",
			"GD_CLIENT_SECRET": "secret-456",
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	svc, ok := cat.Get("gd")
	if !ok {
		t.Fatal("gd not in catalog")
	}
	if svc.ClientID != "client-123" {
		t.Errorf("ClientID = %q", svc.ClientID)
	}
	if svc.RedirectURI != "https://broker.example.com/logged-in" {
		t.Errorf("RedirectURI = %q", svc.RedirectURI)
	}
	if svc.ExtraURL != "&access_type=offline&approval_prompt=force" {
		t.Errorf("ExtraURL = %q", svc.ExtraURL)
	}
}

func TestLoadSkipsUnresolvedServices(t *testing.T) {
	cat, err := Load(LoadOptions{
		Hostname: "broker.example.com",
		Secrets:  map[string]string{"GD_CLIENT_ID": "x", "GD_CLIENT_SECRET": "y"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := cat.Get("gd"); !ok {
		t.Error("gd should be active with resolved secrets")
	}
	if _, ok := cat.Get("box"); ok {
		t.Error("box should be skipped without secrets")
	}
	// jotta uses a public client id, no secrets required.
	if _, ok := cat.Get("jotta"); !ok {
		t.Error("jotta should always be active")
	}
}

func TestLoadServicesFilter(t *testing.T) {
	cat, err := Load(LoadOptions{
		Hostname: "broker.example.com",
		Services: []string{"jotta"},
		Secrets:  map[string]string{"GD_CLIENT_ID": "x", "GD_CLIENT_SECRET": "y"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Len() != 1 {
		t.Errorf("Expected 1 service, got %d", cat.Len())
	}
	if _, ok := cat.Get("gd"); ok {
		t.Error("gd must be filtered out")
	}
}

const overrideYAML = `
services:
  - id: gd
    client_id: from-file
  - id: custom
    name: Custom Provider
    client_id: abc
    client_secret: def
    auth_url: https://custom.example.com/token
    login_url: https://custom.example.com/authorize
    redirect_uri: "%OAUTH_CALLBACK_URI%"
    prefer_v2: true
`

func TestLoadConfigFileFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	if err := os.WriteFile(path, []byte(overrideYAML), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cat, err := Load(LoadOptions{
		Hostname:   "broker.example.com",
		ConfigFile: path,
		Secrets:    map[string]string{"GD_CLIENT_SECRET": "y"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	gd, ok := cat.Get("gd")
	if !ok {
		t.Fatal("gd missing")
	}
	if gd.ClientID != "from-file" {
		t.Errorf("gd.ClientID = %q, want from-file", gd.ClientID)
	}

	custom, ok := cat.Get("custom")
	if !ok {
		t.Fatal("custom provider missing")
	}
	if !custom.PreferV2 {
		t.Error("custom.PreferV2 not set")
	}
	if custom.RedirectURI != "https://broker.example.com/logged-in" {
		t.Errorf("custom.RedirectURI = %q", custom.RedirectURI)
	}
}

func TestLoadConfigFileInlineBase64(t *testing.T) {
	inline := "base64:" + base64.StdEncoding.EncodeToString([]byte(overrideYAML))

	cat, err := Load(LoadOptions{
		Hostname:   "broker.example.com",
		ConfigFile: inline,
		Services:   []string{"custom"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := cat.Get("custom"); !ok {
		t.Error("custom provider missing from inline config")
	}
}

func TestUnresolved(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"plain", false},
		{"100%", false},
		{"%SECRET%", true},
		{"prefix-%NAME%-suffix", true},
	}
	for _, tc := range cases {
		if got := unresolved(tc.in); got != tc.want {
			t.Errorf("unresolved(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
