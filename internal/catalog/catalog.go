// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package catalog holds the read-only map from service id to provider
// descriptor. The catalog is assembled once at startup from built-in
// defaults, an optional override file, and secret placeholder expansion;
// afterwards it is immutable for the process lifetime.
package catalog

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ServiceConfig describes one third-party OAuth provider.
type ServiceConfig struct {
	// ID is the primary key, e.g. "gd".
	ID string `validate:"required"`

	// Name is the human-readable label shown on the index page.
	Name string `validate:"required"`

	ClientID     string
	ClientSecret string

	// AuthURL is the token endpoint.
	AuthURL string `validate:"required,url"`

	// LoginURL is the authorize endpoint users are redirected to.
	LoginURL string `validate:"omitempty,url"`

	Scope       string
	RedirectURI string

	// ExtraURL is a literal, pre-encoded suffix appended to the login URL.
	// It is expected to begin with '&' and is never re-encoded.
	ExtraURL string

	ServiceLink string
	DeAuthLink  string
	BrandImage  string
	Notes       string

	// Hidden excludes the service from the unfiltered index page.
	Hidden bool

	// NoStateForTokenRequest governs a state field that the token-exchange
	// form no longer carries; retained for catalog compatibility.
	NoStateForTokenRequest bool

	// NoRedirectURIForRefreshRequest omits redirect_uri from refresh posts.
	NoRedirectURIForRefreshRequest bool

	// CliToken routes the service through the resource-owner password flow.
	CliToken bool

	// PreferV2 issues stateless v2 AuthIds even when storage is available.
	PreferV2 bool

	// AccessTokenOnly issues the provider's access token directly as the
	// AuthId; no refresh token is expected.
	AccessTokenOnly bool

	// UseHostnameFromCallback substitutes the callback's hostname query
	// parameter into the token endpoint host (pCloud region routing).
	UseHostnameFromCallback bool

	// AdditionalElements lists callback query-parameter names echoed back
	// to the browser on the logged-in page.
	AdditionalElements []string
}

// ServiceRecord is the loosely-typed override shape read from CONFIGFILE.
// String fields override when non-empty; flag pointers override when set.
type ServiceRecord struct {
	ID                             string   `koanf:"id" yaml:"id"`
	Name                           string   `koanf:"name" yaml:"name"`
	ClientID                       string   `koanf:"client_id" yaml:"client_id"`
	ClientSecret                   string   `koanf:"client_secret" yaml:"client_secret"`
	AuthURL                        string   `koanf:"auth_url" yaml:"auth_url"`
	LoginURL                       string   `koanf:"login_url" yaml:"login_url"`
	Scope                          string   `koanf:"scope" yaml:"scope"`
	RedirectURI                    string   `koanf:"redirect_uri" yaml:"redirect_uri"`
	ExtraURL                       string   `koanf:"extra_url" yaml:"extra_url"`
	ServiceLink                    string   `koanf:"service_link" yaml:"service_link"`
	DeAuthLink                     string   `koanf:"deauth_link" yaml:"deauth_link"`
	BrandImage                     string   `koanf:"brand_image" yaml:"brand_image"`
	Notes                          string   `koanf:"notes" yaml:"notes"`
	AdditionalElements             string   `koanf:"additional_elements" yaml:"additional_elements"`
	Hidden                         *bool    `koanf:"hidden" yaml:"hidden"`
	NoStateForTokenRequest         *bool    `koanf:"no_state_for_token_request" yaml:"no_state_for_token_request"`
	NoRedirectURIForRefreshRequest *bool    `koanf:"no_redirect_uri_for_refresh_request" yaml:"no_redirect_uri_for_refresh_request"`
	CliToken                       *bool    `koanf:"cli_token" yaml:"cli_token"`
	PreferV2                       *bool    `koanf:"prefer_v2" yaml:"prefer_v2"`
	AccessTokenOnly                *bool    `koanf:"access_token_only" yaml:"access_token_only"`
	UseHostnameFromCallback        *bool    `koanf:"use_hostname_from_callback" yaml:"use_hostname_from_callback"`
	_                              struct{} // force keyed literals
}

// Merge projects a ServiceRecord onto a ServiceConfig, field by field.
// Empty record fields keep the base value. This replaces the reflection-
// based copy of the original design with an explicit merge; the field set
// is small and stable.
func Merge(base ServiceConfig, rec ServiceRecord) ServiceConfig {
	out := base
	if rec.ID != "" {
		out.ID = rec.ID
	}
	if rec.Name != "" {
		out.Name = rec.Name
	}
	if rec.ClientID != "" {
		out.ClientID = rec.ClientID
	}
	if rec.ClientSecret != "" {
		out.ClientSecret = rec.ClientSecret
	}
	if rec.AuthURL != "" {
		out.AuthURL = rec.AuthURL
	}
	if rec.LoginURL != "" {
		out.LoginURL = rec.LoginURL
	}
	if rec.Scope != "" {
		out.Scope = rec.Scope
	}
	if rec.RedirectURI != "" {
		out.RedirectURI = rec.RedirectURI
	}
	if rec.ExtraURL != "" {
		out.ExtraURL = rec.ExtraURL
	}
	if rec.ServiceLink != "" {
		out.ServiceLink = rec.ServiceLink
	}
	if rec.DeAuthLink != "" {
		out.DeAuthLink = rec.DeAuthLink
	}
	if rec.BrandImage != "" {
		out.BrandImage = rec.BrandImage
	}
	if rec.Notes != "" {
		out.Notes = rec.Notes
	}
	if rec.AdditionalElements != "" {
		out.AdditionalElements = SplitElements(rec.AdditionalElements)
	}
	if rec.Hidden != nil {
		out.Hidden = *rec.Hidden
	}
	if rec.NoStateForTokenRequest != nil {
		out.NoStateForTokenRequest = *rec.NoStateForTokenRequest
	}
	if rec.NoRedirectURIForRefreshRequest != nil {
		out.NoRedirectURIForRefreshRequest = *rec.NoRedirectURIForRefreshRequest
	}
	if rec.CliToken != nil {
		out.CliToken = *rec.CliToken
	}
	if rec.PreferV2 != nil {
		out.PreferV2 = *rec.PreferV2
	}
	if rec.AccessTokenOnly != nil {
		out.AccessTokenOnly = *rec.AccessTokenOnly
	}
	if rec.UseHostnameFromCallback != nil {
		out.UseHostnameFromCallback = *rec.UseHostnameFromCallback
	}
	return out
}

// SplitElements parses a comma-separated list, trimming whitespace and
// dropping empty items.
func SplitElements(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Catalog is the immutable service lookup.
type Catalog struct {
	services map[string]*ServiceConfig
	order    []string
}

// NewCatalog validates the given configs and builds the lookup. Order is
// preserved for the index page.
func NewCatalog(configs []ServiceConfig) (*Catalog, error) {
	validate := validator.New()
	services := make(map[string]*ServiceConfig, len(configs))
	order := make([]string, 0, len(configs))

	for i := range configs {
		svc := configs[i]
		if err := validate.Struct(&svc); err != nil {
			return nil, fmt.Errorf("service %q: %w", svc.ID, err)
		}
		if _, dup := services[svc.ID]; dup {
			return nil, fmt.Errorf("duplicate service id %q", svc.ID)
		}
		services[svc.ID] = &svc
		order = append(order, svc.ID)
	}

	return &Catalog{services: services, order: order}, nil
}

// Get returns the service descriptor for id.
func (c *Catalog) Get(id string) (*ServiceConfig, bool) {
	svc, ok := c.services[id]
	return svc, ok
}

// List returns all services in catalog order.
func (c *Catalog) List() []*ServiceConfig {
	out := make([]*ServiceConfig, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.services[id])
	}
	return out
}

// Len returns the number of services.
func (c *Catalog) Len() int {
	return len(c.order)
}
