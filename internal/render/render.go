// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package render produces the broker's user-facing HTML pages. Handlers
// depend only on the Renderer interface; the concrete implementation
// executes embedded html/template files so the binary ships with no
// on-disk template directory.
package render

import "io"

// Field is one name/value pair echoed on the logged-in page, e.g. the
// additional callback parameters some providers return.
type Field struct {
	Name  string
	Value string
}

// IndexService is one provider row on the landing page.
type IndexService struct {
	ID          string
	Name        string
	LoginURL    string
	Notes       string
	BrandImage  string
	ServiceLink string
	CliToken    bool
}

// IndexData renders the landing page. Redir is an opaque value passed
// through from the request for templates that want to link back.
type IndexData struct {
	DisplayName      string
	AppName          string
	Services         []IndexService
	PrivacyPolicyURL string
	Redir            string
}

// LoggedInData renders the page shown after a completed authorization,
// carrying the AuthId the user pastes into the application.
type LoggedInData struct {
	AppName     string
	ServiceName string
	AuthID      string
	DeAuthLink  string
	Fields      []Field

	// FetchToken, when non-empty, lets the opener window collect the
	// AuthId from /fetch instead of the user copying it manually.
	FetchToken string
}

// CliTokenData renders the CLI token entry form. FetchToken is echoed
// into the form so the rendezvous key survives the post.
type CliTokenData struct {
	AppName     string
	ServiceName string
	ServiceID   string
	FetchToken  string
	Error       string
}

// RevokeData renders the revocation entry form.
type RevokeData struct {
	AppName string
	Error   string
}

// RevokedData renders the revocation outcome page.
type RevokedData struct {
	AppName string
	Message string
}

// PrivacyData renders the built-in privacy statement shown when no
// external policy URL is configured.
type PrivacyData struct {
	AppName string
}

// Renderer writes the broker's HTML pages.
type Renderer interface {
	Index(w io.Writer, data IndexData) error
	LoggedIn(w io.Writer, data LoggedInData) error
	CliToken(w io.Writer, data CliTokenData) error
	Revoke(w io.Writer, data RevokeData) error
	Revoked(w io.Writer, data RevokedData) error
	PrivacyPolicy(w io.Writer, data PrivacyData) error
}
