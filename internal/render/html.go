// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// HTMLRenderer executes the embedded page templates. Pages are rendered
// into a buffer first so a template error never emits a partial page.
type HTMLRenderer struct {
	templates *template.Template
}

// NewHTMLRenderer parses the embedded templates.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &HTMLRenderer{templates: tmpl}, nil
}

func (r *HTMLRenderer) render(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Index writes the landing page.
func (r *HTMLRenderer) Index(w io.Writer, data IndexData) error {
	return r.render(w, "index.html.tmpl", data)
}

// LoggedIn writes the post-authorization page carrying the AuthId.
func (r *HTMLRenderer) LoggedIn(w io.Writer, data LoggedInData) error {
	return r.render(w, "logged_in.html.tmpl", data)
}

// CliToken writes the CLI token entry form.
func (r *HTMLRenderer) CliToken(w io.Writer, data CliTokenData) error {
	return r.render(w, "cli_token.html.tmpl", data)
}

// Revoke writes the revocation entry form.
func (r *HTMLRenderer) Revoke(w io.Writer, data RevokeData) error {
	return r.render(w, "revoke.html.tmpl", data)
}

// Revoked writes the revocation outcome page.
func (r *HTMLRenderer) Revoked(w io.Writer, data RevokedData) error {
	return r.render(w, "revoked.html.tmpl", data)
}

// PrivacyPolicy writes the built-in privacy statement.
func (r *HTMLRenderer) PrivacyPolicy(w io.Writer, data PrivacyData) error {
	return r.render(w, "privacy.html.tmpl", data)
}
