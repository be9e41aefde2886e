// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package api provides the HTTP handlers driving the OAuth broker flow:
// login initiation, provider callback, fetch-token rendezvous, token
// refresh, and revocation.
//
// errors.go - failure taxonomy mapped onto HTTP responses
package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/oauthbridge/internal/logging"
)

// Kind classifies a handler failure for status mapping.
type Kind int

const (
	// KindBadRequest covers missing or invalid client input.
	KindBadRequest Kind = iota

	// KindUnauthorized covers V1 decrypt failures; carries an X-Reason
	// header so clients can distinguish it from transport problems.
	KindUnauthorized

	// KindUpstream covers provider token endpoints answering non-2xx or
	// malformed JSON. Provider bodies are never forwarded.
	KindUpstream

	// KindInternal covers everything the client cannot fix.
	KindInternal
)

// Error is a classified handler failure. Message is client-safe; Cause
// is logged but never sent.
type Error struct {
	Kind    Kind
	Message string
	Reason  string // X-Reason header value, when set
	Cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func unauthorized(message, reason string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, Reason: reason}
}

func upstreamFailure(message string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Cause: cause}
}

func internalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// writeError converts a failure into its plain-text HTTP response. Only
// the classified message reaches the client; the cause goes to the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var brokerErr *Error
	if !errors.As(err, &brokerErr) {
		brokerErr = internalError("Internal server error", err)
	} else if brokerErr == nil {
		// errors.As can succeed with a typed-nil *Error inside a non-nil
		// interface; calling methods on it would panic, so drop it.
		brokerErr = internalError("Internal server error", nil)
	}

	if brokerErr.Cause != nil {
		logging.Ctx(r.Context()).Error().
			Err(brokerErr.Cause).
			Str("path", r.URL.Path).
			Msg(brokerErr.Message)
	}
	if brokerErr.Reason != "" {
		w.Header().Set("X-Reason", brokerErr.Reason)
	}
	http.Error(w, brokerErr.Message, brokerErr.Status())
}
