// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package upstream talks to the token endpoints of third-party OAuth
// providers: authorization-code exchange, refresh-token rotation, and
// the resource-owner password grant used by CLI token services.
//
// The underlying http.Client is recycled periodically so long-running
// processes pick up DNS changes at the providers; connections are never
// pinned for the process lifetime. Each provider host is additionally
// guarded by a circuit breaker so a misbehaving provider cannot stall
// every refresh request passing through the broker.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/oauthbridge/internal/logging"
	"github.com/tomtom215/oauthbridge/internal/metrics"
)

// clientRecycleInterval bounds how long a single http.Client (and its
// pooled connections) is reused before being replaced.
const clientRecycleInterval = 15 * time.Minute

// DefaultTimeout applies to each token endpoint call.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a token response is read.
const maxResponseBytes = 1 << 20

// ErrUpstreamRejected reports a non-2xx answer from a provider's token
// endpoint. The response body is never propagated; it may contain
// provider-specific detail that must not leak to broker clients.
var ErrUpstreamRejected = errors.New("upstream token endpoint rejected the request")

// ErrNoAccessToken reports a 2xx token response that carried no access
// token; callers treat this as a provider-side consent failure.
var ErrNoAccessToken = errors.New("token response carried no access token")

// StatusError wraps ErrUpstreamRejected with the provider's HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream token endpoint returned status %d", e.Code)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamRejected }

// TokenResponse is the provider's answer to any token grant. Providers
// disagree on which expiry field they populate; both are kept.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Expires      int64  `json:"expires"`
	ExpiresIn    int64  `json:"expires_in"`

	// Raw is the verbatim response body; V1 credentials persist it
	// alongside the parsed fields.
	Raw string `json:"-"`
}

// Client performs token grants against upstream providers. Safe for
// concurrent use.
type Client struct {
	timeout time.Duration

	mu         sync.Mutex
	httpClient *http.Client
	createdAt  time.Time

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker[*TokenResponse]
}

// NewClient returns a token client with the given per-request timeout.
// A non-positive timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		timeout:  timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*TokenResponse]),
	}
}

// ExchangeCode trades an authorization code for tokens. redirectURI must
// match the one sent on the authorization request, including any
// per-request override applied to it.
func (c *Client) ExchangeCode(ctx context.Context, tokenURL, clientID, clientSecret, redirectURI, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")

	return c.post(ctx, tokenURL, "authorization_code", form)
}

// RefreshOptions carries the provider quirks that shape a refresh post.
type RefreshOptions struct {
	// OmitRedirectURI leaves redirect_uri out of the form; some providers
	// reject refresh requests that carry it.
	OmitRedirectURI bool
	RedirectURI     string
}

// Refresh rotates an access token using the stored refresh token. The
// client secret is included only when the provider has one; public
// clients send an empty form otherwise rejected by some endpoints.
func (c *Client) Refresh(ctx context.Context, tokenURL, clientID, clientSecret, refreshToken string, opts RefreshOptions) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}
	if !opts.OmitRedirectURI {
		form.Set("redirect_uri", opts.RedirectURI)
	}

	return c.post(ctx, tokenURL, "refresh_token", form)
}

// PasswordGrant performs the resource-owner password flow used by CLI
// token providers. The personal token stands in for the password.
func (c *Client) PasswordGrant(ctx context.Context, tokenURL, clientID, scope, username, authToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", clientID)
	if scope != "" {
		form.Set("scope", scope)
	}
	form.Set("username", username)
	form.Set("password", authToken)

	return c.post(ctx, tokenURL, "password", form)
}

// post submits a form to the token endpoint through the host's circuit
// breaker and parses the JSON response. Failures are never retried; the
// caller's client is expected to re-drive the flow.
func (c *Client) post(ctx context.Context, tokenURL, grantType string, form url.Values) (*TokenResponse, error) {
	parsed, err := url.Parse(tokenURL)
	if err != nil {
		return nil, fmt.Errorf("parse token url: %w", err)
	}
	host := parsed.Host

	token, err := c.breakerFor(host).Execute(func() (*TokenResponse, error) {
		return c.doPost(ctx, tokenURL, host, grantType, form)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(host, "rejected").Inc()
			logging.Warn().Str("host", host).Msg("Token request rejected by open circuit")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(host, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(host, "success").Inc()
	return token, nil
}

func (c *Client) doPost(ctx context.Context, tokenURL, host, grantType string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client().Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(host, grantType, 0, time.Since(start), err)
		return nil, fmt.Errorf("token request to %s: %w", host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RecordUpstreamRequest(host, grantType, resp.StatusCode, time.Since(start), err)
		return nil, fmt.Errorf("read token response from %s: %w", host, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode}
		metrics.RecordUpstreamRequest(host, grantType, resp.StatusCode, time.Since(start), statusErr)
		logging.Warn().
			Str("host", host).
			Str("grant_type", grantType).
			Int("status", resp.StatusCode).
			Msg("Upstream token endpoint rejected request")
		return nil, statusErr
	}

	metrics.RecordUpstreamRequest(host, grantType, resp.StatusCode, time.Since(start), nil)

	token := &TokenResponse{}
	if err := json.Unmarshal(body, token); err != nil {
		return nil, fmt.Errorf("parse token response from %s: %w", host, err)
	}
	token.Raw = string(body)
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response from %s: %w", host, ErrNoAccessToken)
	}
	return token, nil
}

// client returns the shared http.Client, replacing it once it exceeds
// the recycle interval so DNS changes at providers are picked up.
func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient == nil || time.Since(c.createdAt) > clientRecycleInterval {
		if c.httpClient != nil {
			c.httpClient.CloseIdleConnections()
		}
		c.httpClient = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
		c.createdAt = time.Now()
	}
	return c.httpClient
}

// breakerFor returns the circuit breaker guarding one provider host,
// creating it on first use.
func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker[*TokenResponse] {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	metrics.CircuitBreakerState.WithLabelValues(host).Set(0)

	cb := gobreaker.NewCircuitBreaker[*TokenResponse](gobreaker.Settings{
		Name:        host,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// A provider refusing one grant (expired refresh token, revoked
			// consent) is not a provider outage; only transport failures and
			// server errors count against the breaker.
			if err == nil {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code < 500
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("host", name).Str("from", fromStr).Str("to", toStr).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	c.breakers[host] = cb
	return cb
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
