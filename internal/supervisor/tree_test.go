// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/oauthbridge/internal/logging"
)

// signalService reports when it starts serving and blocks until canceled.
type signalService struct {
	started chan struct{}
}

func (s *signalService) Serve(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *signalService) String() string { return "signal-service" }

func TestTreeDefaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", tree.config.ShutdownTimeout)
	}
}

func TestTreeServesAndStops(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	apiSvc := &signalService{started: make(chan struct{}, 1)}
	maintSvc := &signalService{started: make(chan struct{}, 1)}
	tree.AddAPIService(apiSvc)
	tree.AddMaintenanceService(maintSvc)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*signalService{apiSvc, maintSvc} {
		select {
		case <-svc.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not start", svc)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}
}

func TestTickerServiceTicks(t *testing.T) {
	var ticks atomic.Int32
	svc := NewTickerService("test-ticker", 10*time.Millisecond, func(context.Context) {
		ticks.Add(1)
	})
	if svc.String() != "test-ticker" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("ticker did not fire")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestTickerServiceDefaultInterval(t *testing.T) {
	svc := NewTickerService("t", 0, func(context.Context) {})
	if svc.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", svc.interval)
	}
}
