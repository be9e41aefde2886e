// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package supervisor

import (
	"context"
	"time"
)

// TickerService runs a function at a fixed interval until its context
// is canceled. The broker uses it for housekeeping such as publishing
// cache-size gauges.
type TickerService struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)
}

// NewTickerService creates a supervised periodic task. An interval of
// zero or less defaults to one minute.
func NewTickerService(name string, interval time.Duration, tick func(ctx context.Context)) *TickerService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TickerService{
		name:     name,
		interval: interval,
		tick:     tick,
	}
}

// Serve implements suture.Service.
func (s *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (s *TickerService) String() string { return s.name }
