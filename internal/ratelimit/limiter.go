// Package ratelimit paces page navigations so a suite run does not hammer
// the site under test.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines the pacing configuration.
type Config struct {
	RPS   float64 // Navigations per second per host; <= 0 disables pacing
	Burst int     // Navigations allowed back to back
}

// DefaultConfig is polite toward a public site.
var DefaultConfig = Config{
	RPS:   1,
	Burst: 2,
}

// Pacer hands out one limiter per host.
type Pacer struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	config   Config
}

// NewPacer creates a pacer with the given configuration.
func NewPacer(config Config) *Pacer {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// Wait blocks until a navigation to rawURL is allowed or ctx is done.
// A nil pacer never blocks.
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	if p == nil || p.config.RPS <= 0 {
		return nil
	}
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	if err := p.limiter(host).Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: wait for %s: %w", host, err)
	}
	return nil
}

func (p *Pacer) limiter(host string) *rate.Limiter {
	p.mu.RLock()
	l, ok := p.limiters[host]
	p.mu.RUnlock()
	if ok {
		return l
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[host]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(p.config.RPS), p.config.Burst)
	p.limiters[host] = l
	return l
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("ratelimit: parse %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("ratelimit: %q has no host", rawURL)
	}
	return strings.ToLower(u.Host), nil
}
