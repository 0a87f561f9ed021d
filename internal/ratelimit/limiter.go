// Package ratelimit provides per-peer rate limiting for inbound messages.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default constants for per-peer message limiting
const (
	DefaultMessagesPerSecond = 50
	DefaultBurst             = 100
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultCleanupInterval   = time.Minute
)

// Config configures the per-peer message limiter.
type Config struct {
	// MessagesPerSecond is the sustained per-peer message rate.
	MessagesPerSecond float64

	// Burst is the per-peer burst allowance.
	Burst int

	// IdleTimeout is how long before an idle peer's limiter is dropped.
	IdleTimeout time.Duration

	// CleanupInterval is how often idle limiters are swept.
	CleanupInterval time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		MessagesPerSecond: DefaultMessagesPerSecond,
		Burst:             DefaultBurst,
		IdleTimeout:       DefaultIdleTimeout,
		CleanupInterval:   DefaultCleanupInterval,
	}
}

type peerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PeerLimiter hands out one token bucket per peer identity.
type PeerLimiter struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	peers map[string]*peerLimiter
}

// NewPeerLimiter creates a per-peer limiter.
func NewPeerLimiter(cfg *Config, logger *zap.Logger) *PeerLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PeerLimiter{
		cfg:    *cfg,
		logger: logger,
		peers:  make(map[string]*peerLimiter),
	}
}

// Allow reports whether a message from peerUID may pass right now.
func (pl *PeerLimiter) Allow(peerUID string) bool {
	pl.mu.Lock()
	entry, ok := pl.peers[peerUID]
	if !ok {
		entry = &peerLimiter{
			limiter: rate.NewLimiter(rate.Limit(pl.cfg.MessagesPerSecond), pl.cfg.Burst),
		}
		pl.peers[peerUID] = entry
	}
	entry.lastSeen = time.Now()
	pl.mu.Unlock()

	return entry.limiter.Allow()
}

// ActivePeers returns the number of peers with live limiters.
func (pl *PeerLimiter) ActivePeers() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.peers)
}

// Run sweeps idle limiters until ctx is cancelled.
func (pl *PeerLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(pl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.sweep()
		}
	}
}

func (pl *PeerLimiter) sweep() {
	cutoff := time.Now().Add(-pl.cfg.IdleTimeout)

	pl.mu.Lock()
	removed := 0
	for uid, entry := range pl.peers {
		if entry.lastSeen.Before(cutoff) {
			delete(pl.peers, uid)
			removed++
		}
	}
	pl.mu.Unlock()

	if removed > 0 {
		pl.logger.Debug("Swept idle peer limiters", zap.Int("removed", removed))
	}
}
