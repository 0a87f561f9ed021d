// Package discovery keeps the directory populated by pulling bootstrap
// peers' self-descriptions over the transport adapter.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/codec"
	"github.com/heraldmesh/heraldmesh/internal/directory"
	"github.com/heraldmesh/heraldmesh/internal/metrics"
	"github.com/heraldmesh/heraldmesh/internal/retry"
	"github.com/heraldmesh/heraldmesh/internal/transport"
)

// Fetcher is the pull operation discovery depends on.
type Fetcher interface {
	GrabPeer(ctx context.Context, hostAddress string, port int, path string) *codec.Map
}

// Config holds discovery configuration.
type Config struct {
	// Bootstrap lists pull targets as "host:port" or "host:port/path".
	Bootstrap []string

	// Interval between pull rounds (default 5m).
	Interval time.Duration

	// MaxAttempts per target per round (default 3). The transport core
	// never retries; this is the caller-side policy layered above it.
	MaxAttempts int

	// Metrics is optional; nil creates a standalone instance.
	Metrics *metrics.Metrics
}

// Discoverer pulls bootstrap peers on a schedule and registers the peers
// they describe.
type Discoverer struct {
	cfg     Config
	fetcher Fetcher
	dir     *directory.Directory
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a discoverer.
func New(cfg *Config, fetcher Fetcher, dir *directory.Directory, logger *zap.Logger) *Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Discoverer{
		cfg:     *cfg,
		fetcher: fetcher,
		dir:     dir,
		logger:  logger,
		metrics: m,
	}
}

// Run pulls immediately, then on every interval, until ctx is cancelled.
func (d *Discoverer) Run(ctx context.Context) {
	d.PullOnce(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.PullOnce(ctx)
		}
	}
}

// PullOnce pulls every bootstrap target once (with per-target retries)
// and returns how many peers were registered.
func (d *Discoverer) PullOnce(ctx context.Context) int {
	registered := 0

	for _, target := range d.cfg.Bootstrap {
		host, port, path, err := parseTarget(target)
		if err != nil {
			d.logger.Warn("Skipping invalid bootstrap target",
				zap.String("target", target),
				zap.Error(err))
			continue
		}

		dump, err := retry.Do(ctx, retry.Config{
			MaxAttempts: d.cfg.MaxAttempts,
			Backoff:     retry.Exponential(time.Second),
		}, func() (*codec.Map, error) {
			if dump := d.fetcher.GrabPeer(ctx, host, port, path); dump != nil {
				return dump, nil
			}
			return nil, fmt.Errorf("no description from %s", target)
		})
		if err != nil {
			d.logger.Warn("Bootstrap pull failed",
				zap.String("target", target),
				zap.Error(err))
			continue
		}

		peer, err := d.dir.RegisterDescription(dump, host)
		if err != nil {
			d.logger.Warn("Unusable peer description",
				zap.String("target", target),
				zap.Error(err))
			continue
		}

		d.logger.Info("Discovered peer",
			zap.String("uid", peer.UID),
			zap.String("host", peer.Access.Host),
			zap.Int("port", peer.Access.Port))
		registered++
	}

	d.metrics.KnownPeers.Set(float64(len(d.dir.Peers())))
	return registered
}

// parseTarget splits "host:port" or "host:port/path" into its parts.
func parseTarget(target string) (host string, port int, path string, err error) {
	path = transport.DefaultPath

	hostPort := target
	if idx := strings.Index(target, "/"); idx >= 0 {
		hostPort = target[:idx]
		path = target[idx:]
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, "", fmt.Errorf("invalid bootstrap target %q: %w", target, err)
	}

	port, err = strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, "", fmt.Errorf("invalid port in bootstrap target %q", target)
	}

	return host, port, path, nil
}
