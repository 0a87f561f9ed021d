package transport

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/codec"
	"github.com/heraldmesh/heraldmesh/internal/metrics"
)

// Pull failure causes, surfaced through logs and metrics only. The
// GrabPeer return value deliberately collapses them all into nil.
const (
	CauseTarget  = "target"
	CauseConnect = "connect"
	CauseStatus  = "status"
	CauseDecode  = "decode"
)

// Fetcher pulls remote peer self-descriptions over HTTP GET. Every call is
// independent; the fetcher holds no per-peer state and never retries. It
// sets no timeout of its own: a silent remote blocks until the caller's
// context is cancelled.
type Fetcher struct {
	client  *http.Client
	codec   codec.Codec
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// FetcherConfig holds fetcher configuration.
type FetcherConfig struct {
	// MaxIdleConnsPerHost controls the connection pool (default 10).
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections stay open (default 90s).
	IdleConnTimeout time.Duration

	// Metrics is optional; nil creates a standalone instance.
	Metrics *metrics.Metrics
}

// NewFetcher creates a fetcher using c as the codec boundary.
func NewFetcher(cfg *FetcherConfig, c codec.Codec, logger *zap.Logger) *Fetcher {
	if cfg == nil {
		cfg = &FetcherConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 10
	}
	idleTimeout := cfg.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}

	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: maxIdle,
				IdleConnTimeout:     idleTimeout,
			},
		},
		codec:   c,
		logger:  logger,
		metrics: m,
	}
}

// GrabPeer pulls the self-description of the peer reachable at
// host:port/path. The only observable outcomes are a description mapping
// or nil; the four failure stages (bad target, connection fault, non-200
// status, undecodable body) are distinguishable in the logs and the
// pull-failure metrics, never in the return value. A decoded body that is
// not a mapping also yields nil.
func (f *Fetcher) GrabPeer(ctx context.Context, hostAddress string, port int, path string) *codec.Map {
	f.metrics.PullsTotal.Inc()
	timer := metrics.NewTimer(f.metrics.PullDuration)
	defer timer.ObserveDuration()

	// Stage 1: build the request target. No network I/O on failure.
	target, err := peerURL(hostAddress, port, path)
	if err != nil {
		f.logger.Error("Error computing peer access URL",
			zap.String("host", hostAddress),
			zap.Int("port", port),
			zap.Error(err))
		f.metrics.PullFailures.WithLabel(CauseTarget).Inc()
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		f.logger.Error("Error computing peer access URL",
			zap.String("target", target),
			zap.Error(err))
		f.metrics.PullFailures.WithLabel(CauseTarget).Inc()
		return nil
	}

	// Stage 2: connect and issue the GET.
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Error connecting to the peer",
			zap.String("target", target),
			zap.Error(err))
		f.metrics.PullFailures.WithLabel(CauseConnect).Inc()
		return nil
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug("Failed to close response body", zap.Error(closeErr))
		}
	}()

	// Stage 3: the body is not read on a non-success status.
	if resp.StatusCode != http.StatusOK {
		f.logger.Error("Error on peer's side",
			zap.String("target", target),
			zap.Int("status", resp.StatusCode))
		f.metrics.PullFailures.WithLabel(CauseStatus).Inc()
		return nil
	}

	// Stage 4: read the full body and decode it.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Error("Error reading peer description",
			zap.String("target", target),
			zap.Error(err))
		f.metrics.PullFailures.WithLabel(CauseConnect).Inc()
		return nil
	}

	text := decodeCharset(raw, resp.Header.Get("Content-Type"))

	value, err := f.codec.Decode(text)
	if err != nil {
		f.logger.Error("Error parsing peer description",
			zap.String("target", target),
			zap.Error(err))
		f.metrics.PullFailures.WithLabel(CauseDecode).Inc()
		return nil
	}

	if dump, ok := value.(*codec.Map); ok {
		f.metrics.PullsSucceeded.Inc()
		return dump
	}

	// Decoded but not a mapping: fall through without logging.
	return nil
}

// peerURL combines scheme, host, port and path into a request target.
func peerURL(hostAddress string, port int, path string) (string, error) {
	if hostAddress == "" {
		return "", fmt.Errorf("empty host address")
	}
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(hostAddress, strconv.Itoa(port)),
		Path:   path,
	}

	// Reject hosts that url.URL would silently mangle.
	if strings.ContainsAny(hostAddress, " /?#") {
		return "", fmt.Errorf("invalid host address %q", hostAddress)
	}
	return u.String(), nil
}

// decodeCharset converts a raw body to text per the response's declared
// charset. UTF-8 and ASCII pass through; Latin-1 is widened; anything else
// is treated as UTF-8.
func decodeCharset(raw []byte, contentType string) string {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = strings.ToLower(params["charset"])
		}
	}

	switch charset {
	case "iso-8859-1", "latin-1", "latin1":
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return string(runes)
	default:
		return string(raw)
	}
}
