// Package transport is the HTTP adapter between the overlay and the wire:
// it validates inbound senders against the peer directory, decodes
// envelopes, forwards them to the routing core, and pulls remote peer
// descriptions on demand.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/codec"
	"github.com/heraldmesh/heraldmesh/internal/directory"
	"github.com/heraldmesh/heraldmesh/internal/message"
	"github.com/heraldmesh/heraldmesh/internal/metrics"
)

// DefaultPath is the reception path registered with the HTTP layer.
const DefaultPath = "/herald"

// HandlerRegistrar is the external HTTP layer's registration contract:
// handlers are mounted at a path, and the layer reports its bound port
// through the bind notification.
type HandlerRegistrar interface {
	RegisterHandler(path string, handler http.Handler) error
}

// Receiver is the reception side of the adapter. It bridges parsed inbound
// messages into the routing core and tracks the listener's lifecycle.
type Receiver struct {
	directory *directory.Directory
	codec     codec.Codec
	handler   message.Handler
	registrar HandlerRegistrar
	logger    *zap.Logger
	metrics   *metrics.Metrics
	path      string
	servlet   http.Handler

	// Listener state, read-mostly; written only on bind/unbind.
	mu    sync.RWMutex
	port  int
	ready bool
}

// Config holds receiver configuration.
type Config struct {
	// Path is the reception path. Defaults to DefaultPath.
	Path string

	// Metrics is optional; nil creates a standalone instance.
	Metrics *metrics.Metrics
}

// NewReceiver creates a receiver. handler is the routing core's inbound
// entry point; registrar is the HTTP layer the reception handler is mounted
// on at bind time.
func NewReceiver(cfg *Config, dir *directory.Directory, c codec.Codec, handler message.Handler, registrar HandlerRegistrar, logger *zap.Logger) *Receiver {
	if cfg == nil {
		cfg = &Config{}
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Receiver{
		directory: dir,
		codec:     c,
		handler:   handler,
		registrar: registrar,
		logger:    logger,
		metrics:   m,
		path:      path,
	}
}

// SetServlet overrides the handler mounted at bind time. Must be called
// before BindListener; the default is a Servlet without rate limiting.
func (r *Receiver) SetServlet(h http.Handler) {
	r.servlet = h
}

// CheckAccess verifies that the claimed sender identity matches the
// observed transport origin. Returns directory.ErrUnknownPeer or
// directory.ErrAccessMismatch; either one must make the caller discard
// the request before decoding.
func (r *Receiver) CheckAccess(peerUID, observedHost string, observedPort int) error {
	return r.directory.CheckAccess(peerUID, observedHost, observedPort)
}

// Decode parses wire text through the codec boundary. Codec failures are
// returned unchanged.
func (r *Receiver) Decode(text string) (any, error) {
	return r.codec.Decode(text)
}

// Encode serializes a value through the codec boundary. Codec failures are
// returned unchanged.
func (r *Receiver) Encode(value any) (string, error) {
	return r.codec.Encode(value)
}

// HandleMessage forwards a decoded, access-checked envelope to the routing
// core. Synchronous; the envelope is not retained.
func (r *Receiver) HandleMessage(env *message.Envelope) {
	r.metrics.MessagesReceived.Inc()
	r.handler.HandleMessage(env)
}

// LocalPeer returns the directory's notion of this process's identity.
func (r *Receiver) LocalPeer() directory.Peer {
	return r.directory.LocalPeer()
}

// AccessInfo returns the adapter's reachable endpoint. The host is left
// empty: whoever publishes the endpoint fills in the externally visible
// address. The port reflects the most recent bind event.
func (r *Receiver) AccessInfo() directory.Access {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return directory.Access{Port: r.port, Path: r.path}
}

// Ready reports whether the reception handler is registered and the
// listener port is known.
func (r *Receiver) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Path returns the fixed reception path.
func (r *Receiver) Path() string {
	return r.path
}

// BindListener records the listener's port and mounts the reception
// handler on the HTTP layer. rawPort may be numeric or textual; an
// unrecognized representation logs a warning and records the unknown-port
// sentinel -1. Readiness turns on only after the handler registered
// successfully on a usable port.
func (r *Receiver) BindListener(rawPort any) error {
	port := coercePort(rawPort)
	if port < 0 {
		r.logger.Warn("Couldn't read access port", zap.Any("rawPort", rawPort))
	}

	r.mu.Lock()
	r.port = port
	r.ready = false
	r.mu.Unlock()

	if r.servlet == nil {
		r.servlet = NewServlet(r, nil, r.logger)
	}

	if err := r.registrar.RegisterHandler(r.path, r.servlet); err != nil {
		r.logger.Error("Can't register the reception handler",
			zap.String("path", r.path),
			zap.Error(err))
		r.metrics.ListenerActive.Set(0)
		return fmt.Errorf("failed to register reception handler: %w", err)
	}

	if port > 0 {
		r.mu.Lock()
		r.ready = true
		r.mu.Unlock()
		r.metrics.ListenerActive.Set(1)
	}

	r.directory.SetLocalAccess(r.AccessInfo())
	r.logger.Info("Receiver bound", zap.Int("port", port), zap.String("path", r.path))
	return nil
}

// UnbindListener handles the listener-gone notification: the port resets
// to 0 and readiness turns off. Withdrawing the handler registration is
// the surrounding lifecycle's job.
func (r *Receiver) UnbindListener() {
	r.mu.Lock()
	r.port = 0
	r.ready = false
	r.mu.Unlock()

	r.metrics.ListenerActive.Set(0)
	r.directory.SetLocalAccess(r.AccessInfo())
	r.logger.Info("Receiver unbound")
}

// coercePort accepts the port representations a listener notification may
// carry. Unknown representations map to -1.
func coercePort(raw any) int {
	switch v := raw.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return -1
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return -1
		}
		return n
	}
	return -1
}
