package transport

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/directory"
	"github.com/heraldmesh/heraldmesh/internal/message"
	"github.com/heraldmesh/heraldmesh/internal/ratelimit"
)

// Rejection reasons used as metric labels.
const (
	rejectBadRequest     = "bad_request"
	rejectUnknownPeer    = "unknown_peer"
	rejectAccessMismatch = "access_mismatch"
	rejectDecode         = "decode"
	rejectRateLimited    = "rate_limited"
)

// Servlet is the inbound reception handler. For each POST it extracts the
// claimed sender identity and its declared reception port, then enforces
// access check, decode and dispatch in that order, discarding the request
// on the first failure. A GET answers with the local peer's encoded
// self-description, which is what remote pulls read.
type Servlet struct {
	recv    *Receiver
	limiter *ratelimit.PeerLimiter
	logger  *zap.Logger
}

// NewServlet creates the reception handler. limiter may be nil to disable
// per-peer rate limiting.
func NewServlet(recv *Receiver, limiter *ratelimit.PeerLimiter, logger *zap.Logger) *Servlet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Servlet{recv: recv, limiter: limiter, logger: logger}
}

func (s *Servlet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.serveDescription(w)
	case http.MethodPost:
		s.receiveMessage(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// serveDescription writes the local peer's self-description.
func (s *Servlet) serveDescription(w http.ResponseWriter) {
	text, err := s.recv.Encode(s.recv.directory.Dump())
	if err != nil {
		s.logger.Error("Error serializing local peer description", zap.Error(err))
		http.Error(w, "Serialization error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *Servlet) receiveMessage(w http.ResponseWriter, r *http.Request) {
	sender := r.Header.Get(message.HeaderSenderUID)
	portStr := r.Header.Get(message.HeaderPort)
	if sender == "" || portStr == "" {
		s.reject(w, rejectBadRequest, "Missing sender headers", http.StatusBadRequest)
		return
	}

	claimedPort, err := strconv.Atoi(portStr)
	if err != nil {
		s.reject(w, rejectBadRequest, "Unreadable sender port", http.StatusBadRequest)
		return
	}

	if s.limiter != nil && !s.limiter.Allow(sender) {
		s.logger.Warn("Rate limited peer", zap.String("sender", sender))
		s.reject(w, rejectRateLimited, "Too many messages", http.StatusTooManyRequests)
		return
	}

	observedHost := remoteHost(r)

	// Access check comes before the body is even read: a spoofed sender
	// must not reach the codec.
	if err := s.recv.CheckAccess(sender, observedHost, claimedPort); err != nil {
		reason := rejectAccessMismatch
		if errors.Is(err, directory.ErrUnknownPeer) {
			reason = rejectUnknownPeer
		}
		s.logger.Warn("Rejected inbound message",
			zap.String("sender", sender),
			zap.String("host", observedHost),
			zap.Int("port", claimedPort),
			zap.Error(err))
		s.reject(w, reason, "Access denied", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.reject(w, rejectBadRequest, "Unreadable body", http.StatusBadRequest)
		return
	}
	s.recv.metrics.InboundBodyLen.Observe(float64(len(body)))

	content, err := s.recv.Decode(string(body))
	if err != nil {
		s.logger.Warn("Undecodable inbound message",
			zap.String("sender", sender),
			zap.Error(err))
		s.reject(w, rejectDecode, "Malformed body", http.StatusBadRequest)
		return
	}

	env := &message.Envelope{
		UID:       r.Header.Get(message.HeaderUID),
		Sender:    sender,
		Subject:   r.Header.Get(message.HeaderSubject),
		Timestamp: time.Now(),
		Content:   content,
		Extra:     heraldHeaders(r),
	}

	s.recv.HandleMessage(env)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Servlet) reject(w http.ResponseWriter, reason, msg string, status int) {
	s.recv.metrics.MessagesRejected.WithLabel(reason).Inc()
	http.Error(w, msg, status)
}

// remoteHost extracts the connecting address without its ephemeral port.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// heraldHeaders collects the transport headers beyond the envelope fields.
func heraldHeaders(r *http.Request) map[string]string {
	extra := make(map[string]string)
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "herald-") || len(values) == 0 {
			continue
		}
		switch lower {
		case message.HeaderUID, message.HeaderSenderUID, message.HeaderSubject, message.HeaderPort:
			continue
		}
		extra[lower] = values[0]
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
