// Package directory tracks the peers known to this process and the HTTP
// endpoints they advertise.
package directory

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/codec"
)

var (
	// ErrUnknownPeer means the directory has no record for the claimed
	// identity; the message must be treated as unauthenticated.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrAccessMismatch means the claimed identity does not match the
	// observed network origin; the message must be discarded.
	ErrAccessMismatch = errors.New("access mismatch")
)

// Access describes how to reach a peer over HTTP. Host is empty for the
// local endpoint; the externally visible address is filled in by whoever
// publishes it.
type Access struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
	Path string `json:"path"`
}

// Peer is one participant in the overlay.
type Peer struct {
	UID    string
	Name   string
	Access Access
}

// Directory is the peer registry. All methods are safe for concurrent use.
type Directory struct {
	mu          sync.RWMutex
	peers       map[string]*Peer
	local       Peer
	localAccess Access
	store       *Store
	logger      *zap.Logger
}

// New creates a directory for the given local identity. store may be nil;
// when present, previously persisted peers are loaded from it and later
// registrations are written through.
func New(localUID, localName string, store *Store, logger *zap.Logger) (*Directory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if localUID == "" {
		return nil, fmt.Errorf("local peer UID must not be empty")
	}

	d := &Directory{
		peers:  make(map[string]*Peer),
		local:  Peer{UID: localUID, Name: localName},
		store:  store,
		logger: logger,
	}

	if store != nil {
		peers, err := store.LoadPeers()
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted peers: %w", err)
		}
		for _, p := range peers {
			peer := p
			d.peers[peer.UID] = &peer
		}
		logger.Info("Loaded persisted peers", zap.Int("count", len(peers)))
	}

	return d, nil
}

// LocalPeer returns this process's peer identity.
func (d *Directory) LocalPeer() Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	local := d.local
	local.Access = d.localAccess
	return local
}

// SetLocalAccess records the endpoint this process is currently reachable at.
func (d *Directory) SetLocalAccess(access Access) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.localAccess = access
}

// Peer returns the registered record for uid.
func (d *Directory) Peer(uid string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[uid]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Peers returns a snapshot of all registered peers.
func (d *Directory) Peers() []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, *p)
	}
	return out
}

// Register adds or replaces a peer record.
func (d *Directory) Register(peer Peer) error {
	if peer.UID == "" {
		return fmt.Errorf("peer UID must not be empty")
	}

	d.mu.Lock()
	p := peer
	d.peers[peer.UID] = &p
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.UpsertPeer(peer); err != nil {
			d.logger.Warn("Failed to persist peer",
				zap.String("uid", peer.UID),
				zap.Error(err))
		}
	}

	d.logger.Debug("Registered peer",
		zap.String("uid", peer.UID),
		zap.String("host", peer.Access.Host),
		zap.Int("port", peer.Access.Port))
	return nil
}

// Unregister removes a peer record. Removing an unknown peer is a no-op.
func (d *Directory) Unregister(uid string) {
	d.mu.Lock()
	delete(d.peers, uid)
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.DeletePeer(uid); err != nil {
			d.logger.Warn("Failed to remove persisted peer",
				zap.String("uid", uid),
				zap.Error(err))
		}
	}
}

// CheckAccess verifies that a claimed peer identity is consistent with the
// observed transport origin. The port must match the registered endpoint
// exactly; host equivalence is owned by this directory: an endpoint
// registered with an empty or loopback host accepts any observed host.
func (d *Directory) CheckAccess(uid, observedHost string, observedPort int) error {
	d.mu.RLock()
	p, ok := d.peers[uid]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, uid)
	}

	if p.Access.Port != observedPort {
		return fmt.Errorf("%w: peer %s declared port %d, observed %d",
			ErrAccessMismatch, uid, p.Access.Port, observedPort)
	}

	if !hostsEquivalent(p.Access.Host, observedHost) {
		return fmt.Errorf("%w: peer %s registered at host %q, observed %q",
			ErrAccessMismatch, uid, p.Access.Host, observedHost)
	}

	return nil
}

func hostsEquivalent(registered, observed string) bool {
	if registered == "" || registered == observed {
		return true
	}
	return isLoopback(registered) || isLoopback(observed)
}

func isLoopback(host string) bool {
	switch host {
	case "127.0.0.1", "::1", "localhost":
		return true
	}
	return false
}

// Description keys used in the wire form of a peer's self-description.
const (
	descKeyUID      = "uid"
	descKeyName     = "name"
	descKeyAccesses = "accesses"
	descKeyHTTP     = "http"
	descKeyHost     = "host"
	descKeyPort     = "port"
	descKeyPath     = "path"
)

// Dump builds the local peer's self-description map, ready for encoding.
// The host is left out: the remote side fills in the address it observed.
func (d *Directory) Dump() *codec.Map {
	local := d.LocalPeer()

	access := codec.NewMap()
	access.Set(descKeyPort, local.Access.Port)
	access.Set(descKeyPath, local.Access.Path)

	accesses := codec.NewMap()
	accesses.Set(descKeyHTTP, access)

	m := codec.NewMap()
	m.Set(descKeyUID, local.UID)
	m.Set(descKeyName, local.Name)
	m.Set(descKeyAccesses, accesses)
	return m
}

// RegisterDescription parses a pulled self-description and registers the
// peer it describes. fallbackHost is used when the description leaves the
// host out, which is the normal case for a freshly pulled description.
func (d *Directory) RegisterDescription(desc *codec.Map, fallbackHost string) (Peer, error) {
	uid, ok := desc.GetString(descKeyUID)
	if !ok || uid == "" {
		return Peer{}, fmt.Errorf("peer description has no uid")
	}
	if uid == d.local.UID {
		return Peer{}, fmt.Errorf("peer description is our own (uid %s)", uid)
	}

	name, _ := desc.GetString(descKeyName)

	peer := Peer{UID: uid, Name: name}

	if raw, ok := desc.Get(descKeyAccesses); ok {
		if accesses, ok := raw.(*codec.Map); ok {
			if rawHTTP, ok := accesses.Get(descKeyHTTP); ok {
				if httpAccess, ok := rawHTTP.(*codec.Map); ok {
					peer.Access.Host, _ = httpAccess.GetString(descKeyHost)
					peer.Access.Port, _ = httpAccess.GetInt(descKeyPort)
					peer.Access.Path, _ = httpAccess.GetString(descKeyPath)
				}
			}
		}
	}

	if peer.Access.Host == "" {
		peer.Access.Host = fallbackHost
	}

	if err := d.Register(peer); err != nil {
		return Peer{}, err
	}
	return peer, nil
}
