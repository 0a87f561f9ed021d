package directory

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/codec"
)

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := New("local-peer", "local", nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func TestNewRequiresUID(t *testing.T) {
	if _, err := New("", "name", nil, zap.NewNop()); err == nil {
		t.Fatal("Expected error for empty local UID")
	}
}

func TestCheckAccessUnknownPeer(t *testing.T) {
	d := testDirectory(t)

	err := d.CheckAccess("ghost", "10.0.0.5", 9000)
	if !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
}

func TestCheckAccessMatch(t *testing.T) {
	d := testDirectory(t)
	if err := d.Register(Peer{UID: "peerA", Access: Access{Host: "10.0.0.5", Port: 9000, Path: "/herald"}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := d.CheckAccess("peerA", "10.0.0.5", 9000); err != nil {
		t.Errorf("Expected success, got %v", err)
	}
}

func TestCheckAccessPortMismatch(t *testing.T) {
	d := testDirectory(t)
	if err := d.Register(Peer{UID: "peerA", Access: Access{Host: "10.0.0.5", Port: 9000}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := d.CheckAccess("peerA", "10.0.0.5", 9001)
	if !errors.Is(err, ErrAccessMismatch) {
		t.Errorf("Expected ErrAccessMismatch, got %v", err)
	}
}

func TestCheckAccessPortMismatchWinsOverHostMatch(t *testing.T) {
	d := testDirectory(t)
	if err := d.Register(Peer{UID: "peerA", Access: Access{Host: "", Port: 9000}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Even with the permissive empty host, a wrong port must fail.
	err := d.CheckAccess("peerA", "anything", 8000)
	if !errors.Is(err, ErrAccessMismatch) {
		t.Errorf("Expected ErrAccessMismatch, got %v", err)
	}
}

func TestCheckAccessHostMismatch(t *testing.T) {
	d := testDirectory(t)
	if err := d.Register(Peer{UID: "peerA", Access: Access{Host: "10.0.0.5", Port: 9000}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := d.CheckAccess("peerA", "10.0.0.99", 9000)
	if !errors.Is(err, ErrAccessMismatch) {
		t.Errorf("Expected ErrAccessMismatch, got %v", err)
	}
}

func TestCheckAccessLoopbackEquivalence(t *testing.T) {
	d := testDirectory(t)
	if err := d.Register(Peer{UID: "peerA", Access: Access{Host: "127.0.0.1", Port: 9000}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// A peer registered on loopback may show up from any interface.
	if err := d.CheckAccess("peerA", "192.168.1.20", 9000); err != nil {
		t.Errorf("Expected loopback equivalence to pass, got %v", err)
	}
}

func TestRegisterUnregister(t *testing.T) {
	d := testDirectory(t)
	if err := d.Register(Peer{UID: "p1", Name: "one", Access: Access{Port: 1234}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	p, ok := d.Peer("p1")
	if !ok {
		t.Fatal("Peer not found after Register")
	}
	if p.Name != "one" || p.Access.Port != 1234 {
		t.Errorf("Unexpected peer record: %+v", p)
	}

	d.Unregister("p1")
	if _, ok := d.Peer("p1"); ok {
		t.Error("Peer still present after Unregister")
	}

	// Unregistering twice is a no-op.
	d.Unregister("p1")
}

func TestLocalPeerAndAccess(t *testing.T) {
	d := testDirectory(t)

	local := d.LocalPeer()
	if local.UID != "local-peer" {
		t.Errorf("Expected local UID local-peer, got %q", local.UID)
	}

	d.SetLocalAccess(Access{Port: 8800, Path: "/herald"})
	local = d.LocalPeer()
	if local.Access.Port != 8800 || local.Access.Path != "/herald" {
		t.Errorf("Local access not reflected: %+v", local.Access)
	}
	if local.Access.Host != "" {
		t.Errorf("Local access host should be absent, got %q", local.Access.Host)
	}
}

func TestDumpShape(t *testing.T) {
	d := testDirectory(t)
	d.SetLocalAccess(Access{Port: 8800, Path: "/herald"})

	dump := d.Dump()
	if uid, _ := dump.GetString("uid"); uid != "local-peer" {
		t.Errorf("Expected uid local-peer, got %q", uid)
	}

	raw, ok := dump.Get("accesses")
	if !ok {
		t.Fatal("Dump missing accesses")
	}
	accesses := raw.(*codec.Map)
	rawHTTP, _ := accesses.Get("http")
	httpAccess := rawHTTP.(*codec.Map)
	if port, _ := httpAccess.GetInt("port"); port != 8800 {
		t.Errorf("Expected dumped port 8800, got %d", port)
	}
	if _, ok := httpAccess.Get("host"); ok {
		t.Error("Dumped access must not carry a host")
	}
}

func TestRegisterDescription(t *testing.T) {
	d := testDirectory(t)

	c := codec.NewJSON()
	decoded, err := c.Decode(`{"uid":"remote-1","name":"remote","accesses":{"http":{"port":9000,"path":"/herald"}}}`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	peer, err := d.RegisterDescription(decoded.(*codec.Map), "10.0.0.9")
	if err != nil {
		t.Fatalf("RegisterDescription failed: %v", err)
	}

	if peer.UID != "remote-1" {
		t.Errorf("Expected uid remote-1, got %q", peer.UID)
	}
	if peer.Access.Host != "10.0.0.9" {
		t.Errorf("Expected fallback host, got %q", peer.Access.Host)
	}
	if peer.Access.Port != 9000 || peer.Access.Path != "/herald" {
		t.Errorf("Unexpected access: %+v", peer.Access)
	}

	if err := d.CheckAccess("remote-1", "10.0.0.9", 9000); err != nil {
		t.Errorf("Registered peer should pass access check: %v", err)
	}
}

func TestRegisterDescriptionRejectsSelf(t *testing.T) {
	d := testDirectory(t)

	desc := codec.NewMap()
	desc.Set("uid", "local-peer")
	if _, err := d.RegisterDescription(desc, ""); err == nil {
		t.Error("Expected error registering our own description")
	}
}

func TestRegisterDescriptionRequiresUID(t *testing.T) {
	d := testDirectory(t)

	if _, err := d.RegisterDescription(codec.NewMap(), ""); err == nil {
		t.Error("Expected error for description without uid")
	}
}
