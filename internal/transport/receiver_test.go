package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/heraldmesh/heraldmesh/internal/codec"
	"github.com/heraldmesh/heraldmesh/internal/directory"
	"github.com/heraldmesh/heraldmesh/internal/message"
)

type fakeRegistrar struct {
	path    string
	handler http.Handler
	err     error
	calls   int
}

func (f *fakeRegistrar) RegisterHandler(path string, handler http.Handler) error {
	f.calls++
	f.path = path
	f.handler = handler
	return f.err
}

func testReceiver(t *testing.T, reg HandlerRegistrar) (*Receiver, *directory.Directory) {
	t.Helper()
	dir, err := directory.New("local-peer", "local", nil, zap.NewNop())
	if err != nil {
		t.Fatalf("directory.New failed: %v", err)
	}
	handler := message.HandlerFunc(func(env *message.Envelope) {})
	return NewReceiver(nil, dir, codec.NewJSON(), handler, reg, zap.NewNop()), dir
}

func TestBindListenerNumericPort(t *testing.T) {
	reg := &fakeRegistrar{}
	recv, _ := testReceiver(t, reg)

	if err := recv.BindListener(8080); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}

	info := recv.AccessInfo()
	if info.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", info.Port)
	}
	if info.Path != DefaultPath {
		t.Errorf("Expected path %s, got %s", DefaultPath, info.Path)
	}
	if info.Host != "" {
		t.Errorf("Expected absent host, got %q", info.Host)
	}
	if !recv.Ready() {
		t.Error("Expected receiver to be ready after bind")
	}
	if reg.path != DefaultPath {
		t.Errorf("Handler registered at %q, want %q", reg.path, DefaultPath)
	}
}

func TestBindListenerTextualPort(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if err := recv.BindListener("9000"); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}
	if got := recv.AccessInfo().Port; got != 9000 {
		t.Errorf("Expected port 9000, got %d", got)
	}
}

func TestBindListenerJSONNumberPort(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if err := recv.BindListener(json.Number("7070")); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}
	if got := recv.AccessInfo().Port; got != 7070 {
		t.Errorf("Expected port 7070, got %d", got)
	}
}

func TestBindListenerUnknownPortRepresentation(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if err := recv.BindListener(struct{}{}); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}

	if got := recv.AccessInfo().Port; got != -1 {
		t.Errorf("Expected sentinel port -1, got %d", got)
	}
	if recv.Ready() {
		t.Error("Receiver must not be ready with an unknown port")
	}
}

func TestBindListenerUnparsableString(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if err := recv.BindListener("not-a-port"); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}
	if got := recv.AccessInfo().Port; got != -1 {
		t.Errorf("Expected sentinel port -1, got %d", got)
	}
}

func TestBindListenerRegistrationFailure(t *testing.T) {
	reg := &fakeRegistrar{err: errors.New("already registered")}
	recv, _ := testReceiver(t, reg)

	if err := recv.BindListener(8080); err == nil {
		t.Fatal("Expected error when registration fails")
	}
	if recv.Ready() {
		t.Error("Receiver must not be ready when registration fails")
	}
}

func TestUnbindListener(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if err := recv.BindListener(8080); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}
	recv.UnbindListener()

	if got := recv.AccessInfo().Port; got != 0 {
		t.Errorf("Expected port 0 after unbind, got %d", got)
	}
	if recv.Ready() {
		t.Error("Receiver must not be ready after unbind")
	}
}

func TestRebindReflectsLatestPort(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if err := recv.BindListener(8080); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}
	recv.UnbindListener()
	if err := recv.BindListener(8081); err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}

	if got := recv.AccessInfo().Port; got != 8081 {
		t.Errorf("Expected port 8081 after rebind, got %d", got)
	}
}

func TestBindUpdatesDirectoryLocalAccess(t *testing.T) {
	recv, dir := testReceiver(t, &fakeRegistrar{})

	if err := recv.BindListener(8080); err != nil {
		t.Fatalf("BindListener failed: %v", err)
	}

	local := dir.LocalPeer()
	if local.Access.Port != 8080 || local.Access.Path != DefaultPath {
		t.Errorf("Directory local access not updated: %+v", local.Access)
	}
}

func TestHandleMessageForwards(t *testing.T) {
	var received *message.Envelope
	dir, err := directory.New("local-peer", "local", nil, zap.NewNop())
	if err != nil {
		t.Fatalf("directory.New failed: %v", err)
	}
	recv := NewReceiver(nil, dir, codec.NewJSON(), message.HandlerFunc(func(env *message.Envelope) {
		received = env
	}), &fakeRegistrar{}, zap.NewNop())

	env := message.New("p", "subject", nil)
	recv.HandleMessage(env)

	if received != env {
		t.Error("Envelope was not forwarded to the routing core")
	}
}

func TestLocalPeerPassthrough(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if got := recv.LocalPeer().UID; got != "local-peer" {
		t.Errorf("Expected local-peer, got %q", got)
	}
}

func TestCheckAccessDelegation(t *testing.T) {
	recv, dir := testReceiver(t, &fakeRegistrar{})
	if err := dir.Register(directory.Peer{UID: "peerA", Access: directory.Access{Host: "10.0.0.5", Port: 9000}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := recv.CheckAccess("peerA", "10.0.0.5", 9000); err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if err := recv.CheckAccess("peerA", "10.0.0.5", 9001); !errors.Is(err, directory.ErrAccessMismatch) {
		t.Errorf("Expected ErrAccessMismatch, got %v", err)
	}
	if err := recv.CheckAccess("nobody", "10.0.0.5", 9000); !errors.Is(err, directory.ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
}

func TestCodecErrorsPropagate(t *testing.T) {
	recv, _ := testReceiver(t, &fakeRegistrar{})

	if _, err := recv.Decode("{broken"); err == nil {
		t.Error("Expected decode error to propagate")
	} else {
		var decodeErr *codec.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("Expected *codec.DecodeError, got %T", err)
		}
	}

	if _, err := recv.Encode(make(chan int)); err == nil {
		t.Error("Expected encode error to propagate")
	} else {
		var encodeErr *codec.EncodeError
		if !errors.As(err, &encodeErr) {
			t.Errorf("Expected *codec.EncodeError, got %T", err)
		}
	}
}
