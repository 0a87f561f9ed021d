package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestListenReportsBoundPort(t *testing.T) {
	s := New(&Config{Addr: "127.0.0.1:0"}, zap.NewNop())

	port, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer s.Shutdown(context.Background())

	if port <= 0 {
		t.Errorf("Expected a positive bound port, got %d", port)
	}
	if s.Port() != port {
		t.Errorf("Port() = %d, want %d", s.Port(), port)
	}
}

func TestPortBeforeListen(t *testing.T) {
	s := New(&Config{Addr: "127.0.0.1:0"}, zap.NewNop())
	if s.Port() != 0 {
		t.Errorf("Expected port 0 before Listen, got %d", s.Port())
	}
}

func TestRegisterHandlerAndServe(t *testing.T) {
	s := New(&Config{Addr: "127.0.0.1:0"}, zap.NewNop())

	err := s.RegisterHandler("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))
	if err != nil {
		t.Fatalf("RegisterHandler failed: %v", err)
	}

	port, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve()
	}()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", port))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "pong" {
		t.Errorf("Expected pong, got %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after Shutdown")
	}
}

func TestRegisterHandlerDuplicatePath(t *testing.T) {
	s := New(&Config{Addr: "127.0.0.1:0"}, zap.NewNop())

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if err := s.RegisterHandler("/herald", h); err != nil {
		t.Fatalf("First RegisterHandler failed: %v", err)
	}
	if err := s.RegisterHandler("/herald", h); err == nil {
		t.Error("Expected error for duplicate path")
	}
}

func TestRegisterHandlerInvalidPath(t *testing.T) {
	s := New(&Config{Addr: "127.0.0.1:0"}, zap.NewNop())

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	for _, path := range []string{"", "herald"} {
		if err := s.RegisterHandler(path, h); err == nil {
			t.Errorf("Expected error for path %q", path)
		}
	}
}

func TestServeBeforeListen(t *testing.T) {
	s := New(&Config{Addr: "127.0.0.1:0"}, zap.NewNop())
	if err := s.Serve(); err == nil {
		t.Error("Expected error serving before Listen")
	}
}
