package httpserver_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"shorturl.local/internal/platform/config"
	"shorturl.local/internal/platform/httpserver"
)

func TestHTTPServerNew_UsesConfigAndHandler(t *testing.T) {
	cfg := config.Config{
		Addr:              "127.0.0.1:0",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      4 * time.Second,
		IdleTimeout:       5 * time.Second,
	}
	handler := http.NewServeMux()

	srv := httpserver.New(cfg, handler)

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr: got %q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.Handler != handler {
		t.Fatalf("Handler: got %T, want %T", srv.Handler, handler)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout: got %v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout: got %v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
	if srv.WriteTimeout != cfg.WriteTimeout {
		t.Fatalf("WriteTimeout: got %v, want %v", srv.WriteTimeout, cfg.WriteTimeout)
	}
	if srv.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("IdleTimeout: got %v, want %v", srv.IdleTimeout, cfg.IdleTimeout)
	}
}

func TestRunWithGracefulShutdownContext_CancelStopsServer(t *testing.T) {
	cfg := config.Config{
		Addr:              "127.0.0.1:0",
		ReadHeaderTimeout: 500 * time.Millisecond,
		ReadTimeout:       500 * time.Millisecond,
		WriteTimeout:      500 * time.Millisecond,
		IdleTimeout:       500 * time.Millisecond,
	}
	srv := httpserver.New(cfg, http.NewServeMux())

	stopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- httpserver.RunWithGracefulShutdownContext(srv, 500*time.Millisecond, stopCtx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func TestRunWithGracefulShutdownContext_ReturnsListenError(t *testing.T) {
	srv := httpserver.New(config.Config{Addr: "256.0.0.1:99999"}, http.NewServeMux())

	done := make(chan error, 1)
	go func() {
		done <- httpserver.RunWithGracefulShutdownContext(srv, 100*time.Millisecond, context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected listen error for invalid address")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for listen error")
	}
}

func TestNewAdmin_UsesAdminAddr(t *testing.T) {
	cfg := config.Config{Addr: "127.0.0.1:9999", AdminAddr: "127.0.0.1:6060", IdleTimeout: time.Second}
	srv := httpserver.NewAdmin(cfg, http.NewServeMux())
	if srv.Addr != cfg.AdminAddr {
		t.Fatalf("Addr: got %q, want %q", srv.Addr, cfg.AdminAddr)
	}
	if srv.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("IdleTimeout: got %v, want %v", srv.IdleTimeout, cfg.IdleTimeout)
	}
}

func TestServe_OneFailureStopsTheOthers(t *testing.T) {
	good := httpserver.New(config.Config{Addr: "127.0.0.1:0"}, http.NewServeMux())
	bad := httpserver.New(config.Config{Addr: "256.0.0.1:99999"}, http.NewServeMux())

	done := make(chan error, 1)
	go func() {
		done <- httpserver.Serve(context.Background(), 200*time.Millisecond, good, bad)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the listen error to be returned")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after one server failed")
	}
}

func TestServe_CancelStopsAll(t *testing.T) {
	a := httpserver.New(config.Config{Addr: "127.0.0.1:0"}, http.NewServeMux())
	b := httpserver.New(config.Config{Addr: "127.0.0.1:0"}, http.NewServeMux())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- httpserver.Serve(ctx, 200*time.Millisecond, a, b)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}
