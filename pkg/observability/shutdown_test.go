package observability

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("expected 30s default, got %v", sm.shutdownTimeout)
	}
}

func TestShutdownManager_RunsFuncsInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	var order []string
	sm.RegisterShutdownFunc("store", func(context.Context) error {
		order = append(order, "store")
		return nil
	})
	sm.RegisterShutdownFunc("cache", func(context.Context) error {
		order = append(order, "cache")
		return nil
	})

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "cache" || order[1] != "store" {
		t.Errorf("unexpected order: %v", order)
	}
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)

	errA := errors.New("a failed")
	ran := false
	sm.RegisterShutdownFunc("b", func(context.Context) error {
		ran = true
		return nil
	})
	sm.RegisterShutdownFunc("a", func(context.Context) error { return errA })

	err := sm.Shutdown(context.Background())
	if !errors.Is(err, errA) {
		t.Fatalf("expected wrapped errA, got %v", err)
	}
	if !ran {
		t.Error("later functions must still run after a failure")
	}
}

func TestShutdownManager_StopsServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(ln) }()

	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)
	sm.AddServer(server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sm.WaitForShutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("expected ErrServerClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}
