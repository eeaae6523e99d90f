package store_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/resilience"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store/rpc"
)

func TestGatewayRetriesRPCClientTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"results":[{"rows":[{"n":1}]}]}`))
	}))
	defer server.Close()

	client := rpc.New(rpc.Config{URL: server.URL, Timeout: 50 * time.Millisecond})
	gw := store.New(client, resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	})

	rows, err := gw.Query(context.Background(), store.NewStatement("SELECT 1 AS n"))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %v", rows)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestGatewayDoesNotRetryCallerDeadline(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := rpc.New(rpc.Config{URL: server.URL, Timeout: 5 * time.Second})
	gw := store.New(client, resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := gw.Query(ctx, store.NewStatement("SELECT 1")); err == nil {
		t.Fatalf("expected deadline error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}
