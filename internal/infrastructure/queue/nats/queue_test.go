package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

func TestListCreatedEventRoundTrip(t *testing.T) {
	created := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	payload, err := encodeListCreated(domain.List{ID: 9, Name: "Camping", CreatedAt: created}, 4)
	if err != nil {
		t.Fatalf("encodeListCreated() error = %v", err)
	}
	event, err := decodeListCreated(payload)
	if err != nil {
		t.Fatalf("decodeListCreated() error = %v", err)
	}
	if event.ListID != 9 || event.Name != "Camping" || event.ItemCount != 4 || !event.CreatedAt.Equal(created) {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := decodeListCreated([]byte(`{"name":"x"}`)); err == nil {
		t.Fatalf("expected error for event without id")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(nats.ErrNoServers); !class.Retryable {
		t.Fatalf("no servers should be retryable")
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("canceled context should be neither retried nor recorded")
	}
	err := wrapTemporaryIfNeeded(nats.ErrConnectionClosed)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	plain := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(plain); got != plain {
		t.Fatalf("permanent error should pass through, got %v", got)
	}
}
