package memory

import (
	"context"
	"errors"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "harvest-runs", map[string]string{"market": "uk"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "harvest-runs", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "harvest-runs" || msgs[1].Topic != "harvest-runs" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherFailureInjection(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("broker unavailable")
	pub.FailWith(boom)
	if _, err := pub.Publish(context.Background(), "harvest-runs", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("failed publish must not be recorded")
	}

	pub.FailWith(nil)
	if _, err := pub.Publish(context.Background(), "harvest-runs", "x"); err != nil {
		t.Fatalf("publish after clearing injection: %v", err)
	}
}

func TestPublisherRejectsAfterClose(t *testing.T) {
	t.Parallel()

	pub := New()
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := pub.Publish(context.Background(), "harvest-runs", "x"); err == nil {
		t.Fatal("expected publish after close to fail")
	}
}
