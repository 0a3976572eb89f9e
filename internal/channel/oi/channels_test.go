package oi

import (
	"context"
	"testing"
	"time"

	"oiflow/models"
)

func TestSendRawAndStats(t *testing.T) {
	ch := NewChannels(1)
	defer ch.Close()

	msg := models.RawOIMessage{Source: "nse", Symbol: "NIFTY", Data: []byte(`{}`), Timestamp: time.Now()}

	if !ch.SendRaw(context.Background(), msg) {
		t.Fatal("expected send to succeed with free buffer")
	}
	// Buffer is full now; the send must drop instead of blocking.
	if ch.SendRaw(context.Background(), msg) {
		t.Fatal("expected send to drop on full buffer")
	}

	stats := ch.GetStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendRawCancelledContext(t *testing.T) {
	ch := NewChannels(0)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ch.SendRaw(ctx, models.RawOIMessage{}) {
		t.Fatal("expected send to fail with cancelled context")
	}
}
