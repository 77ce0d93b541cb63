package livefeed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
)

func TestFeedURL(t *testing.T) {
	if got := FeedURL("meter.local:9039", false); got != "ws://meter.local:9039/ws" {
		t.Errorf("plain = %s", got)
	}
	if got := FeedURL("meter.local:9039", true); got != "wss://meter.local:9039/ws" {
		t.Errorf("tls = %s", got)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubToListener(t *testing.T) {
	first := &types.MeterReadings{VoltageR: 230.1, ReadCount: 1, Valid: true}
	hub := NewHub(func() *types.MeterReadings { return first })
	srv := httptest.NewServer(hub)
	defer srv.Close()

	got := make(chan *types.MeterReadings, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Listen(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), func(r *types.MeterReadings) {
			got <- r
		})
		close(done)
	}()

	select {
	case r := <-got:
		if r.VoltageR != 230.1 {
			t.Errorf("initial snapshot = %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("initial snapshot not delivered")
	}

	waitFor(t, "client registration", func() bool { return hub.Clients() == 1 })
	hub.Broadcast(&types.MeterReadings{Frequency: 50, ReadCount: 1, Valid: true})

	select {
	case r := <-got:
		if r.Frequency != 50 || !r.Valid {
			t.Errorf("broadcast snapshot = %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("broadcast not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
	waitFor(t, "client removal", func() bool { return hub.Clients() == 0 })
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast(&types.MeterReadings{Valid: true})
	if hub.Clients() != 0 {
		t.Error("clients appeared from nowhere")
	}
}

func TestListenStopsWhileRetrying(t *testing.T) {
	srv := httptest.NewServer(NewHub(nil))
	feed := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		Listen(ctx, feed, func(*types.MeterReadings) { t.Error("reading from a closed server") })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Listen kept retrying after the context ended")
	}
}
