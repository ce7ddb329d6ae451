package transport

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"chainmesh/core/status"
)

func TestSendToUnknownEndpointFails(t *testing.T) {
	tr := New(1, NetworkParams{Latency: time.Millisecond, DropRate: 0}, 2)
	defer tr.Shutdown()

	if err := tr.Send("a", "b", "hi"); !status.Is(err, status.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	tr := New(1, NetworkParams{}, 2)
	defer tr.Shutdown()

	tr.RegisterEndpoint("a", func(string) {})
	if err := tr.RegisterEndpoint("a", func(string) {}); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestSendDeliversAfterLatency(t *testing.T) {
	tr := New(1, NetworkParams{Latency: 10 * time.Millisecond, DropRate: 0}, 2)
	defer tr.Shutdown()

	var mu sync.Mutex
	var got string
	done := make(chan struct{})
	tr.RegisterEndpoint("b", func(data string) {
		mu.Lock()
		got = data
		mu.Unlock()
		close(done)
	})

	if err := tr.Send("a", "b", "payload"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if got != "payload" {
		t.Fatalf("expected payload delivered, got %q", got)
	}
}

func TestSendAlwaysDropsAtFullDropRate(t *testing.T) {
	tr := New(1, NetworkParams{Latency: time.Millisecond, DropRate: 1.0}, 2)
	defer tr.Shutdown()

	tr.RegisterEndpoint("b", func(string) {})
	if err := tr.Send("a", "b", "x"); !status.Is(err, status.NetworkDrop) {
		t.Fatalf("expected NetworkDrop, got %v", err)
	}
}

func TestWaitForPendingDeliveries(t *testing.T) {
	tr := New(1, NetworkParams{Latency: 5 * time.Millisecond, DropRate: 0}, 2)
	defer tr.Shutdown()

	var count int
	var mu sync.Mutex
	tr.RegisterEndpoint("b", func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		tr.Send("a", "b", "x")
	}
	tr.WaitForPendingDeliveries()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Fatalf("expected all 5 delivered, got %d", count)
	}
}

func TestSameDestinationDeliveredInSendOrder(t *testing.T) {
	tr := New(1, NetworkParams{Latency: 5 * time.Millisecond, DropRate: 0}, 4)
	defer tr.Shutdown()

	const n = 50
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	delivered := 0
	tr.RegisterEndpoint("b", func(data string) {
		mu.Lock()
		order = append(order, data)
		delivered++
		if delivered == n {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < n; i++ {
		if err := tr.Send("a", "b", strconv.Itoa(i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != strconv.Itoa(i) {
			t.Fatalf("delivery %d out of order: expected %q, got %q (full order: %v)", i, strconv.Itoa(i), got, order)
		}
	}
}

func TestUnregisterUnknownFails(t *testing.T) {
	tr := New(1, NetworkParams{}, 2)
	defer tr.Shutdown()

	if err := tr.UnregisterEndpoint("nope"); !status.Is(err, status.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
