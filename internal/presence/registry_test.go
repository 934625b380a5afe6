package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestConnectDisconnectEdges(t *testing.T) {
	r := NewRegistry()

	if !r.Connect(1, "c1") {
		t.Error("first connection should report cameOnline")
	}
	if r.Connect(1, "c2") {
		t.Error("second connection should not report cameOnline")
	}
	if !r.IsOnline(1) {
		t.Error("user 1 should be online")
	}

	if r.Disconnect(1, "c1") {
		t.Error("disconnect with another connection open should not report wentOffline")
	}
	if !r.Disconnect(1, "c2") {
		t.Error("last disconnect should report wentOffline")
	}
	if r.IsOnline(1) {
		t.Error("user 1 should be offline")
	}
}

func TestDisconnectUnknownConnection(t *testing.T) {
	r := NewRegistry()

	if r.Disconnect(7, "ghost") {
		t.Error("disconnecting an unregistered connection must not report wentOffline")
	}

	r.Connect(7, "c1")
	if r.Disconnect(7, "ghost") {
		t.Error("disconnecting a connection the user never had must not report wentOffline")
	}
	if !r.IsOnline(7) {
		t.Error("user 7 should still be online")
	}
}

func TestConnectionsOf(t *testing.T) {
	r := NewRegistry()

	if conns := r.ConnectionsOf(3); conns != nil {
		t.Errorf("expected nil for unknown user, got %v", conns)
	}

	r.Connect(3, "a")
	r.Connect(3, "b")
	conns := r.ConnectionsOf(3)
	if len(conns) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(conns))
	}
	seen := map[string]bool{}
	for _, c := range conns {
		seen[c] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("expected {a, b}, got %v", conns)
	}
}

func TestOnlineCount(t *testing.T) {
	r := NewRegistry()

	r.Connect(1, "c1")
	r.Connect(2, "c2")
	r.Connect(2, "c3")
	if got := r.OnlineCount(); got != 2 {
		t.Errorf("OnlineCount = %d, want 2", got)
	}

	r.Disconnect(2, "c2")
	r.Disconnect(2, "c3")
	if got := r.OnlineCount(); got != 1 {
		t.Errorf("OnlineCount after user 2 left = %d, want 1", got)
	}
}

// TestConcurrentEdgesExactlyOnce hammers one user with concurrent
// connect/disconnect pairs and verifies the online/offline edges balance.
func TestConcurrentEdgesExactlyOnce(t *testing.T) {
	r := NewRegistry()

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	online, offline := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			if r.Connect(42, connID) {
				mu.Lock()
				online++
				mu.Unlock()
			}
			if r.Disconnect(42, connID) {
				mu.Lock()
				offline++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if online != offline {
		t.Errorf("online edges (%d) != offline edges (%d)", online, offline)
	}
	if online == 0 {
		t.Error("expected at least one online edge")
	}
	if r.IsOnline(42) {
		t.Error("user 42 should be offline after all disconnects")
	}
}

func TestConcurrentDistinctUsers(t *testing.T) {
	r := NewRegistry()

	const users = 100
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.Connect(id, fmt.Sprintf("conn-%d", id))
		}(int64(i))
	}
	wg.Wait()

	if got := r.OnlineCount(); got != users {
		t.Errorf("OnlineCount = %d, want %d", got, users)
	}
}
