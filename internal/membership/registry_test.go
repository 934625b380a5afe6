package membership

import (
	"fmt"
	"sync"
	"testing"
)

func TestJoinAndMembers(t *testing.T) {
	r := NewRegistry()

	r.Join("c1", "chat_1_2")
	r.Join("c2", "chat_1_2")
	r.Join("c1", "chat_1_3")

	members := r.Members("chat_1_2")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if !r.IsMember("c1", "chat_1_2") || !r.IsMember("c2", "chat_1_2") {
		t.Error("both connections should be members of chat_1_2")
	}
	if r.IsMember("c2", "chat_1_3") {
		t.Error("c2 never joined chat_1_3")
	}
}

func TestJoinIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Join("c1", "chat_1_2")
	r.Join("c1", "chat_1_2")

	if got := len(r.Members("chat_1_2")); got != 1 {
		t.Errorf("expected 1 member after double join, got %d", got)
	}
}

func TestLeave(t *testing.T) {
	r := NewRegistry()

	r.Join("c1", "chat_1_2")
	r.Leave("c1", "chat_1_2")

	if r.IsMember("c1", "chat_1_2") {
		t.Error("c1 should no longer be a member")
	}
	if members := r.Members("chat_1_2"); members != nil {
		t.Errorf("expected nil members, got %v", members)
	}
}

func TestDropConnection(t *testing.T) {
	r := NewRegistry()

	r.Join("c1", "chat_1_2")
	r.Join("c1", "chat_1_3")
	r.Join("c2", "chat_1_2")

	r.DropConnection("c1")

	if r.IsMember("c1", "chat_1_2") || r.IsMember("c1", "chat_1_3") {
		t.Error("dropped connection should not remain a member anywhere")
	}
	if members := r.Members("chat_1_2"); len(members) != 1 || members[0] != "c2" {
		t.Errorf("chat_1_2 members = %v, want [c2]", members)
	}
	if members := r.Members("chat_1_3"); members != nil {
		t.Errorf("chat_1_3 members = %v, want nil", members)
	}

	// Dropping an unknown connection is a no-op.
	r.DropConnection("ghost")
}

func TestConcurrentJoinDrop(t *testing.T) {
	r := NewRegistry()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			r.Join(connID, "chat_1_2")
			r.Join(connID, fmt.Sprintf("chat_1_%d", i+10))
			if i%2 == 0 {
				r.DropConnection(connID)
			}
		}(i)
	}
	wg.Wait()

	if got := len(r.Members("chat_1_2")); got != workers/2 {
		t.Errorf("expected %d members, got %d", workers/2, got)
	}
}
