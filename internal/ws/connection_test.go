package ws

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
)

// newPipeConn registers a Connection backed by one end of a net.Pipe. The
// pipe has no buffer: a write blocks until the far end reads, which makes a
// non-reading client behave exactly like a stalled peer.
func newPipeConn(t *testing.T, fd int) (*Connection, net.Conn) {
	t.Helper()

	server, client := net.Pipe()
	c := &Connection{
		ID:        fmt.Sprintf("conn-%d", fd),
		UserID:    int64(fd),
		Conn:      server,
		Fd:        fd,
		CreatedAt: time.Now(),
		LastPing:  time.Now(),
	}

	cm := NewConnectionManager()
	cm.Add(c)

	t.Cleanup(func() {
		client.Close()
		c.Close()
	})
	return c, client
}

func TestSendReturnsImmediatelyForStalledPeer(t *testing.T) {
	c, _ := newPipeConn(t, 1)

	// The client end never reads, so every frame parks on the egress queue.
	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := c.Send([]byte(`{"type":"new_message"}`)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("enqueuing 10 frames took %s, want an immediate return", elapsed)
	}
}

func TestWriterDeliversFramesInOrder(t *testing.T) {
	c, client := newPipeConn(t, 2)

	const frames = 20
	for i := 0; i < frames; i++ {
		if err := c.Send([]byte(fmt.Sprintf("frame-%02d", i))); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < frames; i++ {
		frame, err := ws.ReadFrame(client)
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		want := fmt.Sprintf("frame-%02d", i)
		if string(frame.Payload) != want {
			t.Fatalf("frame %d = %q, want %q", i, frame.Payload, want)
		}
	}
}

func TestSendFailsOnceEgressQueueFills(t *testing.T) {
	c, _ := newPipeConn(t, 3)

	// The writer can hold at most one frame in flight on the stalled pipe;
	// everything past the queue capacity must be rejected, not block.
	var err error
	for i := 0; i < egressBuffer+2; i++ {
		err = c.Send([]byte("x"))
	}
	if err == nil {
		t.Error("expected an error once the egress queue filled")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	c, _ := newPipeConn(t, 4)

	c.Close()
	if err := c.Send([]byte("x")); err == nil {
		t.Error("expected an error sending on a closed connection")
	}
}
