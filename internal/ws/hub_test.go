package ws

import (
	"testing"
)

func TestRegisterReplacesExistingConnection(t *testing.T) {
	h := NewHub()
	old := &Client{sessionID: "s1", send: make(chan []byte, 1)}
	h.register(old)

	replacement := &Client{sessionID: "s1", send: make(chan []byte, 1)}
	h.register(replacement)

	// The replaced client's send channel is closed so its writePump exits.
	select {
	case _, open := <-old.send:
		if open {
			t.Fatal("old send channel delivered a message instead of closing")
		}
	default:
		t.Fatal("old send channel not closed on replacement")
	}

	if !h.Connected("s1") {
		t.Fatal("session not connected after replacement")
	}
}

func TestUnregisterOnlyRemovesCurrentClient(t *testing.T) {
	h := NewHub()
	old := &Client{sessionID: "s1", send: make(chan []byte, 1)}
	h.register(old)
	replacement := &Client{sessionID: "s1", send: make(chan []byte, 1)}
	h.register(replacement)

	// The replaced connection's teardown must not evict the replacement.
	if h.unregister(old) {
		t.Fatal("stale client unregister reported as disconnect")
	}
	if !h.Connected("s1") {
		t.Fatal("replacement evicted by stale unregister")
	}

	if !h.unregister(replacement) {
		t.Fatal("current client unregister not reported")
	}
	if h.Connected("s1") {
		t.Fatal("session still connected after unregister")
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	c := &Client{sessionID: "s1", send: make(chan []byte, 1)}
	h.register(c)

	h.Broadcast(map[string]string{"type": "state"})
	h.Broadcast(map[string]string{"type": "state"}) // buffer full, dropped

	if got := len(c.send); got != 1 {
		t.Fatalf("buffered messages = %d, want 1", got)
	}
}
