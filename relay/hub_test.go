package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

func newTestRelay(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	m := NewManager()
	router := httprouter.New()
	router.GET("/room/:roomid/ws", ServeWS(m))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return m, srv
}

func recvInto(ch chan []byte) func([]byte) {
	return func(data []byte) {
		cp := append([]byte(nil), data...)
		ch <- cp
	}
}

func expectFrame(t *testing.T, who string, ch chan []byte, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if string(got) != want {
			t.Fatalf("%s received %q, want %q", who, got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never received %q", who, want)
	}
}

func TestRoomFansOutToAllIncludingSender(t *testing.T) {
	_, srv := newTestRelay(t)

	aliceIn := make(chan []byte, 8)
	bobIn := make(chan []byte, 8)

	alice, err := Dial(srv.URL, "testroom", "alice", recvInto(aliceIn))
	if err != nil {
		t.Fatalf("Dial(alice): %v", err)
	}
	defer alice.Close()

	bob, err := Dial(srv.URL, "testroom", "bob", recvInto(bobIn))
	if err != nil {
		t.Fatalf("Dial(bob): %v", err)
	}
	defer bob.Close()

	if err := alice.Publish([]byte("hello"), true); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// The room echoes to every connection; filtering the sender's own
	// frame is the peer's job.
	expectFrame(t, "bob", bobIn, "hello")
	expectFrame(t, "alice", aliceIn, "hello")
}

func TestRoomsAreIsolated(t *testing.T) {
	_, srv := newTestRelay(t)

	aIn := make(chan []byte, 8)
	bIn := make(chan []byte, 8)

	a, err := Dial(srv.URL, "room-a", "alice", recvInto(aIn))
	if err != nil {
		t.Fatalf("Dial(room-a): %v", err)
	}
	defer a.Close()

	b, err := Dial(srv.URL, "room-b", "bob", recvInto(bIn))
	if err != nil {
		t.Fatalf("Dial(room-b): %v", err)
	}
	defer b.Close()

	if err := a.Publish([]byte("only room a"), true); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	expectFrame(t, "alice", aIn, "only room a")
	select {
	case got := <-bIn:
		t.Fatalf("frame leaked across rooms: %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	_, srv := newTestRelay(t)

	c, err := Dial(srv.URL, "testroom", "alice", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Publish([]byte("late"), true); err == nil {
		t.Fatal("Publish on a closed client succeeded")
	}
}

func TestNewRoomID(t *testing.T) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		id := NewRoomID()
		if len(id) != 8 {
			t.Fatalf("len(%q) = %d, want 8", id, len(id))
		}
		for _, r := range id {
			if !strings.ContainsRune(letters, r) {
				t.Fatalf("id %q contains %q", id, r)
			}
		}
		seen[id] = true
	}
	if len(seen) < 60 {
		t.Fatalf("only %d distinct ids out of 64", len(seen))
	}
}

func TestReapDropsIdleEmptyRooms(t *testing.T) {
	m := NewManager()

	stale := m.room("stale")
	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	fresh := m.room("fresh")
	_ = fresh

	m.Reap(30 * time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms["stale"]; ok {
		t.Fatal("stale room survived the reap")
	}
	if _, ok := m.rooms["fresh"]; !ok {
		t.Fatal("fresh room was reaped")
	}
}
