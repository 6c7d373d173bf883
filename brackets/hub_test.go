package brackets

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func waitForClients(t *testing.T, h *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount(room) != want {
		if time.Now().After(deadline) {
			t.Fatalf("room %s has %d clients, want %d", room, h.ClientCount(room), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsOnlyToRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.Run(ctx)

	first := NewClient(h, nil, RoomForTournament(1))
	other := NewClient(h, nil, RoomForTournament(2))
	h.Register(first)
	h.Register(other)
	waitForClients(t, h, RoomForTournament(1), 1)
	waitForClients(t, h, RoomForTournament(2), 1)

	h.BroadcastToRoom(RoomForTournament(1), map[string]int{"contest_id": 5})

	select {
	case msg := <-first.send:
		if string(msg) != `{"contest_id":5}` {
			t.Errorf("unexpected payload %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("client in room did not receive the message")
	}
	select {
	case msg := <-other.send:
		t.Errorf("client in another room received %s", msg)
	default:
	}
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := NewClient(h, nil, RoomForTournament(3))
	h.Register(c)
	waitForClients(t, h, RoomForTournament(3), 1)

	cancel()
	<-stopped
	if _, ok := <-c.send; ok {
		t.Errorf("send channel must be closed after shutdown")
	}
	// registering after shutdown must not block
	late := NewClient(h, nil, RoomForTournament(3))
	h.Register(late)
	if h.ClientCount(RoomForTournament(3)) != 0 {
		t.Errorf("no clients expected after shutdown")
	}
}
