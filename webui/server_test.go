package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeMonitor struct {
	snap atomic.Value
}

func newFakeMonitor(s Snapshot) *fakeMonitor {
	m := &fakeMonitor{}
	m.snap.Store(s)
	return m
}

func (m *fakeMonitor) Snapshot() Snapshot { return m.snap.Load().(Snapshot) }

func freePort(t *testing.T) int {
	t.Helper()
	// Use a high, unlikely-to-collide port per test rather than asking the
	// OS for one, since Server takes a fixed port rather than a listener.
	return 19000 + int(time.Now().UnixNano()%1000)
}

func TestAPIStateServesSnapshot(t *testing.T) {
	t.Parallel()

	want := Snapshot{
		Channels:      []ChannelSnapshot{{Channel: 0, EarlyKey: "1,2,3,4,5,6,7,8,9"}},
		PausePlayback: true,
		PeakLevel:     0.5,
	}
	mon := newFakeMonitor(want)
	port := freePort(t)
	s := NewServer(mon, port)

	go s.Start()
	defer s.Shutdown(context.Background())
	waitForServer(t, port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/state", port))
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}

	var got Snapshot
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v, body: %s", err, body)
	}
	if got.PausePlayback != want.PausePlayback || got.PeakLevel != want.PeakLevel {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.Channels) != 1 || got.Channels[0].EarlyKey != want.Channels[0].EarlyKey {
		t.Errorf("got channels %+v, want %+v", got.Channels, want.Channels)
	}
}

func TestWebSocketReceivesSnapshotOnConnect(t *testing.T) {
	t.Parallel()

	want := Snapshot{PeakLevel: 0.25}
	mon := newFakeMonitor(want)
	port := freePort(t) + 1
	s := NewServer(mon, port)

	go s.Start()
	defer s.Shutdown(context.Background())
	waitForServer(t, port)

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading first message: %v", err)
	}

	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.PeakLevel != want.PeakLevel {
		t.Errorf("got peak %v, want %v", got.PeakLevel, want.PeakLevel)
	}
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/state", port))
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("webui server did not come up in time")
}
