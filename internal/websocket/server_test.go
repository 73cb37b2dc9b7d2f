package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/metarboard/internal/weather"
	"github.com/yegors/metarboard/pkg/logger"
)

func startHub(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()

	snapshot := func() map[string]any {
		return map[string]any{"stations": []string{"EPWA"}}
	}
	s := NewServer(snapshot, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	httpServer := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return s, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return m
}

func waitForClients(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", s.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	_, conn := startHub(t)

	m := readMessage(t, conn)
	if m.Type != MessageTypeStationsSnapshot {
		t.Fatalf("first message type = %q, want %q", m.Type, MessageTypeStationsSnapshot)
	}
	if _, ok := m.Data["stations"]; !ok {
		t.Errorf("snapshot data = %v", m.Data)
	}
}

func TestNotifyBroadcasts(t *testing.T) {
	s, conn := startHub(t)
	readMessage(t, conn)
	waitForClients(t, s, 1)

	s.Notify(weather.Notification{
		Type:    weather.NotificationRefresh,
		Feed:    weather.FeedMETAR,
		Changed: []string{"EPWA", "EPKK"},
		At:      time.Date(2024, 5, 16, 12, 30, 0, 0, time.UTC),
	})

	m := readMessage(t, conn)
	if m.Type != MessageTypeStationsRefresh {
		t.Fatalf("type = %q, want %q", m.Type, MessageTypeStationsRefresh)
	}
	if m.Data["feed"] != "metar" {
		t.Errorf("feed = %v", m.Data["feed"])
	}
	changed, ok := m.Data["changed"].([]any)
	if !ok || len(changed) != 2 || changed[0] != "EPWA" {
		t.Errorf("changed = %v", m.Data["changed"])
	}

	s.Notify(weather.Notification{Type: weather.NotificationDataError, Feed: weather.FeedMETAR})
	if m := readMessage(t, conn); m.Type != MessageTypeDataError {
		t.Errorf("type = %q, want %q", m.Type, MessageTypeDataError)
	}
}

func TestSnapshotRequest(t *testing.T) {
	_, conn := startHub(t)
	readMessage(t, conn)

	if err := conn.WriteJSON(Message{Type: MessageTypeSnapshotRequest}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if m := readMessage(t, conn); m.Type != MessageTypeStationsSnapshot {
		t.Errorf("type = %q, want %q", m.Type, MessageTypeStationsSnapshot)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	s, conn := startHub(t)
	readMessage(t, conn)
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)
}
