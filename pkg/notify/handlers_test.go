package notify

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSSEHandler(t *testing.T) {
	h := NewHub(4)
	server := httptest.NewServer(&SSEHandler{Hub: h})
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	waitForSubscribers(t, h, 1)
	h.Publish(Event{Message: "HI"})

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := "data: {\"message\":\"HI\"}\n"; line != want {
		t.Errorf("got %q, want %q", line, want)
	}
}

func TestWebSocketHandler(t *testing.T) {
	h := NewHub(4)
	server := httptest.NewServer(NewWebSocketHandler(h, "http://localhost:5173"))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	waitForSubscribers(t, h, 1)
	h.Publish(Event{Message: "héllo"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got["message"] != "héllo" || len(got) != 1 {
		t.Errorf("unexpected payload %v", got)
	}

	conn.Close()
	waitForSubscribers(t, h, 0)
}

func TestWebSocketOrigin(t *testing.T) {
	h := NewHub(4)
	server := httptest.NewServer(NewWebSocketHandler(h, "http://localhost:5173"))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("a foreign origin must be rejected")
	}

	header = http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("the allowed origin was rejected: %v", err)
	}
	conn.Close()
}
