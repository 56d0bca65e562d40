package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestWSStreamDeliversRecordsAndCloses(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &scriptClient{pieces: []string{"Hel", "lo"}})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp := postMessage(t, ts.URL, "conv-1", `{"text":"hi"}`)
	taskID := decodeTaskID(t, resp)
	waitTerminal(t, s.Registry, taskID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/tasks/" + taskID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var records []string
	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("Read ended with %v, want normal closure; records=%v", err, records)
			}
			break
		}
		if mt != websocket.MessageText {
			t.Fatalf("message type = %v, want text", mt)
		}
		records = append(records, string(data))
	}

	want := []string{
		`{"type":"chunk","content":"Hel","index":0}`,
		`{"type":"chunk","content":"lo","index":1}`,
		`{"type":"done"}`,
	}
	if len(records) != len(want) {
		t.Fatalf("records = %v, want %v", records, want)
	}
	for i := range want {
		if records[i] != want[i] {
			t.Fatalf("records[%d] = %q, want %q", i, records[i], want[i])
		}
	}
}

func TestWSUnknownTaskRejectedBeforeUpgrade(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &scriptClient{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/tasks/nope/ws")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
