package task

import "testing"

func TestEventEncode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{"chunk", ChunkEvent("Hel", 0), `{"type":"chunk","content":"Hel","index":0}`},
		{"chunk_later_index", ChunkEvent("lo", 7), `{"type":"chunk","content":"lo","index":7}`},
		{"done", DoneEvent(), `{"type":"done"}`},
		{"error", ErrorEvent("engine unreachable"), `{"type":"error","error":"engine unreachable"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ev.Encode()
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("Encode() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEventEncodeHeartbeatHasNoPayload(t *testing.T) {
	t.Parallel()

	if _, err := HeartbeatEvent().Encode(); err == nil {
		t.Fatalf("Encode() = nil error, heartbeat must have no wire payload")
	}
}

func TestEventTerminal(t *testing.T) {
	t.Parallel()

	if ChunkEvent("x", 0).Terminal() || HeartbeatEvent().Terminal() {
		t.Fatalf("chunk and heartbeat must not be terminal")
	}
	if !DoneEvent().Terminal() || !ErrorEvent("boom").Terminal() {
		t.Fatalf("done and error must be terminal")
	}
}
