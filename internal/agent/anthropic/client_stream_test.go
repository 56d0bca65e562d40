package anthropic

import (
	"encoding/json"
	"testing"

	"relay-chat/internal/agent"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

func TestToolUseStreamState_EmitsToolCallAfterInputJSONDelta(t *testing.T) {
	state := newToolUseStreamState()

	var start anthropic.ContentBlockStartEvent
	if err := json.Unmarshal([]byte(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"web_search","input":{}}}`), &start); err != nil {
		t.Fatalf("unmarshal start: %v", err)
	}
	var delta1 anthropic.ContentBlockDeltaEvent
	if err := json.Unmarshal([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"query\":\"golang"}}`), &delta1); err != nil {
		t.Fatalf("unmarshal delta1: %v", err)
	}
	var delta2 anthropic.ContentBlockDeltaEvent
	if err := json.Unmarshal([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":" broker\"}"}}`), &delta2); err != nil {
		t.Fatalf("unmarshal delta2: %v", err)
	}

	var gotCalls []*agent.ToolCall
	onEvent := func(evt agent.StreamEvent) {
		if evt.Type == agent.StreamEventToolCall {
			gotCalls = append(gotCalls, evt.Call)
		}
	}

	state.Handle(start, onEvent)
	state.Handle(delta1, onEvent)
	state.Handle(delta2, onEvent)
	state.Handle(anthropic.ContentBlockStopEvent{Index: 0}, onEvent)

	if len(gotCalls) != 1 {
		t.Fatalf("calls = %d, want 1", len(gotCalls))
	}
	call := gotCalls[0]
	if call.ID != "toolu_1" || call.Name != "web_search" {
		t.Fatalf("unexpected call: %#v", call)
	}
	if string(call.Arguments) != `{"query":"golang broker"}` {
		t.Fatalf("arguments = %q, want %q", call.Arguments, `{"query":"golang broker"}`)
	}
}

func TestToolUseStreamState_FlushesPendingToolUseOnMessageStop(t *testing.T) {
	state := newToolUseStreamState()

	var start anthropic.ContentBlockStartEvent
	if err := json.Unmarshal([]byte(`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_2","name":"execute_python","input":{}}}`), &start); err != nil {
		t.Fatalf("unmarshal start: %v", err)
	}
	var delta anthropic.ContentBlockDeltaEvent
	if err := json.Unmarshal([]byte(`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"code\":\"print(1)\"}"}}`), &delta); err != nil {
		t.Fatalf("unmarshal delta: %v", err)
	}

	var gotCalls []*agent.ToolCall
	var gotCompleted int
	onEvent := func(evt agent.StreamEvent) {
		switch evt.Type {
		case agent.StreamEventToolCall:
			gotCalls = append(gotCalls, evt.Call)
		case agent.StreamEventCompleted:
			gotCompleted++
		}
	}

	state.Handle(start, onEvent)
	state.Handle(delta, onEvent)
	state.Handle(anthropic.MessageStopEvent{}, onEvent)

	if gotCompleted != 1 {
		t.Fatalf("completed = %d, want 1", gotCompleted)
	}
	if len(gotCalls) != 1 {
		t.Fatalf("calls = %d, want 1", len(gotCalls))
	}
	call := gotCalls[0]
	if call.Name != "execute_python" || call.ID != "toolu_2" || string(call.Arguments) != `{"code":"print(1)"}` {
		t.Fatalf("unexpected call: %#v args=%s", call, call.Arguments)
	}
}
