package tools

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skipf("python3 not found in PATH: %v", err)
	}
}

func TestExecutePythonTool_Call(t *testing.T) {
	requirePython(t)

	tool := &ExecutePythonTool{}
	got, err := tool.Call(context.Background(), json.RawMessage(`{"code":"print(21*2)"}`))
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !strings.Contains(got, "exit_code: 0") {
		t.Fatalf("Call() = %q, want exit_code 0", got)
	}
	if !strings.Contains(got, "42") {
		t.Fatalf("Call() = %q, want stdout 42", got)
	}
}

func TestExecutePythonTool_Call_NonZeroExit(t *testing.T) {
	requirePython(t)

	tool := &ExecutePythonTool{}
	got, err := tool.Call(context.Background(), json.RawMessage(`{"code":"import sys; sys.exit(3)"}`))
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !strings.Contains(got, "exit_code: 3") {
		t.Fatalf("Call() = %q, want exit_code 3", got)
	}
	if !strings.Contains(got, "error_type: non_zero_exit") {
		t.Fatalf("Call() = %q, want non_zero_exit", got)
	}
}

func TestExecutePythonTool_Call_Timeout(t *testing.T) {
	requirePython(t)

	tool := &ExecutePythonTool{}
	got, err := tool.Call(context.Background(), json.RawMessage(`{"code":"import time; time.sleep(10)","timeout_seconds":1}`))
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !strings.Contains(got, "timed_out: true") {
		t.Fatalf("Call() = %q, want timed_out true", got)
	}
	if !strings.Contains(got, "error_type: timeout") {
		t.Fatalf("Call() = %q, want error_type timeout", got)
	}
}

func TestExecutePythonTool_Call_MissingCode(t *testing.T) {
	tool := &ExecutePythonTool{}
	_, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatalf("Call() = nil, want error")
	}
}
