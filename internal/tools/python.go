package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"relay-chat/internal/agent"
)

const (
	defaultPythonTimeout        = 120 * time.Second
	defaultPythonMaxOutputBytes = 65536
)

// ExecutePythonTool 在子进程中运行一段 Python 代码并回传结构化执行报告。
type ExecutePythonTool struct {
	Interpreter string
	Timeout     time.Duration
}

type executePythonArgs struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxOutputBytes int    `json:"max_output_bytes"`
}

func (t *ExecutePythonTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        "execute_python",
		Description: "Run a Python snippet in a subprocess and return exit code, stdout and stderr.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source to execute (required).",
				},
				"timeout_seconds": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Execution timeout in seconds (default: %d).", int(defaultPythonTimeout.Seconds())),
				},
				"max_output_bytes": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Max bytes captured per stream (default: %d).", defaultPythonMaxOutputBytes),
				},
			},
			"required":             []string{"code"},
			"additionalProperties": false,
		},
	}
}

func (t *ExecutePythonTool) interpreter() string {
	if v := strings.TrimSpace(t.Interpreter); v != "" {
		return v
	}
	return "python3"
}

func (t *ExecutePythonTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in executePythonArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("execute_python: invalid JSON arguments: %w", err)
	}
	code := in.Code
	if strings.TrimSpace(code) == "" {
		return "", errors.New("code is required")
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = t.Timeout
	}
	if timeout <= 0 {
		timeout = defaultPythonTimeout
	}
	maxBytes := in.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = defaultPythonMaxOutputBytes
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	stdoutCapture := &limitedBuffer{buf: &stdout, max: maxBytes}
	stderrCapture := &limitedBuffer{buf: &stderr, max: maxBytes}

	cmd := exec.CommandContext(cmdCtx, t.interpreter(), "-c", code)
	cmd.Stdout = stdoutCapture
	cmd.Stderr = stderrCapture
	// 取消后若子进程仍占用管道，限制 Wait 的悬挂时间。
	cmd.WaitDelay = 500 * time.Millisecond

	start := time.Now()
	err := cmd.Run()

	ctxErr := cmdCtx.Err()
	timedOut := errors.Is(ctxErr, context.DeadlineExceeded)

	exitCode, errorType := classifyExecError(err)
	if err == nil {
		errorType = "none"
	} else if timedOut {
		exitCode = -1
		errorType = "timeout"
	}
	errorMessage := "-"
	if err != nil {
		errorMessage = strings.TrimSpace(err.Error())
	}

	return fmt.Sprintf(
		"exit_code: %d\n"+
			"duration_ms: %d\n"+
			"timed_out: %t\n"+
			"error_type: %s\n"+
			"error_message: %s\n"+
			"stdout_truncated_bytes: %d\n"+
			"stderr_truncated_bytes: %d\n"+
			"stdout:\n%s\n"+
			"stderr:\n%s",
		exitCode,
		time.Since(start).Milliseconds(),
		timedOut,
		errorType,
		errorMessage,
		stdoutCapture.TruncatedBytes(),
		stderrCapture.TruncatedBytes(),
		strings.TrimRight(stdout.String(), "\n"),
		strings.TrimRight(stderr.String(), "\n"),
	), nil
}

type limitedBuffer struct {
	buf       *bytes.Buffer
	max       int
	truncated int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.max <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.max - l.buf.Len()
	if remaining <= 0 {
		l.truncated += len(p)
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated += len(p) - remaining
		p = p[:remaining]
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) TruncatedBytes() int {
	return l.truncated
}

func classifyExecError(err error) (exitCode int, errorType string) {
	if err == nil {
		return 0, "none"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return -1, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return -1, "canceled"
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), "non_zero_exit"
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		if errors.Is(execErr.Err, exec.ErrNotFound) {
			return -1, "interpreter_not_found"
		}
		return -1, "exec_error"
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, os.ErrNotExist) {
			return -1, "interpreter_not_found"
		}
		return -1, "path_error"
	}

	return -1, "runtime_error"
}
