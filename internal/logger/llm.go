package logger

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// LLMMessage 表示一次请求中的对话消息。
type LLMMessage struct {
	Role    string
	Content string
}

// LLMLogger 负责输出与模型交互的请求、响应与错误信息。
type LLMLogger interface {
	Request(model string, messages []LLMMessage, iteration int)
	Response(model string, content string, toolCalls int, iteration int)
	StreamChunk(model string, chunk string, index int)
	StreamComplete(model string, iteration int)
	Error(model string, err error, iteration int)
}

// LLMLog 是全局唯一的 LLM 日志器实例。
var LLMLog LLMLogger = NewLLMLogger(nil)

// SetGlobalLLMLogger 覆盖全局 LLM 日志实例，传入 nil 将重置为默认实现。
func SetGlobalLLMLogger(logger LLMLogger) {
	if logger == nil {
		logger = NewLLMLogger(nil)
	}
	LLMLog = logger
}

// StdLLMLogger 使用 logrus 输出日志。
type StdLLMLogger struct {
	logger *logrus.Entry
}

// NewLLMLogger 构造默认的 LLM 日志记录器。
func NewLLMLogger(l *Logger) *StdLLMLogger {
	if l == nil {
		l = root()
	}
	l.SetFormatter(PlainFormatter{})
	l.SetReportCaller(true)
	return &StdLLMLogger{logger: logrus.NewEntry(l).WithField("component", "llm")}
}

// Request 记录一次请求的上下文。
func (l *StdLLMLogger) Request(model string, messages []LLMMessage, iteration int) {
	l.printf(logrus.InfoLevel, "-> request iteration=%d model=%s messages=%d", iteration, model, len(messages))
	for i, msg := range messages {
		l.printf(logrus.InfoLevel, "-> message[%d] role=%s content=%s", i, msg.Role, sanitize(msg.Content))
	}
}

// Response 记录一次非流式响应，包括其携带的工具调用数量。
func (l *StdLLMLogger) Response(model string, content string, toolCalls int, iteration int) {
	l.printf(logrus.InfoLevel, "<- response iteration=%d model=%s tool_calls=%d text=%s", iteration, model, toolCalls, sanitize(content))
}

// StreamChunk 记录流式响应的单个分片。
func (l *StdLLMLogger) StreamChunk(model string, chunk string, index int) {
	l.printf(logrus.InfoLevel, "<- chunk model=%s seq=%d text=%s", model, index, sanitize(chunk))
}

// StreamComplete 记录流式响应完成。
func (l *StdLLMLogger) StreamComplete(model string, iteration int) {
	l.printf(logrus.InfoLevel, "<- stream completed iteration=%d model=%s", iteration, model)
}

// Error 记录请求错误。
func (l *StdLLMLogger) Error(model string, err error, iteration int) {
	l.printf(logrus.ErrorLevel, "!! error iteration=%d model=%s err=%v", iteration, model, err)
}

// NoopLLMLogger 忽略所有日志输出。
type NoopLLMLogger struct{}

func (NoopLLMLogger) Request(model string, messages []LLMMessage, iteration int)             {}
func (NoopLLMLogger) Response(model string, content string, toolCalls int, iteration int)    {}
func (NoopLLMLogger) StreamChunk(model string, chunk string, index int)                      {}
func (NoopLLMLogger) StreamComplete(model string, iteration int)                             {}
func (NoopLLMLogger) Error(model string, err error, iteration int)                           {}

func (l *StdLLMLogger) printf(level logrus.Level, format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	if !l.logger.Logger.IsLevelEnabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	caller := findCaller()
	entry := l.logger
	if caller != "" {
		entry = entry.WithField("caller", caller)
	}
	entry.Log(level, msg)
}

func sanitize(text string) string {
	text = strings.ReplaceAll(text, "\n", `\n`)
	text = strings.ReplaceAll(text, "\r", `\r`)
	return text
}

func findCaller() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.Contains(frame.File, "llm.go") {
			return fmt.Sprintf("%s:%d", shortenFilePath(frame.File), frame.Line)
		}
		if !more {
			break
		}
	}
	return ""
}
