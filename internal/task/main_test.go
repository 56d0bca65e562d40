package task

import (
	"io"
	"os"
	"testing"

	"relay-chat/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Root().SetOutput(io.Discard)
	logger.SetGlobalLLMLogger(logger.NoopLLMLogger{})
	os.Exit(m.Run())
}
