package testlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConsoleWriterOmitsTimestampColumn(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(consoleWriter(&out)).Level(zerolog.DebugLevel)
	logger.Debug().Str("pipe", "tests_pipe").Msg("pipe_state")

	line := out.String()
	if strings.HasPrefix(line, "<nil>") || strings.Contains(line, "<nil>") {
		t.Fatalf("expected no empty timestamp column, got %q", line)
	}
	if !strings.HasPrefix(line, "DBG") {
		t.Fatalf("expected line to start with the level, got %q", line)
	}
	if !strings.Contains(line, "pipe_state") || !strings.Contains(line, "pipe=tests_pipe") {
		t.Fatalf("expected message and field, got %q", line)
	}
}

func TestLoggerWritesThroughTest(t *testing.T) {
	Start(t)
	Logger(t).Debug().Msg("test_logger_ready")
}
