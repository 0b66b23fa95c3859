package testlog

import (
	"io"
	"testing"

	"github.com/danmuck/pipectl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("test_start")
}

// Logger returns a logger that writes through t.Log so output is attached
// to the test that produced it.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(consoleWriter(zerolog.NewTestWriter(t))).Level(zerolog.DebugLevel)
}

// consoleWriter renders test log lines. t.Log stamps its own output, so
// lines carry no timestamp column.
func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:          out,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
}
