package observability

import (
	"github.com/danmuck/pipectl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the process logger for app at level and installs it as
// the zerolog global. json selects machine-readable output over the console
// writer; PIPECTL_LOG_* variables still win over both.
func InitLogger(app, level string, json bool) zerolog.Logger {
	cfg := logging.RuntimeConfig(level)
	if json {
		cfg.Bypass = true
	}
	logger := logging.Apply(cfg).With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
