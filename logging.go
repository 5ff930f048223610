package rpcsession

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables that override the default log configuration, the
// same env-driven-override shape as danmuck-edgectl's internal/logging
// package, adapted from its smplog wrapper to zerolog directly.
const (
	EnvLogLevel     = "RPCSESSION_LOG_LEVEL"
	EnvLogTimestamp = "RPCSESSION_LOG_TIMESTAMP"
	EnvLogNoColor   = "RPCSESSION_LOG_NOCOLOR"
)

var configureOnce sync.Once

// ConfigureLogging installs a console-writer zerolog logger as the package
// default, honoring the Env* overrides above. Safe to call more than once;
// only the first call takes effect. Elsewhere in this package, connect
// retries, incoming-worker connection-init failures and unexpected
// command-loop errors, and slow shutdown progress are logged as structured
// zerolog events. Handshake failures are returned as errors, not logged,
// and a worker ending on a cancelled or dead connection is not logged.
func ConfigureLogging() {
	configureOnce.Do(func() {
		level := zerolog.InfoLevel
		if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = lvl
		}
		timestamp := true
		if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
			timestamp = v
		}
		noColor := false
		if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
			noColor = v
		}

		writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
		if !timestamp {
			writer.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		logger := zerolog.New(writer).Level(level)
		if timestamp {
			logger = logger.With().Timestamp().Logger()
		}
		log.Logger = logger
	})
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
