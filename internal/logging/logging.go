// Package logging builds the wrapper's logger. Everything goes to stderr:
// stdout is reserved for the analyzer's own output and for replayed cache
// payloads.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger on stderr. The wrapper must be silent inside
// a clean build, so the level is warn unless debug is requested.
func New(debug bool) *zap.SugaredLogger {
	level := zapcore.WarnLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// The static config above cannot fail to build; fall back anyway.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
