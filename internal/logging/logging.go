// Package logging initializes the process-wide logger. Components take
// a *zap.SugaredLogger explicitly; this package only owns construction.
package logging

import (
	"go.uber.org/zap"
)

// New builds the logger for the CLI. Debug mode gets the development
// encoder at debug level; otherwise production JSON at info level with
// noise below warnings suppressed for tool output cleanliness.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a no-op logger for tests and library defaults.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
