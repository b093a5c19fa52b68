// Package logutil configures the process wide zap logger behind
// github.com/pingcap/log.
//
// There are five levels in total: fatal, error, warn, info and debug.
// The default level is info. It can be changed by:
// - setting Level in the log section of the config file
// - setting environment variable `LOG_LEVEL`
// - calling SetLevelByString at runtime
package logutil

import (
	"os"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogLevel is used when neither the config nor LOG_LEVEL set one.
const DefaultLogLevel = "info"

// StringToZapLogLevel translates a log level string to a zap level. Unknown
// strings map to info.
func StringToZapLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	}
	return zapcore.InfoLevel
}

// LevelFromEnv returns LOG_LEVEL, or DefaultLogLevel when it is unset.
func LevelFromEnv() string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return DefaultLogLevel
}

// NewLogger builds a logger from cfg without installing it. An empty level
// is taken from the environment.
func NewLogger(cfg *log.Config) (*zap.Logger, *log.ZapProperties, error) {
	if cfg.Level == "" {
		cfg.Level = LevelFromEnv()
	}
	lg, props, err := log.InitLogger(cfg, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return lg, props, nil
}

// InitLogger builds a logger from cfg and installs it as the global one.
func InitLogger(cfg *log.Config) error {
	lg, props, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(lg, props)
	return nil
}

// SetLevelByString changes the level of the global logger.
func SetLevelByString(level string) {
	log.SetLevel(StringToZapLogLevel(level))
	log.Warn("log level changed", zap.String("level", log.GetLevel().String()))
}
