package logutil

import (
	"os"
	"testing"

	"github.com/pingcap/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestStringToZapLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"fatal":   zapcore.FatalLevel,
		"error":   zapcore.ErrorLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"WARN":    zapcore.WarnLevel,
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, StringToZapLogLevel(in), in)
	}
}

func TestLevelFromEnv(t *testing.T) {
	old, had := os.LookupEnv("LOG_LEVEL")
	defer func() {
		if had {
			os.Setenv("LOG_LEVEL", old)
		} else {
			os.Unsetenv("LOG_LEVEL")
		}
	}()

	os.Unsetenv("LOG_LEVEL")
	assert.Equal(t, DefaultLogLevel, LevelFromEnv())
	os.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, "debug", LevelFromEnv())
}

func TestInitLogger(t *testing.T) {
	cfg := &log.Config{Level: "error"}
	require.NoError(t, InitLogger(cfg))
	assert.Equal(t, zapcore.ErrorLevel, log.GetLevel())

	SetLevelByString("debug")
	assert.Equal(t, zapcore.DebugLevel, log.GetLevel())
	SetLevelByString("info")
}

func TestNewLoggerDoesNotReplaceGlobals(t *testing.T) {
	global := log.L()
	cfg := &log.Config{}
	lg, props, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, lg)
	require.NotNil(t, props)
	assert.Equal(t, LevelFromEnv(), cfg.Level)
	assert.True(t, global == log.L())
}
