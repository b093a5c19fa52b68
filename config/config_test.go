package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atelier-saulx/based-sub007/modify"
	"github.com/atelier-saulx/based-sub007/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	dir, err := ioutil.TempDir("", "client_config")
	require.Nil(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "client.toml")
	require.Nil(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.Nil(t, cfg.Validate())
	assert.Equal(t, ByteSize(100*MB), cfg.Modify.MaxBufferSize)
	assert.Equal(t, ByteSize(modify.DefaultCompressThreshold), cfg.Modify.CompressThreshold)
	assert.Equal(t, query.DefaultMaxIDs, cfg.Query.MaxIDs)

	require.Nil(t, NewTestConfig().Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[modify]
max-buffer-size = "4KiB"
compress-threshold = 0
flush-delay = "20ms"

[query]
collect-errors = true
default-locale = "en"

[retry]
rate = 5.5
`)
	cfg, err := LoadFile(path)
	require.Nil(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ByteSize(4*KB), cfg.Modify.MaxBufferSize)
	assert.Equal(t, ByteSize(0), cfg.Modify.CompressThreshold)
	assert.Equal(t, 20*time.Millisecond, cfg.Modify.FlushDelay.Duration)
	assert.True(t, cfg.Query.CollectErrors)
	assert.Equal(t, "en", cfg.Query.DefaultLocale)
	assert.Equal(t, query.DefaultMaxIDs, cfg.Query.MaxIDs)
	assert.Equal(t, 5.5, cfg.Retry.Rate)
	assert.Equal(t, int64(defaultRetryBurst), cfg.Retry.Burst)
	assert.Empty(t, cfg.WarningMsgs)
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "[query]\nmax-ids = 10\n"))
	require.Nil(t, err)
	assert.Equal(t, ByteSize(modify.DefaultCompressThreshold), cfg.Modify.CompressThreshold)
	assert.Equal(t, defaultFlushDelay, cfg.Modify.FlushDelay.Duration)
	assert.Equal(t, 10, cfg.Query.MaxIDs)
}

func TestUndecodedItemsWarn(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "[modify]\nmax-bufer-size = \"1MiB\"\n"))
	require.Nil(t, err)
	require.Len(t, cfg.WarningMsgs, 1)
	assert.True(t, strings.Contains(cfg.WarningMsgs[0], "modify.max-bufer-size"))
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "[modify]\nflush-delay = \"soon\"\n"))
	assert.NotNil(t, err)
	_, err = LoadFile(writeConfig(t, "[modify]\nmax-buffer-size = \"12 parsecs\"\n"))
	assert.NotNil(t, err)
	_, err = LoadFile(filepath.Join(os.TempDir(), "does-not-exist.toml"))
	assert.NotNil(t, err)
}

func TestValidate(t *testing.T) {
	cfg := NewTestConfig()
	cfg.Modify.MaxBufferSize = 10
	assert.NotNil(t, cfg.Validate())

	cfg = NewTestConfig()
	cfg.Query.MaxIDs = -1
	assert.NotNil(t, cfg.Validate())

	cfg = NewTestConfig()
	cfg.Retry.Rate = -1
	assert.NotNil(t, cfg.Validate())

	cfg = NewTestConfig()
	cfg.Modify.FlushDelay = NewDuration(-time.Second)
	assert.NotNil(t, cfg.Validate())
}

func TestByteSize(t *testing.T) {
	var b ByteSize
	require.Nil(t, b.UnmarshalText([]byte("1024")))
	assert.Equal(t, ByteSize(1024), b)
	require.Nil(t, b.UnmarshalText([]byte("2MiB")))
	assert.Equal(t, ByteSize(2*MB), b)
	require.Nil(t, b.UnmarshalText([]byte("3kb")))
	assert.Equal(t, ByteSize(3*KB), b)
	text, err := ByteSize(4 * KB).MarshalText()
	require.Nil(t, err)
	assert.Equal(t, "4KiB", string(text))
}

func TestString(t *testing.T) {
	s := NewTestConfig().String()
	assert.True(t, strings.Contains(s, `"max-buffer-size":"64KiB"`), s)
	assert.True(t, strings.Contains(s, `"flush-delay":"5ms"`), s)
}

func TestSetupLogger(t *testing.T) {
	cfg := NewTestConfig()
	cfg.Log.Level = ""
	require.Nil(t, cfg.SetupLogger())
	require.NotNil(t, cfg.GetZapLogger())
	require.NotNil(t, cfg.GetZapLogProperties())
	assert.NotEqual(t, "", cfg.Log.Level)
}
