package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/atelier-saulx/based-sub007/logutil"
	"github.com/atelier-saulx/based-sub007/modify"
	"github.com/atelier-saulx/based-sub007/query"
	json "github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Config is the client configuration.
type Config struct {
	Log    log.Config   `toml:"log" json:"log"`
	Modify ModifyConfig `toml:"modify" json:"modify"`
	Query  QueryConfig  `toml:"query" json:"query"`
	Retry  RetryConfig  `toml:"retry" json:"retry"`

	// For all warnings during parsing.
	WarningMsgs []string `toml:"-" json:"-"`

	logger   *zap.Logger
	logProps *log.ZapProperties
}

type ModifyConfig struct {
	// MaxBufferSize bounds one modify buffer. A batch is flushed when the
	// next command does not fit.
	MaxBufferSize ByteSize `toml:"max-buffer-size" json:"max-buffer-size"`
	// Strings larger than this are compressed. Zero compresses every string
	// that shrinks.
	CompressThreshold ByteSize `toml:"compress-threshold" json:"compress-threshold"`
	// FlushDelay is how long writes are batched before they are sent.
	FlushDelay Duration `toml:"flush-delay" json:"flush-delay"`
}

type QueryConfig struct {
	// CollectErrors returns validation errors in the response instead of
	// failing the call.
	CollectErrors bool   `toml:"collect-errors" json:"collect-errors"`
	MaxIDs        int    `toml:"max-ids" json:"max-ids"`
	DefaultLocale string `toml:"default-locale" json:"default-locale"`
}

// RetryConfig paces the rebuilds of queries rejected for a stale schema.
type RetryConfig struct {
	// Rate is the number of rebuilds allowed per second.
	Rate  float64 `toml:"rate" json:"rate"`
	Burst int64   `toml:"burst" json:"burst"`
}

const (
	KB uint64 = 1024
	MB uint64 = 1024 * 1024

	defaultMaxBufferSize = 100 * MB
	defaultFlushDelay    = 10 * time.Millisecond
	defaultRetryRate     = 100
	defaultRetryBurst    = 10

	// minBufferSize fits a node switch and a command header.
	minBufferSize = 64
)

func NewDefaultConfig() *Config {
	return &Config{
		Log: log.Config{Level: logutil.LevelFromEnv()},
		Modify: ModifyConfig{
			MaxBufferSize:     ByteSize(defaultMaxBufferSize),
			CompressThreshold: modify.DefaultCompressThreshold,
			FlushDelay:        NewDuration(defaultFlushDelay),
		},
		Query: QueryConfig{
			MaxIDs: query.DefaultMaxIDs,
		},
		Retry: RetryConfig{
			Rate:  defaultRetryRate,
			Burst: defaultRetryBurst,
		},
	}
}

func NewTestConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Modify.MaxBufferSize = ByteSize(64 * KB)
	cfg.Modify.FlushDelay = NewDuration(5 * time.Millisecond)
	cfg.Retry.Rate = 1000
	cfg.Retry.Burst = 100
	return cfg
}

// LoadFile reads a toml config file over the defaults and adjusts it.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := cfg.configFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Adjust(meta); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) (*toml.MetaData, error) {
	meta, err := toml.DecodeFile(path, c)
	return &meta, errors.WithStack(err)
}

// Utility to test if a configuration is defined.
type configMetaData struct {
	meta *toml.MetaData
	path []string
}

func newConfigMetadata(meta *toml.MetaData) *configMetaData {
	return &configMetaData{meta: meta}
}

func (m *configMetaData) IsDefined(key string) bool {
	if m.meta == nil {
		return false
	}
	keys := append([]string(nil), m.path...)
	keys = append(keys, key)
	return m.meta.IsDefined(keys...)
}

func (m *configMetaData) Child(path ...string) *configMetaData {
	newPath := append([]string(nil), m.path...)
	newPath = append(newPath, path...)
	return &configMetaData{
		meta: m.meta,
		path: newPath,
	}
}

func (m *configMetaData) CheckUndecoded() error {
	if m.meta == nil {
		return nil
	}
	undecoded := m.meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	errInfo := "Config contains undefined item: "
	for _, key := range undecoded {
		errInfo += key.String() + ", "
	}
	return errors.New(errInfo[:len(errInfo)-2])
}

// Adjust fills in defaults for everything meta does not define, then
// validates the result. meta may be nil.
func (c *Config) Adjust(meta *toml.MetaData) error {
	configMetaData := newConfigMetadata(meta)
	if err := configMetaData.CheckUndecoded(); err != nil {
		c.WarningMsgs = append(c.WarningMsgs, err.Error())
	}

	adjustString(&c.Log.Level, logutil.LevelFromEnv())
	c.Modify.adjust(configMetaData.Child("modify"))
	adjustInt(&c.Query.MaxIDs, query.DefaultMaxIDs)
	adjustFloat64(&c.Retry.Rate, defaultRetryRate)
	adjustInt64(&c.Retry.Burst, defaultRetryBurst)

	return c.Validate()
}

func (c *ModifyConfig) adjust(meta *configMetaData) {
	adjustByteSize(&c.MaxBufferSize, ByteSize(defaultMaxBufferSize))
	if !meta.IsDefined("compress-threshold") && c.CompressThreshold == 0 {
		c.CompressThreshold = modify.DefaultCompressThreshold
	}
	adjustDuration(&c.FlushDelay, defaultFlushDelay)
}

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustInt(v *int, defValue int) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustInt64(v *int64, defValue int64) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustFloat64(v *float64, defValue float64) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustByteSize(v *ByteSize, defValue ByteSize) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustDuration(v *Duration, defValue time.Duration) {
	if v.Duration == 0 {
		v.Duration = defValue
	}
}

func (c *Config) Validate() error {
	if c.Modify.MaxBufferSize < minBufferSize {
		return errors.Errorf("modify max-buffer-size must be at least %d bytes", minBufferSize)
	}
	if c.Modify.MaxBufferSize > ByteSize(^uint32(0)) {
		return errors.New("modify max-buffer-size must fit in 32 bits")
	}
	if c.Modify.FlushDelay.Duration < 0 {
		return errors.New("modify flush-delay must not be negative")
	}
	if c.Query.MaxIDs <= 0 || int64(c.Query.MaxIDs) > query.MaxID {
		return errors.Errorf("query max-ids must be in [1, %d]", uint64(query.MaxID))
	}
	if c.Retry.Rate <= 0 {
		return errors.New("retry rate must be positive")
	}
	if c.Retry.Burst <= 0 {
		return errors.New("retry burst must be positive")
	}
	return nil
}

// SetupLogger setup the logger.
func (c *Config) SetupLogger() error {
	lg, p, err := logutil.NewLogger(&c.Log)
	if err != nil {
		return err
	}
	c.logger = lg
	c.logProps = p
	return nil
}

// GetZapLogger gets the created zap logger.
func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

// GetZapLogProperties gets properties of the zap logger.
func (c *Config) GetZapLogProperties() *log.ZapProperties {
	return c.logProps
}

func (c *Config) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return "<nil>"
	}
	return string(data)
}
