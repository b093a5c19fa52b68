package config

import (
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
)

// Duration is a time.Duration that reads and writes itself as a string
// such as "20ms" in config files.
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.WithStack(err)
}

// ByteSize is a size in bytes written as "4KiB", "10MB" and the like.
type ByteSize uint64

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(b))), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	s := string(text)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return errors.WithStack(err)
	}
	if n < 0 {
		return errors.Errorf("negative size %q", s)
	}
	*b = ByteSize(n)
	return nil
}
