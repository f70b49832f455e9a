package upload

import (
	"time"

	"github.com/vango-go/terminal/pkg/streamvar"
)

// Config holds configuration for the upload dispatcher.
type Config struct {
	// Prefix is the reserved path prefix of upload URLs.
	// Default: "APP/UPLOAD/".
	Prefix string

	// MaxFileSize is the maximum number of bytes copied into a receiver.
	// Zero disables the limit.
	// Default: 10MB.
	MaxFileSize int64

	// BufferSize is the size of the copy buffer.
	// Default: 4KB.
	BufferSize int

	// ProgressInterval is the minimum time between progress events.
	// Default: 500ms.
	ProgressInterval time.Duration

	// TempExpiry is how long unclaimed files live in a Store before
	// Cleanup removes them.
	// Default: 1 hour.
	TempExpiry time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Prefix:           streamvar.DefaultPrefix,
		MaxFileSize:      10 * 1024 * 1024,
		BufferSize:       4 * 1024,
		ProgressInterval: 500 * time.Millisecond,
		TempExpiry:       time.Hour,
	}
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// WithMaxFileSize returns a copy with the given size limit.
func (c *Config) WithMaxFileSize(n int64) *Config {
	clone := c.Clone()
	clone.MaxFileSize = n
	return clone
}

// WithPrefix returns a copy with the given URL prefix.
func (c *Config) WithPrefix(prefix string) *Config {
	clone := c.Clone()
	clone.Prefix = streamvar.NormalizePrefix(prefix)
	return clone
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	out := c.Clone()
	if out.Prefix == "" {
		out.Prefix = def.Prefix
	}
	if out.BufferSize <= 0 {
		out.BufferSize = def.BufferSize
	}
	if out.ProgressInterval < 0 {
		out.ProgressInterval = 0
	}
	return out
}
