package config

import (
	"strings"
	"testing"
	"time"

	"github.com/vango-go/terminal/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LogLevel must be one of"},
		{"bad address", func(c *Config) { c.Server.Addr = "nowhere" }, "Server.Addr must be a valid host:port"},
		{"zero uidl size", func(c *Config) { c.Server.MaxUIDLSize = 0 }, "Server.MaxUIDLSize must be greater than"},
		{"redis without url", func(c *Config) { c.Session.Store = StoreRedis }, "Session.RedisURL is required when Store is redis"},
		{"redis with url", func(c *Config) {
			c.Session.Store = StoreRedis
			c.Session.RedisURL = "redis://localhost:6379"
		}, ""},
		{"sql without dsn", func(c *Config) { c.Session.Store = StoreSQL }, "Session.SQLDSN is required"},
		{"sql table injection", func(c *Config) {
			c.Session.Store = StoreSQL
			c.Session.SQLDSN = "file::memory:"
			c.Session.SQLTable = "leases; DROP TABLE x"
		}, "must be a plain identifier"},
		{"cleanup longer than idle", func(c *Config) {
			c.Session.CleanupInterval = time.Hour
			c.Session.MaxInactive = time.Minute
		}, "must not exceed"},
		{"disk without dir", func(c *Config) { c.Upload.Dir = "" }, "Upload.Dir is required"},
		{"s3 without bucket", func(c *Config) { c.Upload.Store = UploadS3 }, "Upload.S3.Bucket is required"},
		{"s3 bad endpoint", func(c *Config) {
			c.Upload.Store = UploadS3
			c.Upload.S3.Bucket = "b"
			c.Upload.S3.Endpoint = "not a url"
		}, "Upload.S3.Endpoint must be a valid URL"},
		{"absolute upload prefix", func(c *Config) { c.Upload.Prefix = "https://evil/" }, "not a relative path prefix"},
		{"root upload prefix", func(c *Config) { c.Upload.Prefix = "/" }, "not a relative path prefix"},
		{"negative file size", func(c *Config) { c.Upload.MaxFileSize = -1 }, "Upload.MaxFileSize must be at least 0"},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, "Metrics.Addr is required"},
		{"sample ratio above one", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "Tracing.SampleRatio must be at most 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if errors.CodeOf(err) != errors.CodeConfigInvalid {
				t.Errorf("code = %q, want %s", errors.CodeOf(err), errors.CodeConfigInvalid)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
