package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vango-go/terminal/internal/errors"
	"github.com/vango-go/terminal/pkg/server"
	"github.com/vango-go/terminal/pkg/session"
	"github.com/vango-go/terminal/pkg/upload"
)

const (
	// ConfigName is the base name of the configuration file.
	ConfigName = "vango-terminal"

	// EnvPrefix prefixes environment overrides, e.g.
	// VANGO_TERMINAL_SERVER_ADDR overrides server.addr.
	EnvPrefix = "VANGO_TERMINAL"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// DefaultMetricsAddr is the default address of the metrics listener.
	DefaultMetricsAddr = ":9090"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

// Upload store backends.
const (
	UploadDisk = "disk"
	UploadS3   = "s3"
)

// Config is the complete server configuration.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`

	// Session contains session container settings.
	Session SessionConfig `mapstructure:"session"`

	// Upload contains upload dispatch and storage settings.
	Upload UploadConfig `mapstructure:"upload"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `mapstructure:"tracing"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the address to listen on.
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`

	// ApplicationName names the applications created on bootstrap.
	ApplicationName string `mapstructure:"application_name" validate:"required"`

	// Theme is the theme referenced by the bootstrap page.
	Theme string `mapstructure:"theme" validate:"required"`

	// ThemesDir is the directory served under /THEME/. Empty disables
	// theme resources.
	ThemesDir string `mapstructure:"themes_dir"`

	// MaxUIDLSize bounds the payload of one UIDL frame in bytes.
	MaxUIDLSize int `mapstructure:"max_uidl_size" validate:"gt=0"`

	// ReadHeaderTimeout is passed to http.Server.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// SessionConfig contains session container settings.
type SessionConfig struct {
	// Store selects the lease backend: memory, redis or sql.
	Store string `mapstructure:"store" validate:"oneof=memory redis sql"`

	// CookieName is the name of the session cookie.
	CookieName string `mapstructure:"cookie_name" validate:"required"`

	// Secure sets the Secure attribute on the cookie.
	Secure bool `mapstructure:"secure"`

	// MaxInactive is the idle time after which a session is destroyed.
	MaxInactive time.Duration `mapstructure:"max_inactive" validate:"gt=0"`

	// CleanupInterval is how often idle sessions are swept.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`

	// RedisURL is the redis:// URL used when Store is redis.
	RedisURL string `mapstructure:"redis_url" validate:"required_if=Store redis"`

	// SQLDSN is the SQLite data source used when Store is sql.
	SQLDSN string `mapstructure:"sql_dsn" validate:"required_if=Store sql"`

	// SQLTable overrides the lease table name.
	SQLTable string `mapstructure:"sql_table"`
}

// UploadConfig contains upload dispatch and storage settings.
type UploadConfig struct {
	// Prefix is the reserved path prefix of upload URLs.
	Prefix string `mapstructure:"prefix" validate:"required"`

	// MaxFileSize is the maximum upload size in bytes. Zero disables the
	// limit.
	MaxFileSize int64 `mapstructure:"max_file_size" validate:"gte=0"`

	// TempExpiry is how long unclaimed files are kept.
	TempExpiry time.Duration `mapstructure:"temp_expiry" validate:"gt=0"`

	// Store selects where uploaded files go: disk or s3.
	Store string `mapstructure:"store" validate:"oneof=disk s3"`

	// Dir is the directory used when Store is disk.
	Dir string `mapstructure:"dir" validate:"required_if=Store disk"`

	// S3 configures the bucket used when Store is s3.
	S3 S3Config `mapstructure:"s3"`
}

// S3Config contains S3 upload store settings.
type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`

	// PathStyle forces path-style addressing, as S3-compatible servers
	// such as MinIO require.
	PathStyle bool `mapstructure:"path_style"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// New creates a new Config with default values.
func New() *Config {
	sessions := session.DefaultConfig()
	uploads := upload.DefaultConfig()
	srv := server.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:              DefaultAddr,
			ApplicationName:   srv.ApplicationName,
			Theme:             srv.Theme,
			MaxUIDLSize:       srv.MaxUIDLSize,
			ReadHeaderTimeout: srv.ReadHeaderTimeout,
			ShutdownTimeout:   srv.ShutdownTimeout,
		},
		Session: SessionConfig{
			Store:           StoreMemory,
			CookieName:      sessions.CookieName,
			MaxInactive:     sessions.MaxInactive,
			CleanupInterval: sessions.CleanupInterval,
		},
		Upload: UploadConfig{
			Prefix:      uploads.Prefix,
			MaxFileSize: uploads.MaxFileSize,
			TempExpiry:  uploads.TempExpiry,
			Store:       UploadDisk,
			Dir:         filepath.Join(os.TempDir(), ConfigName, "uploads"),
		},
		Metrics: MetricsConfig{
			Addr:      DefaultMetricsAddr,
			Namespace: "vango",
		},
		Tracing: TracingConfig{
			ServiceName: ConfigName,
			SampleRatio: 1,
		},
	}
}

// Load reads configuration from path, or from the first vango-terminal.yaml
// found in the standard locations when path is empty. Environment
// variables override file values. A missing file is not an error when path
// is empty.
func Load(path string) (*Config, error) {
	v := newViper()
	if path == "" {
		path = findConfigFile(searchPaths())
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(errors.CodeConfigLoad).
				WithDetail(fmt.Sprintf("Failed to read %s", path)).
				Wrap(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New(errors.CodeConfigLoad).Wrap(err)
	}
	cfg.configPath = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance carrying every default, so that
// AutomaticEnv sees each key during Unmarshal.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := New()
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.application_name", d.Server.ApplicationName)
	v.SetDefault("server.theme", d.Server.Theme)
	v.SetDefault("server.themes_dir", d.Server.ThemesDir)
	v.SetDefault("server.max_uidl_size", d.Server.MaxUIDLSize)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("session.store", d.Session.Store)
	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.secure", d.Session.Secure)
	v.SetDefault("session.max_inactive", d.Session.MaxInactive)
	v.SetDefault("session.cleanup_interval", d.Session.CleanupInterval)
	v.SetDefault("session.redis_url", d.Session.RedisURL)
	v.SetDefault("session.sql_dsn", d.Session.SQLDSN)
	v.SetDefault("session.sql_table", d.Session.SQLTable)

	v.SetDefault("upload.prefix", d.Upload.Prefix)
	v.SetDefault("upload.max_file_size", d.Upload.MaxFileSize)
	v.SetDefault("upload.temp_expiry", d.Upload.TempExpiry)
	v.SetDefault("upload.store", d.Upload.Store)
	v.SetDefault("upload.dir", d.Upload.Dir)
	v.SetDefault("upload.s3.bucket", d.Upload.S3.Bucket)
	v.SetDefault("upload.s3.prefix", d.Upload.S3.Prefix)
	v.SetDefault("upload.s3.region", d.Upload.S3.Region)
	v.SetDefault("upload.s3.endpoint", d.Upload.S3.Endpoint)
	v.SetDefault("upload.s3.path_style", d.Upload.S3.PathStyle)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	return v
}

// searchPaths lists the directories searched for a config file.
func searchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+ConfigName))
	}
	return append(paths, filepath.Join("/etc", ConfigName))
}

// findConfigFile returns the first vango-terminal.yaml or .yml in paths.
// The extension is required so the binary itself never matches.
func findConfigFile(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, ConfigName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Path returns the path where the config was loaded from, or "" when only
// defaults and environment variables were used.
func (c *Config) Path() string {
	return c.configPath
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ServerConfig converts the settings into a server configuration.
func (c *Config) ServerConfig() *server.Config {
	sc := server.DefaultConfig()
	sc.Address = c.Server.Addr
	sc.ApplicationName = c.Server.ApplicationName
	sc.Theme = c.Server.Theme
	sc.MaxUIDLSize = c.Server.MaxUIDLSize
	sc.ReadHeaderTimeout = c.Server.ReadHeaderTimeout
	sc.ShutdownTimeout = c.Server.ShutdownTimeout
	sc.Session = c.SessionConfig()
	sc.Upload = c.UploadConfig()
	return sc
}

// SessionConfig converts the settings into a session container
// configuration.
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.CookieName = c.Session.CookieName
	sc.Secure = c.Session.Secure
	sc.MaxInactive = c.Session.MaxInactive
	sc.CleanupInterval = c.Session.CleanupInterval
	return sc
}

// UploadConfig converts the settings into an upload dispatcher
// configuration.
func (c *Config) UploadConfig() *upload.Config {
	uc := upload.DefaultConfig().
		WithPrefix(c.Upload.Prefix).
		WithMaxFileSize(c.Upload.MaxFileSize)
	uc.TempExpiry = c.Upload.TempExpiry
	return uc
}
