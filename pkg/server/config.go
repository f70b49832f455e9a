package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/vango-go/terminal/pkg/session"
	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/upload"
)

// Config holds configuration for the servlet and its communication
// managers.
type Config struct {
	// Address is the address to listen on (e.g., ":8080").
	// Default: ":8080".
	Address string

	// ApplicationName names the applications created on bootstrap.
	// Default: "vango".
	ApplicationName string

	// Theme is the theme referenced by the bootstrap page.
	// Default: "default".
	Theme string

	// MaxUIDLSize bounds the payload of one UIDL frame.
	// Default: 1MB.
	MaxUIDLSize int

	// Upload configures the upload dispatcher.
	// Default: upload.DefaultConfig().
	Upload *upload.Config

	// Session configures the session container.
	// Default: session.DefaultConfig().
	Session session.Config

	// Messages are the captions and messages of critical notifications.
	// Default: DefaultSystemMessages().
	Messages *SystemMessages

	// WebSocket

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// WriteTimeout bounds a single WebSocket write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// CheckOrigin validates the origin of WebSocket upgrades.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// HTTP server

	// ReadHeaderTimeout is passed to http.Server.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		ApplicationName:   "vango",
		Theme:             "default",
		MaxUIDLSize:       1 << 20,
		Upload:            upload.DefaultConfig(),
		Session:           session.DefaultConfig(),
		Messages:          DefaultSystemMessages(),
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		WriteTimeout:      10 * time.Second,
		CheckOrigin:       SameOriginCheck,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// SameOriginCheck accepts WebSocket upgrades whose Origin host matches the
// request host, and requests without an Origin header.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && u.Host == r.Host
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Upload != nil {
		clone.Upload = c.Upload.Clone()
	}
	if c.Messages != nil {
		m := *c.Messages
		clone.Messages = &m
	}
	return &clone
}

// WithAddress sets the server address and returns the config for chaining.
func (c *Config) WithAddress(addr string) *Config {
	c.Address = addr
	return c
}

// WithUpload sets the upload configuration and returns the config for
// chaining.
func (c *Config) WithUpload(u *upload.Config) *Config {
	c.Upload = u
	return c
}

// WithMessages sets the system messages and returns the config for
// chaining.
func (c *Config) WithMessages(m *SystemMessages) *Config {
	c.Messages = m
	return c
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.ApplicationName == "" {
		out.ApplicationName = d.ApplicationName
	}
	if out.Theme == "" {
		out.Theme = d.Theme
	}
	if out.MaxUIDLSize <= 0 {
		out.MaxUIDLSize = d.MaxUIDLSize
	}
	if out.Upload == nil {
		out.Upload = d.Upload
	}
	if out.Upload.Prefix == "" {
		out.Upload.Prefix = streamvar.DefaultPrefix
	}
	out.Upload.Prefix = streamvar.NormalizePrefix(out.Upload.Prefix)
	if out.Messages == nil {
		out.Messages = d.Messages
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = d.CheckOrigin
	}
	if out.ReadHeaderTimeout <= 0 {
		out.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	return out
}
