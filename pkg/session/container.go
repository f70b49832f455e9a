package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Container errors.
var (
	// ErrContainerClosed is returned after Shutdown.
	ErrContainerClosed = errors.New("session: container is closed")

	// ErrSessionNotFound is returned by Invalidate for unknown IDs.
	ErrSessionNotFound = errors.New("session: session not found")
)

// Config configures a Container.
type Config struct {
	// CookieName is the name of the session cookie.
	// Default: "VANGOSESSION".
	CookieName string

	// CookiePath scopes the session cookie. Default: "/".
	CookiePath string

	// Secure sets the Secure attribute on the cookie.
	Secure bool

	// SameSite sets the SameSite attribute. Default: http.SameSiteLaxMode.
	SameSite http.SameSite

	// MaxInactive is the idle time after which a session is destroyed.
	// Default: 30 minutes.
	MaxInactive time.Duration

	// CleanupInterval is how often idle sessions are swept and live leases
	// are re-asserted. Default: 1 minute.
	CleanupInterval time.Duration

	// StoreTimeout bounds every Store call made outside a request.
	// Default: 5 seconds.
	StoreTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CookieName:      "VANGOSESSION",
		CookiePath:      "/",
		SameSite:        http.SameSiteLaxMode,
		MaxInactive:     30 * time.Minute,
		CleanupInterval: time.Minute,
		StoreTimeout:    5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CookieName == "" {
		c.CookieName = d.CookieName
	}
	if c.CookiePath == "" {
		c.CookiePath = d.CookiePath
	}
	if c.SameSite == 0 {
		c.SameSite = d.SameSite
	}
	if c.MaxInactive <= 0 {
		c.MaxInactive = d.MaxInactive
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	return c
}

// Container owns the live sessions of this process. Session state stays in
// memory; the Store holds a lease per session so expiry and invalidation
// are visible to other instances.
type Container struct {
	mu       sync.Mutex
	sessions map[string]*Session
	stopped  bool

	store     Store
	ownsStore bool
	config    Config
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	done      chan struct{}
	wg        sync.WaitGroup
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithContainerClock overrides the time source.
func WithContainerClock(now func() time.Time) ContainerOption {
	return func(c *Container) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides session ID generation. Intended for tests.
func WithIDGenerator(gen func() string) ContainerOption {
	return func(c *Container) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// NewContainer creates a container and starts its sweeper. A nil store
// keeps leases in a private MemoryStore.
func NewContainer(store Store, config Config, logger *slog.Logger, opts ...ContainerOption) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	owns := store == nil
	if owns {
		store = NewMemoryStore()
	}
	c := &Container{
		sessions:  make(map[string]*Session),
		store:     store,
		ownsStore: owns,
		config:    config.withDefaults(),
		logger:    logger.With("component", "session_container"),
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// Config returns the effective configuration.
func (c *Container) Config() Config {
	return c.config
}

// Session returns the session bound to r through its cookie. When no live
// session exists and create is true, a new one is created and its cookie
// set on w; otherwise (nil, nil) is returned.
func (c *Container) Session(w http.ResponseWriter, r *http.Request, create bool) (*Session, error) {
	if s := FromContext(r.Context()); s != nil && s.Valid() {
		return s, nil
	}

	if cookie, err := r.Cookie(c.config.CookieName); err == nil && cookie.Value != "" {
		if s := c.access(r.Context(), cookie.Value); s != nil {
			return s, nil
		}
	}
	if !create {
		return nil, nil
	}
	s, err := c.Create(r.Context(), r.RemoteAddr)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, c.cookie(s.id))
	return s, nil
}

// Create starts a new session and writes its lease.
func (c *Container) Create(ctx context.Context, remoteAddr string) (*Session, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrContainerClosed
	}
	now := c.now()
	s := newSession(c.newID(), now, c.config.MaxInactive, remoteAddr)
	c.sessions[s.id] = s
	count := len(c.sessions)
	c.mu.Unlock()

	data, err := EncodeLease(s.lease())
	if err == nil {
		err = c.store.Save(ctx, s.id, data, now.Add(c.config.MaxInactive))
	}
	if err != nil {
		c.mu.Lock()
		delete(c.sessions, s.id)
		c.mu.Unlock()
		s.destroy()
		return nil, err
	}

	c.logger.Debug("session created", "session_id", s.id, "sessions", count)
	return s, nil
}

// Lookup returns a live session by ID without recording an access.
func (c *Container) Lookup(id string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

// Lease loads the stored lease of id, or nil when there is none.
func (c *Container) Lease(ctx context.Context, id string) (*Lease, error) {
	data, err := c.store.Load(ctx, id)
	if err != nil || data == nil {
		return nil, err
	}
	return DecodeLease(data)
}

// access records a request on session id, expiring it if it went idle.
func (c *Container) access(ctx context.Context, id string) *Session {
	c.mu.Lock()
	s := c.sessions[id]
	stopped := c.stopped
	c.mu.Unlock()
	if s == nil || stopped {
		if s == nil {
			c.logUnknown(ctx, id)
		}
		return nil
	}

	now := c.now()
	if !s.touch(now) {
		c.expire(s, "idle")
		return nil
	}
	if err := c.store.Touch(ctx, id, now.Add(c.config.MaxInactive)); err != nil {
		c.logger.Warn("session lease touch failed", "session_id", id, "error", err)
	}
	return s
}

func (c *Container) logUnknown(ctx context.Context, id string) {
	lease, err := c.Lease(ctx, id)
	switch {
	case err != nil:
		c.logger.Debug("session lease lookup failed", "session_id", id, "error", err)
	case lease != nil:
		c.logger.Debug("session lease held without local state", "session_id", id)
	}
}

// Invalidate destroys session id and deletes its lease.
func (c *Container) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	s := c.sessions[id]
	c.mu.Unlock()
	if s == nil {
		return ErrSessionNotFound
	}
	c.remove(ctx, s, "invalidated")
	return nil
}

// Sweep destroys idle sessions and re-asserts the leases of live ones.
// It returns the number of sessions destroyed.
func (c *Container) Sweep(ctx context.Context) int {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0
	}
	all := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		all = append(all, s)
	}
	c.mu.Unlock()

	now := c.now()
	expired := 0
	live := make(map[string]Data, len(all))
	for _, s := range all {
		if s.idle(now) {
			c.remove(ctx, s, "idle")
			expired++
			continue
		}
		l := s.lease()
		data, err := EncodeLease(l)
		if err != nil {
			continue
		}
		live[s.id] = Data{Data: data, ExpiresAt: l.LastAccess.Add(c.config.MaxInactive)}
	}
	if err := c.store.SaveAll(ctx, live); err != nil {
		c.logger.Warn("session lease refresh failed", "count", len(live), "error", err)
	}

	if expired > 0 {
		c.logger.Debug("expired idle sessions", "count", expired, "remaining", len(live))
	}
	return expired
}

// Len returns the number of live sessions.
func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Shutdown stops the sweeper and destroys every session, notifying its
// unbind listeners and deleting its lease. A store passed to NewContainer
// is left open.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.done)
	all := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		all = append(all, s)
	}
	c.mu.Unlock()

	c.wg.Wait()

	var errs []error
	for _, s := range all {
		if err := c.removeErr(ctx, s, "shutdown"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.ownsStore {
		errs = append(errs, c.store.Close())
	}
	c.logger.Info("session container stopped", "sessions", len(all))
	return errors.Join(errs...)
}

func (c *Container) expire(s *Session, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.StoreTimeout)
	defer cancel()
	c.remove(ctx, s, reason)
}

func (c *Container) remove(ctx context.Context, s *Session, reason string) {
	if err := c.removeErr(ctx, s, reason); err != nil {
		c.logger.Warn("session lease delete failed", "session_id", s.id, "error", err)
	}
}

func (c *Container) removeErr(ctx context.Context, s *Session, reason string) error {
	c.mu.Lock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
	}
	c.mu.Unlock()

	if !s.destroy() {
		return nil
	}
	c.logger.Debug("session destroyed", "session_id", s.id, "reason", reason)
	return c.store.Delete(ctx, s.id)
}

func (c *Container) cleanupLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.StoreTimeout)
			c.Sweep(ctx)
			cancel()
		case <-c.done:
			return
		}
	}
}

func (c *Container) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     c.config.CookieName,
		Value:    id,
		Path:     c.config.CookiePath,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: c.config.SameSite,
	}
}
