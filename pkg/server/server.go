package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vango-go/terminal/pkg/assets"
	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/protocol"
	"github.com/vango-go/terminal/pkg/session"
	"github.com/vango-go/terminal/pkg/transport"
)

// Route prefixes below the servlet mount point.
const (
	UIDLPath  = "UIDL"
	PushPath  = "PUSH"
	ThemePath = "THEME"
)

// ApplicationFactory creates the application of a new session.
type ApplicationFactory func(ctx context.Context, name string) (*component.Application, error)

// Servlet serves applications over HTTP: bootstrap pages, UIDL requests,
// uploads, UIDL over WebSocket and theme resources.
type Servlet struct {
	config      *Config
	sessions    *session.Container
	factory     ApplicationFactory
	themes      fs.FS
	manifest    *assets.Manifest
	assets      assets.Resolver
	managerOpts []ManagerOption
	middleware  []func(http.Handler) http.Handler
	resolver    *Resolver
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	router      chi.Router

	binds sessionLocks

	mu         sync.Mutex
	httpServer *http.Server
}

var _ transport.Callback = (*Servlet)(nil)

// ServletOption configures a Servlet.
type ServletOption func(*Servlet)

// WithThemes sets the file system theme resources are served from. Paths
// are "{theme}/{resource}". Resources are fingerprinted when the servlet
// is created; fingerprinted URLs are served with an immutable cache policy.
func WithThemes(fsys fs.FS) ServletOption {
	return func(s *Servlet) { s.themes = fsys }
}

// WithManagerOptions passes options to every communication manager the
// servlet creates.
func WithManagerOptions(opts ...ManagerOption) ServletOption {
	return func(s *Servlet) { s.managerOpts = append(s.managerOpts, opts...) }
}

// WithMiddleware adds HTTP middleware in front of every route.
func WithMiddleware(mw ...func(http.Handler) http.Handler) ServletOption {
	return func(s *Servlet) { s.middleware = append(s.middleware, mw...) }
}

// WithServletLogger sets the logger.
func WithServletLogger(logger *slog.Logger) ServletOption {
	return func(s *Servlet) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServlet creates a servlet. A nil factory creates applications whose
// roots are empty. A nil container keeps sessions in memory.
func NewServlet(config *Config, sessions *session.Container, factory ApplicationFactory, opts ...ServletOption) *Servlet {
	config = config.withDefaults()
	s := &Servlet{
		config:  config,
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = emptyApplication
	}
	if sessions == nil {
		sessions = session.NewContainer(nil, config.Session, s.logger)
	}
	s.sessions = sessions
	s.resolver = NewResolver(s.logger)
	s.assets = assets.NewPassthroughResolver("/" + ThemePath + "/")
	if s.themes != nil {
		if m, err := assets.Build(s.themes); err != nil {
			s.logger.Warn("theme fingerprinting failed", "error", err)
		} else {
			s.manifest = m
			s.assets = assets.NewResolver(m, "/"+ThemePath+"/")
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}
	s.logger = s.logger.With("component", "servlet")
	s.router = s.routes()
	return s
}

func emptyApplication(_ context.Context, name string) (*component.Application, error) {
	factory := func(_ *component.Application, root string) (*component.Root, error) {
		return component.NewRoot(root), nil
	}
	return component.NewApplication(name, component.WithRootFactory(factory)), nil
}

func (s *Servlet) routes() chi.Router {
	r := chi.NewRouter()
	for _, mw := range s.middleware {
		r.Use(mw)
	}
	r.Use(s.sessions.Middleware)

	r.Get("/", s.handleBootstrap)
	r.Get("/{root}", s.handleBootstrap)
	r.Post("/"+UIDLPath+"/*", s.handleUIDL)
	r.Post("/"+s.config.Upload.Prefix+"*", s.handleUpload)
	r.Get("/"+PushPath+"/{root}", s.handlePush)
	r.Get("/"+ThemePath+"/{theme}/*", s.handleTheme)
	return r
}

// Handler returns the HTTP handler of the servlet.
func (s *Servlet) Handler() http.Handler { return s.router }

// ServeHTTP implements http.Handler.
func (s *Servlet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the session container.
func (s *Servlet) Sessions() *session.Container { return s.sessions }

// Config returns the servlet configuration.
func (s *Servlet) Config() *Config { return s.config }

// CriticalNotification implements transport.Callback.
func (s *Servlet) CriticalNotification(req transport.Request, resp transport.Response, caption, message, details, url string) error {
	return WriteCriticalNotification(resp, Notification{
		Caption: caption,
		Message: message,
		Details: details,
		URL:     url,
		Code:    CriticalCode(req),
	})
}

// RequestPathInfo implements transport.Callback.
func (s *Servlet) RequestPathInfo(req transport.Request) string {
	return req.PathInfo()
}

// ThemeResource implements transport.Callback.
func (s *Servlet) ThemeResource(theme, resource string) (io.ReadCloser, error) {
	if s.themes == nil {
		return nil, fs.ErrNotExist
	}
	name := path.Join(theme, resource)
	if theme == "" || resource == "" || !fs.ValidPath(name) {
		return nil, fs.ErrNotExist
	}
	return s.themes.Open(name)
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Servlet) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Servlet) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops the HTTP server and destroys all sessions, closing their
// applications.
func (s *Servlet) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if err := s.sessions.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("server shutdown complete")
	return errors.Join(errs...)
}

// bind returns the running binding of sess, creating the application and
// its communication manager when there is none.
func (s *Servlet) bind(ctx context.Context, sess *session.Session) (*Binding, error) {
	if b, ok := sess.Get(AppAttribute).(*Binding); ok && b.running() {
		return b, nil
	}

	unlock := s.binds.lock(sess.ID())
	defer unlock()
	if b, ok := sess.Get(AppAttribute).(*Binding); ok && b.running() {
		return b, nil
	}

	app, err := s.factory(ctx, s.config.ApplicationName)
	if err != nil {
		return nil, fmt.Errorf("server: create application: %w", err)
	}
	opts := append([]ManagerOption{
		WithLogger(s.logger),
		WithSystemMessages(s.config.Messages),
		WithUploadConfig(s.config.Upload),
		WithMaxUIDLSize(s.config.MaxUIDLSize),
	}, s.managerOpts...)

	b := &Binding{App: app, Manager: NewCommunicationManager(app, opts...)}
	sess.Set(AppAttribute, b)
	s.logger.Info("application started", "session", sess.ID(), "app", app.Name())
	return b, nil
}

// sessionLocks hands out one mutex per session ID. Entries are dropped
// when no goroutine holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var bootstrapPage = template.Must(template.New("bootstrap").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.ThemeURL}}">
</head>
<body>
<div id="{{.Root}}" data-vango-root="{{.Root}}" data-vango-uidl="{{.UIDLURL}}" data-vango-push="{{.PushURL}}" data-vango-key="{{.Key}}" data-vango-upload="{{.UploadPrefix}}"></div>
</body>
</html>
`))

type bootstrapData struct {
	Title        string
	Root         string
	UIDLURL      string
	PushURL      string
	ThemeURL     string
	Key          string
	UploadPrefix string
}

func (s *Servlet) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Session(w, r, true)
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	b, err := s.bind(r.Context(), sess)
	if err != nil {
		s.logger.Error("bootstrap failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	req := transport.NewHTTPRequest(r, sess, chi.URLParam(r, RootParameter))
	root, err := s.resolver.Resolve(req, s, nil)
	if err != nil {
		status := HTTPStatus(err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	data := bootstrapData{
		Title:        s.config.ApplicationName,
		Root:         root.Name(),
		UIDLURL:      "/" + UIDLPath + "/" + root.Name(),
		PushURL:      "/" + PushPath + "/" + root.Name(),
		ThemeURL:     s.assets.Asset(s.config.Theme + "/styles.css"),
		Key:          b.Manager.UIDLKey(),
		UploadPrefix: "/" + s.config.Upload.Prefix,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := bootstrapPage.Execute(w, data); err != nil {
		s.logger.Debug("failed to write bootstrap page", "error", err)
	}
}

func (s *Servlet) handleUIDL(w http.ResponseWriter, r *http.Request) {
	req := transport.NewHTTPRequest(r, requestSession(r), chi.URLParam(r, "*"))
	resp := transport.NewHTTPResponse(w)
	defer resp.Flush()

	b := BindingOf(req)
	if b == nil || b.Manager == nil {
		s.sessionExpired(req, resp)
		return
	}
	if _, err := b.Manager.HandleUIDLRequest(req, resp, s, nil); err != nil {
		s.logger.Debug("UIDL request failed", "request_id", req.RequestID(), "error", err)
		resp.SetStatus(HTTPStatus(err))
	}
}

func (s *Servlet) handleUpload(w http.ResponseWriter, r *http.Request) {
	req := transport.NewHTTPRequest(r, requestSession(r), strings.TrimPrefix(r.URL.Path, "/"))
	resp := transport.NewHTTPResponse(w)
	defer resp.Flush()

	b := BindingOf(req)
	if b == nil || b.Manager == nil {
		resp.SetStatus(HTTPStatus(ErrSessionExpired))
		return
	}
	if err := b.Manager.HandleFileUpload(req, resp); err != nil {
		resp.SetStatus(HTTPStatus(err))
	}
}

func (s *Servlet) handlePush(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	req := transport.NewHTTPRequest(r, sess, chi.URLParam(r, RootParameter))
	b := BindingOf(req)
	if b == nil || b.Manager == nil {
		http.Error(w, http.StatusText(http.StatusGone), http.StatusGone)
		return
	}
	root, err := s.resolver.Resolve(req, s, nil)
	if err != nil {
		status := HTTPStatus(err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	maxMessage := int64(s.config.MaxUIDLSize) + protocol.FrameHeaderSize
	wc := transport.NewWSConn(conn, r, sess, root.Name(), maxMessage, s.config.WriteTimeout)
	defer wc.Close()

	ctx := r.Context()
	for {
		wreq, wresp, err := wc.Next(ctx)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		outcome, err := b.Manager.HandleUIDLRequest(wreq, wresp, s, root)
		if err != nil {
			wresp.SetStatus(HTTPStatus(err))
		}
		if sendErr := wc.Send(wresp); sendErr != nil {
			s.logger.Debug("websocket send failed", "error", sendErr)
			return
		}
		if err != nil || outcome == OutcomeCriticalFailure {
			return
		}
	}
}

func (s *Servlet) handleTheme(w http.ResponseWriter, r *http.Request) {
	theme := chi.URLParam(r, "theme")
	resource := chi.URLParam(r, "*")

	immutable := false
	if s.manifest != nil {
		if src, ok := s.manifest.Source(theme + "/" + resource); ok {
			resource = strings.TrimPrefix(src, theme+"/")
			immutable = true
		}
	}

	rc, err := s.ThemeResource(theme, resource)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("theme resource failed", "theme", theme, "resource", resource, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(resource)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if immutable {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("failed to write theme resource", "error", err)
	}
}

// sessionExpired writes the session expired notification for a request
// whose session carries no application.
func (s *Servlet) sessionExpired(req transport.Request, resp transport.Response) {
	msg := s.config.Messages.For(protocol.ErrSessionExpired)
	req.SetAttribute(criticalCodeAttribute, CatalogueCode(ErrSessionExpired))
	if err := s.CriticalNotification(req, resp, msg.Caption, msg.Message, "", msg.URL); err != nil {
		s.logger.Warn("failed to write critical notification", "error", err)
	}
}

// requestSession returns the session bound by the container middleware,
// or nil.
func requestSession(r *http.Request) transport.Session {
	if sess := session.FromContext(r.Context()); sess != nil {
		return sess
	}
	return nil
}
