package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/transport"
)

// AppAttribute is the session attribute holding the *Binding of the
// session's application.
const AppAttribute = "vango.terminal.application"

// RootParameter is the request parameter naming the root.
const RootParameter = "root"

// DefaultRootName is used when a request names no root.
const DefaultRootName = "main"

// Resolver finds the root a request addresses.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With("component", "resolver")}
}

// BindingOf returns the application binding stored in the request's
// session, or nil.
func BindingOf(req transport.Request) *Binding {
	b, _ := req.SessionAttribute(AppAttribute).(*Binding)
	return b
}

// Resolve returns the root addressed by req.
//
// assumed is returned unchanged when its application is still running and
// still bound to the request's session. Otherwise the root is selected by
// name from the session's application, or created through its root
// factory. It fails with ErrSessionExpired when the session has no running
// application and ErrWindowNotFound when the name is unknown.
func (r *Resolver) Resolve(req transport.Request, cb transport.Callback, assumed *component.Root) (*component.Root, error) {
	b := BindingOf(req)
	if b == nil || b.App == nil {
		return nil, ErrSessionExpired
	}
	app := b.App

	app.Lock()
	defer app.Unlock()

	if !app.IsRunning() {
		return nil, ErrSessionExpired
	}
	if assumed != nil && assumed.Application() == app {
		return assumed, nil
	}

	name := req.Parameter(RootParameter)
	if name == "" {
		name = rootNameFromPath(cb, req)
	}
	if name == "" {
		if main := app.MainRoot(); main != nil {
			return main, nil
		}
		name = DefaultRootName
	}

	if root, ok := app.Root(name); ok {
		return root, nil
	}
	root, err := app.CreateRoot(name)
	switch {
	case errors.Is(err, component.ErrNoRootFactory):
		return nil, fmt.Errorf("%w: %q", ErrWindowNotFound, name)
	case errors.Is(err, component.ErrNotRunning):
		return nil, ErrSessionExpired
	case err != nil:
		return nil, err
	case root == nil:
		return nil, fmt.Errorf("%w: %q", ErrWindowNotFound, name)
	}
	r.logger.Debug("root created on demand", "app", app.Name(), "root", root.Name())
	return root, nil
}

// rootNameFromPath returns the first segment of the request path info.
func rootNameFromPath(cb transport.Callback, req transport.Request) string {
	path := req.PathInfo()
	if cb != nil {
		path = cb.RequestPathInfo(req)
	}
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
