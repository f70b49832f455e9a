package component

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Application errors.
var (
	// ErrNoRootFactory is returned by CreateRoot when the application cannot
	// create roots on demand.
	ErrNoRootFactory = errors.New("component: application has no root factory")

	// ErrRootExists is returned when a root name is already taken.
	ErrRootExists = errors.New("component: root already exists")

	// ErrNotRunning is returned when operating on a closed application.
	ErrNotRunning = errors.New("component: application is not running")
)

// RootFactory creates the root named name, or returns (nil, nil) when the
// name is unknown.
type RootFactory func(app *Application, name string) (*Root, error)

// DetachListener is notified for every component leaving the tree.
type DetachListener func(c Component)

// attacher is implemented by containers that report removed children to
// their application.
type attacher interface {
	attach(a *Application)
}

// Application is the per-session owner of the component tree.
//
// The application lock guards the whole tree: variable changes, repaints
// and tree mutation must happen while it is held.
type Application struct {
	mu sync.Mutex

	name     string
	factory  RootFactory
	roots    map[string]*Root
	mainRoot *Root
	running  bool

	detachListeners []DetachListener
	closeListeners  []func()

	logger *slog.Logger
}

// ApplicationOption configures an Application.
type ApplicationOption func(*Application)

// WithRootFactory sets the factory used by CreateRoot.
func WithRootFactory(f RootFactory) ApplicationOption {
	return func(a *Application) { a.factory = f }
}

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(a *Application) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewApplication creates a running application.
func NewApplication(name string, opts ...ApplicationOption) *Application {
	a := &Application{
		name:    name,
		roots:   make(map[string]*Root),
		running: true,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "application", "app", name)
	return a
}

// Lock acquires the application lock.
func (a *Application) Lock() { a.mu.Lock() }

// Unlock releases the application lock.
func (a *Application) Unlock() { a.mu.Unlock() }

// Name returns the application name.
func (a *Application) Name() string { return a.name }

// IsRunning reports whether the application has not been closed.
// The caller must hold the lock.
func (a *Application) IsRunning() bool { return a.running }

// AddRoot attaches r. The first root added becomes the main root.
// The caller must hold the lock.
func (a *Application) AddRoot(r *Root) error {
	if !a.running {
		return ErrNotRunning
	}
	if _, ok := a.roots[r.name]; ok {
		return ErrRootExists
	}
	r.app = a
	a.attachTree(r)
	a.roots[r.name] = r
	if a.mainRoot == nil {
		a.mainRoot = r
	}
	return nil
}

// Root returns the root named name.
// The caller must hold the lock.
func (a *Application) Root(name string) (*Root, bool) {
	r, ok := a.roots[name]
	return r, ok
}

// MainRoot returns the main root, or nil when none was added.
// The caller must hold the lock.
func (a *Application) MainRoot() *Root { return a.mainRoot }

// Roots returns all roots sorted by name.
// The caller must hold the lock.
func (a *Application) Roots() []*Root {
	out := make([]*Root, 0, len(a.roots))
	for _, r := range a.roots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// CreateRoot creates and attaches the root named name through the root
// factory. It returns (nil, nil) when the factory does not know the name.
// The caller must hold the lock.
func (a *Application) CreateRoot(name string) (*Root, error) {
	if !a.running {
		return nil, ErrNotRunning
	}
	if a.factory == nil {
		return nil, ErrNoRootFactory
	}
	r, err := a.factory(a, name)
	if err != nil || r == nil {
		return nil, err
	}
	if r.name == "" {
		r.name = name
	}
	if err := a.AddRoot(r); err != nil {
		return nil, err
	}
	a.logger.Debug("root created", "root", r.name)
	return r, nil
}

// RemoveRoot detaches the root named name and all its components.
// The caller must hold the lock.
func (a *Application) RemoveRoot(name string) {
	r, ok := a.roots[name]
	if !ok {
		return
	}
	delete(a.roots, name)
	if a.mainRoot == r {
		a.mainRoot = nil
	}
	a.Detach(r)
	r.app = nil
}

// OnDetach registers a listener called for every component leaving the
// tree. The caller must hold the lock.
func (a *Application) OnDetach(fn DetachListener) {
	a.detachListeners = append(a.detachListeners, fn)
}

// OnClose registers a function called once when the application closes.
// The caller must hold the lock.
func (a *Application) OnClose(fn func()) {
	a.closeListeners = append(a.closeListeners, fn)
}

// Detach notifies the detach listeners for c and every descendant.
// The caller must hold the lock.
func (a *Application) Detach(c Component) {
	_ = Walk(c, func(c Component) error {
		for _, fn := range a.detachListeners {
			fn(c)
		}
		if at, ok := c.(attacher); ok {
			at.attach(nil)
		}
		return nil
	})
}

// attachTree binds the containers below c to a.
func (a *Application) attachTree(c Component) {
	_ = Walk(c, func(c Component) error {
		if at, ok := c.(attacher); ok {
			at.attach(a)
		}
		return nil
	})
}

// Close stops the application and detaches every root. Closing twice is a
// no-op. Close acquires the lock itself.
func (a *Application) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	for _, r := range a.Roots() {
		a.RemoveRoot(r.name)
	}
	a.running = false
	for _, fn := range a.closeListeners {
		fn()
	}
	a.closeListeners = nil
	a.logger.Info("application closed")
}
