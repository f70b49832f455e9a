package session

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// UnbindListener is implemented by attribute values that need to know when
// they leave a session, either because they were replaced or removed or
// because the session was destroyed.
type UnbindListener interface {
	ValueUnbound(s *Session, name string)
}

// Session is an HTTP session: an attribute map with an idle timeout.
// It implements transport.Session.
type Session struct {
	id          string
	createdAt   time.Time
	maxInactive time.Duration
	remoteAddr  string

	mu         sync.Mutex
	attrs      map[string]any
	lastAccess time.Time
	valid      bool
}

func newSession(id string, now time.Time, maxInactive time.Duration, remoteAddr string) *Session {
	return &Session{
		id:          id,
		createdAt:   now,
		maxInactive: maxInactive,
		remoteAddr:  remoteAddr,
		lastAccess:  now,
		valid:       true,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) MaxInactiveInterval() time.Duration { return s.maxInactive }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastAccess returns the time of the most recent request.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Valid reports whether the session has not been destroyed.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

func (s *Session) Get(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[name]
}

// Set stores value under name; nil removes the attribute. A replaced or
// removed UnbindListener is notified after the lock is released. Setting
// an attribute on a destroyed session is a no-op.
func (s *Session) Set(name string, value any) {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	old := s.attrs[name]
	if value == nil {
		delete(s.attrs, name)
	} else {
		if s.attrs == nil {
			s.attrs = make(map[string]any)
		}
		s.attrs[name] = value
	}
	s.mu.Unlock()

	if old != nil && !sameValue(old, value) {
		if l, ok := old.(UnbindListener); ok {
			l.ValueUnbound(s, name)
		}
	}
}

// Names returns the attribute names in sorted order.
func (s *Session) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// touch records an access and reports whether the session was still alive
// at now.
func (s *Session) touch(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid || s.idleLocked(now) {
		return false
	}
	s.lastAccess = now
	return true
}

func (s *Session) idle(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked(now)
}

func (s *Session) idleLocked(now time.Time) bool {
	return s.maxInactive > 0 && now.Sub(s.lastAccess) >= s.maxInactive
}

func (s *Session) lease() *Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Lease{
		ID:         s.id,
		CreatedAt:  s.createdAt,
		LastAccess: s.lastAccess,
		RemoteAddr: s.remoteAddr,
	}
}

// destroy invalidates the session and notifies every UnbindListener in
// attribute name order. It returns false if the session was already gone.
func (s *Session) destroy() bool {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return false
	}
	s.valid = false
	attrs := s.attrs
	s.attrs = nil
	s.mu.Unlock()

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if l, ok := attrs[name].(UnbindListener); ok {
			l.ValueUnbound(s, name)
		}
	}
	return true
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}
