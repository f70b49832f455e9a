package session

import (
	"context"
	"net/http"
)

type contextKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// Middleware binds the request's existing session, if any, to the request
// context. It never creates sessions; handlers that need one call
// Container.Session with create set.
func (c *Container) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := c.Session(w, r, false)
		if err != nil {
			c.logger.Warn("session lookup failed", "error", err)
		}
		if s != nil {
			r = r.WithContext(NewContext(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}
