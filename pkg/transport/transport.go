package transport

import (
	"context"
	"io"
	"time"
)

// Session is the session state a request is bound to.
type Session interface {
	// ID returns the session identifier.
	ID() string

	// Get returns a session attribute, or nil.
	Get(name string) any

	// Set stores a session attribute. A nil value removes it.
	Set(name string, value any)

	// MaxInactiveInterval returns the idle time after which the session
	// expires.
	MaxInactiveInterval() time.Duration
}

// Request is a transport-neutral inbound request.
type Request interface {
	// Context returns the request context.
	Context() context.Context

	// Attribute returns a request-scoped attribute, or nil.
	Attribute(name string) any

	// SetAttribute stores a request-scoped attribute.
	SetAttribute(name string, value any)

	// ContentLength returns the body length, or -1 if unknown.
	ContentLength() int64

	// ContentType returns the value of the Content-Type header.
	ContentType() string

	// Body returns the request payload.
	Body() io.Reader

	// Parameter returns the first value of a query or form parameter.
	Parameter(name string) string

	// ParameterMap returns all query parameters.
	ParameterMap() map[string][]string

	// RequestID identifies the request in logs.
	RequestID() string

	// PathInfo returns the path below the servlet mount point.
	PathInfo() string

	// SessionAttribute returns a session attribute, or nil when there is no
	// session.
	SessionAttribute(name string) any

	// SetSessionAttribute stores a session attribute. It is a no-op when
	// there is no session.
	SetSessionAttribute(name string, value any)

	// SessionMaxInactiveInterval returns the session idle timeout, or zero
	// when there is no session.
	SessionMaxInactiveInterval() time.Duration
}

// Response is a transport-neutral outbound response.
type Response interface {
	// Writer returns the response body sink.
	Writer() io.Writer

	// SetContentType sets the response content type.
	SetContentType(contentType string)

	// SetStatus sets the response status code.
	SetStatus(code int)

	// SetHeader sets a response header.
	SetHeader(name, value string)
}

// Callback is implemented by the component hosting the communication
// manager.
type Callback interface {
	// CriticalNotification sends a terminal error to the client.
	CriticalNotification(req Request, resp Response, caption, message, details, url string) error

	// RequestPathInfo returns the application-relative path of req.
	RequestPathInfo(req Request) string

	// ThemeResource opens a resource of a theme.
	ThemeResource(theme, resource string) (io.ReadCloser, error)
}

// attributes is a lazily allocated request attribute map.
type attributes map[string]any

func (a *attributes) get(name string) any {
	if *a == nil {
		return nil
	}
	return (*a)[name]
}

func (a *attributes) set(name string, value any) {
	if *a == nil {
		*a = make(attributes)
	}
	if value == nil {
		delete(*a, name)
		return
	}
	(*a)[name] = value
}
