package transport

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// MockSession is an in-memory Session.
type MockSession struct {
	SessionID   string
	MaxInactive time.Duration

	mu    sync.Mutex
	attrs map[string]any
}

// NewMockSession creates an empty session.
func NewMockSession(id string) *MockSession {
	return &MockSession{SessionID: id, MaxInactive: 30 * time.Minute}
}

func (s *MockSession) ID() string { return s.SessionID }

func (s *MockSession) Get(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[name]
}

func (s *MockSession) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.attrs, name)
		return
	}
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[name] = value
}

func (s *MockSession) MaxInactiveInterval() time.Duration { return s.MaxInactive }

// MockRequest is an in-memory Request.
type MockRequest struct {
	Ctx     context.Context
	ID      string
	Path    string
	Type    string
	Payload []byte
	Params  url.Values
	Session Session

	body  io.Reader
	attrs attributes
}

// NewMockRequest creates a request for path carrying payload.
func NewMockRequest(path string, payload []byte) *MockRequest {
	return &MockRequest{
		Ctx:     context.Background(),
		ID:      "mock:" + path,
		Path:    path,
		Payload: payload,
		Params:  url.Values{},
	}
}

// WithSession binds the request to s.
func (r *MockRequest) WithSession(s Session) *MockRequest {
	r.Session = s
	return r
}

// WithContentType sets the content type.
func (r *MockRequest) WithContentType(ct string) *MockRequest {
	r.Type = ct
	return r
}

// WithBody replaces the payload with a streaming reader of unknown length.
func (r *MockRequest) WithBody(body io.Reader) *MockRequest {
	r.body = body
	r.Payload = nil
	return r
}

func (r *MockRequest) Context() context.Context { return r.Ctx }

func (r *MockRequest) Attribute(name string) any { return r.attrs.get(name) }

func (r *MockRequest) SetAttribute(name string, value any) { r.attrs.set(name, value) }

func (r *MockRequest) ContentLength() int64 {
	if r.body != nil {
		return -1
	}
	return int64(len(r.Payload))
}

func (r *MockRequest) ContentType() string { return r.Type }

func (r *MockRequest) Body() io.Reader {
	if r.body == nil {
		r.body = bytes.NewReader(r.Payload)
	}
	return r.body
}

func (r *MockRequest) Parameter(name string) string { return r.Params.Get(name) }

func (r *MockRequest) ParameterMap() map[string][]string { return r.Params }

func (r *MockRequest) RequestID() string { return r.ID }

func (r *MockRequest) PathInfo() string { return r.Path }

func (r *MockRequest) SessionAttribute(name string) any {
	if r.Session == nil {
		return nil
	}
	return r.Session.Get(name)
}

func (r *MockRequest) SetSessionAttribute(name string, value any) {
	if r.Session != nil {
		r.Session.Set(name, value)
	}
}

func (r *MockRequest) SessionMaxInactiveInterval() time.Duration {
	if r.Session == nil {
		return 0
	}
	return r.Session.MaxInactiveInterval()
}

// MockResponse records everything written to it.
type MockResponse struct {
	Body        bytes.Buffer
	Code        int
	ContentType string
	Headers     http.Header

	// WriteErr, when set, is returned by every write.
	WriteErr error
}

// NewMockResponse creates an empty response with status 200.
func NewMockResponse() *MockResponse {
	return &MockResponse{Code: http.StatusOK, Headers: http.Header{}}
}

func (r *MockResponse) Writer() io.Writer { return r }

// Write implements io.Writer.
func (r *MockResponse) Write(p []byte) (int, error) {
	if r.WriteErr != nil {
		return 0, r.WriteErr
	}
	return r.Body.Write(p)
}

func (r *MockResponse) SetContentType(contentType string) { r.ContentType = contentType }

func (r *MockResponse) SetStatus(code int) { r.Code = code }

func (r *MockResponse) SetHeader(name, value string) { r.Headers.Set(name, value) }

// MockCallback is a Callback that records critical notifications.
type MockCallback struct {
	mu            sync.Mutex
	Notifications []Notification
	Themes        map[string]string
	Err           error
}

// Notification is a recorded critical notification.
type Notification struct {
	Caption string
	Message string
	Details string
	URL     string
}

func (c *MockCallback) CriticalNotification(req Request, resp Response, caption, message, details, url string) error {
	c.mu.Lock()
	c.Notifications = append(c.Notifications, Notification{caption, message, details, url})
	c.mu.Unlock()
	resp.SetContentType("application/json; charset=UTF-8")
	return c.Err
}

func (c *MockCallback) RequestPathInfo(req Request) string { return req.PathInfo() }

func (c *MockCallback) ThemeResource(theme, resource string) (io.ReadCloser, error) {
	body, ok := c.Themes[theme+"/"+resource]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

// Last returns the most recent notification.
func (c *MockCallback) Last() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Notifications) == 0 {
		return Notification{}, false
	}
	return c.Notifications[len(c.Notifications)-1], true
}
