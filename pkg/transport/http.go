package transport

import (
	"context"
	"io"
	"net/http"
	"time"
)

// RequestIDHeader is honoured by HTTPRequest.RequestID when present.
const RequestIDHeader = "X-Request-ID"

// HTTPRequest adapts an *http.Request.
type HTTPRequest struct {
	r        *http.Request
	session  Session
	pathInfo string
	attrs    attributes
}

// NewHTTPRequest wraps r. session may be nil when the request carries none.
// pathInfo is the path below the mount point of the servlet.
func NewHTTPRequest(r *http.Request, session Session, pathInfo string) *HTTPRequest {
	return &HTTPRequest{r: r, session: session, pathInfo: pathInfo}
}

// Unwrap returns the wrapped request.
func (h *HTTPRequest) Unwrap() *http.Request { return h.r }

// Session returns the bound session, or nil.
func (h *HTTPRequest) Session() Session { return h.session }

func (h *HTTPRequest) Context() context.Context { return h.r.Context() }

func (h *HTTPRequest) Attribute(name string) any { return h.attrs.get(name) }

func (h *HTTPRequest) SetAttribute(name string, value any) { h.attrs.set(name, value) }

func (h *HTTPRequest) ContentLength() int64 { return h.r.ContentLength }

func (h *HTTPRequest) ContentType() string { return h.r.Header.Get("Content-Type") }

func (h *HTTPRequest) Body() io.Reader {
	if h.r.Body == nil {
		return http.NoBody
	}
	return h.r.Body
}

func (h *HTTPRequest) Parameter(name string) string { return h.r.URL.Query().Get(name) }

func (h *HTTPRequest) ParameterMap() map[string][]string { return h.r.URL.Query() }

func (h *HTTPRequest) RequestID() string {
	if id := h.r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return "RequestURL:" + h.r.URL.RequestURI()
}

func (h *HTTPRequest) PathInfo() string { return h.pathInfo }

func (h *HTTPRequest) SessionAttribute(name string) any {
	if h.session == nil {
		return nil
	}
	return h.session.Get(name)
}

func (h *HTTPRequest) SetSessionAttribute(name string, value any) {
	if h.session != nil {
		h.session.Set(name, value)
	}
}

func (h *HTTPRequest) SessionMaxInactiveInterval() time.Duration {
	if h.session == nil {
		return 0
	}
	return h.session.MaxInactiveInterval()
}

// HTTPResponse adapts an http.ResponseWriter. The status code is sent with
// the first body write so headers can be set in any order before that.
type HTTPResponse struct {
	w           http.ResponseWriter
	status      int
	wroteHeader bool
}

// NewHTTPResponse wraps w.
func NewHTTPResponse(w http.ResponseWriter) *HTTPResponse {
	return &HTTPResponse{w: w, status: http.StatusOK}
}

// Writer returns the body sink.
func (h *HTTPResponse) Writer() io.Writer { return h }

// Write implements io.Writer.
func (h *HTTPResponse) Write(p []byte) (int, error) {
	h.flushHeader()
	return h.w.Write(p)
}

// Flush sends the status line even if no body was written.
func (h *HTTPResponse) Flush() {
	h.flushHeader()
	if f, ok := h.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *HTTPResponse) SetContentType(contentType string) {
	h.w.Header().Set("Content-Type", contentType)
}

func (h *HTTPResponse) SetStatus(code int) { h.status = code }

func (h *HTTPResponse) SetHeader(name, value string) { h.w.Header().Set(name, value) }

// Status returns the status that is or will be sent.
func (h *HTTPResponse) Status() int { return h.status }

func (h *HTTPResponse) flushHeader() {
	if h.wroteHeader {
		return
	}
	h.wroteHeader = true
	h.w.WriteHeader(h.status)
}
