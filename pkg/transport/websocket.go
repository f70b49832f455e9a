package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned by WSConn after Close.
var ErrConnectionClosed = errors.New("transport: connection closed")

// WSConn carries one UIDL exchange per WebSocket message. Each inbound
// binary message becomes a Request; the Response is buffered and sent as a
// single message.
type WSConn struct {
	conn     *websocket.Conn
	session  Session
	pathInfo string
	params   map[string][]string

	writeTimeout time.Duration

	mu     sync.Mutex // serializes writes
	seq    uint64
	closed bool
}

// NewWSConn wraps an upgraded connection. r is the upgrade request; its
// query parameters are exposed on every message request.
func NewWSConn(conn *websocket.Conn, r *http.Request, session Session, pathInfo string, maxMessage int64, writeTimeout time.Duration) *WSConn {
	if maxMessage > 0 {
		conn.SetReadLimit(maxMessage)
	}
	return &WSConn{
		conn:         conn,
		session:      session,
		pathInfo:     pathInfo,
		params:       r.URL.Query(),
		writeTimeout: writeTimeout,
	}
}

// Next blocks until the next message arrives.
func (c *WSConn) Next(ctx context.Context) (*WSRequest, *WSResponse, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		c.seq++
		req := &WSRequest{
			ctx:  ctx,
			conn: c,
			id:   c.seq,
			body: bytes.NewReader(data),
			size: int64(len(data)),
		}
		return req, &WSResponse{status: http.StatusOK}, nil
	}
}

// Send writes resp as one message. Non-2xx responses without a body close
// the connection with a matching close code.
func (c *WSConn) Send(resp *WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}

	if resp.status >= 300 && resp.buf.Len() == 0 {
		c.closed = true
		msg := websocket.FormatCloseMessage(closeCode(resp.status), http.StatusText(resp.status))
		c.conn.WriteMessage(websocket.CloseMessage, msg)
		return c.conn.Close()
	}

	mt := websocket.BinaryMessage
	if strings.HasPrefix(resp.contentType, "application/json") || strings.HasPrefix(resp.contentType, "text/") {
		mt = websocket.TextMessage
	}
	return c.conn.WriteMessage(mt, resp.buf.Bytes())
}

// Close closes the connection.
func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func closeCode(status int) int {
	switch {
	case status == http.StatusForbidden:
		return websocket.ClosePolicyViolation
	case status >= 400 && status < 500:
		return websocket.CloseUnsupportedData
	default:
		return websocket.CloseInternalServerErr
	}
}

// WSRequest is a Request read from a WSConn.
type WSRequest struct {
	ctx   context.Context
	conn  *WSConn
	id    uint64
	body  io.Reader
	size  int64
	attrs attributes
}

func (r *WSRequest) Context() context.Context { return r.ctx }

func (r *WSRequest) Attribute(name string) any { return r.attrs.get(name) }

func (r *WSRequest) SetAttribute(name string, value any) { r.attrs.set(name, value) }

func (r *WSRequest) ContentLength() int64 { return r.size }

func (r *WSRequest) ContentType() string { return "application/octet-stream" }

func (r *WSRequest) Body() io.Reader { return r.body }

func (r *WSRequest) Parameter(name string) string {
	if v := r.conn.params[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (r *WSRequest) ParameterMap() map[string][]string { return r.conn.params }

func (r *WSRequest) RequestID() string {
	sid := ""
	if r.conn.session != nil {
		sid = r.conn.session.ID()
	}
	return "WebSocket:" + sid + "#" + strconv.FormatUint(r.id, 10)
}

func (r *WSRequest) PathInfo() string { return r.conn.pathInfo }

func (r *WSRequest) SessionAttribute(name string) any {
	if r.conn.session == nil {
		return nil
	}
	return r.conn.session.Get(name)
}

func (r *WSRequest) SetSessionAttribute(name string, value any) {
	if r.conn.session != nil {
		r.conn.session.Set(name, value)
	}
}

func (r *WSRequest) SessionMaxInactiveInterval() time.Duration {
	if r.conn.session == nil {
		return 0
	}
	return r.conn.session.MaxInactiveInterval()
}

// WSResponse buffers a response until WSConn.Send.
type WSResponse struct {
	buf         bytes.Buffer
	status      int
	contentType string
	headers     map[string]string
}

func (r *WSResponse) Writer() io.Writer { return &r.buf }

func (r *WSResponse) SetContentType(contentType string) { r.contentType = contentType }

func (r *WSResponse) SetStatus(code int) { r.status = code }

func (r *WSResponse) SetHeader(name, value string) {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[name] = value
}

// Status returns the response status.
func (r *WSResponse) Status() int { return r.status }
