package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPRequest_Accessors(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/UIDL/main?root=main&x=1&x=2", strings.NewReader("payload"))
	r.Header.Set("Content-Type", "application/octet-stream")
	sess := NewMockSession("s1")
	sess.MaxInactive = time.Minute

	req := NewHTTPRequest(r, sess, "/UIDL/main")

	if got := req.Parameter("root"); got != "main" {
		t.Errorf("Parameter(root) = %q", got)
	}
	if got := req.ParameterMap()["x"]; len(got) != 2 {
		t.Errorf("ParameterMap[x] = %v", got)
	}
	if got := req.ContentType(); got != "application/octet-stream" {
		t.Errorf("ContentType = %q", got)
	}
	if got := req.ContentLength(); got != int64(len("payload")) {
		t.Errorf("ContentLength = %d", got)
	}
	body, _ := io.ReadAll(req.Body())
	if string(body) != "payload" {
		t.Errorf("Body = %q", body)
	}
	if got := req.PathInfo(); got != "/UIDL/main" {
		t.Errorf("PathInfo = %q", got)
	}
	if got := req.RequestID(); got != "RequestURL:/UIDL/main?root=main&x=1&x=2" {
		t.Errorf("RequestID = %q", got)
	}
	if got := req.SessionMaxInactiveInterval(); got != time.Minute {
		t.Errorf("SessionMaxInactiveInterval = %v", got)
	}

	req.SetSessionAttribute("app", 42)
	if got := sess.Get("app"); got != 42 {
		t.Errorf("session attribute = %v", got)
	}
	req.SetAttribute("a", "b")
	if got := req.Attribute("a"); got != "b" {
		t.Errorf("Attribute = %v", got)
	}
	req.SetAttribute("a", nil)
	if got := req.Attribute("a"); got != nil {
		t.Errorf("Attribute after delete = %v", got)
	}
}

func TestHTTPRequest_NoSession(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-7")
	req := NewHTTPRequest(r, nil, "/")

	if req.SessionAttribute("x") != nil {
		t.Error("SessionAttribute without session should be nil")
	}
	req.SetSessionAttribute("x", 1)
	if req.SessionMaxInactiveInterval() != 0 {
		t.Error("SessionMaxInactiveInterval without session should be 0")
	}
	if req.RequestID() != "req-7" {
		t.Errorf("RequestID = %q", req.RequestID())
	}
}

func TestHTTPResponse_StatusSentWithFirstWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	resp := NewHTTPResponse(rec)

	resp.SetStatus(http.StatusAccepted)
	resp.SetContentType("text/plain")
	resp.SetHeader("X-Test", "1")
	io.WriteString(resp.Writer(), "ok")

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/plain" || rec.Header().Get("X-Test") != "1" {
		t.Errorf("headers = %v", rec.Header())
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHTTPResponse_FlushWithoutBody(t *testing.T) {
	rec := httptest.NewRecorder()
	resp := NewHTTPResponse(rec)
	resp.SetStatus(http.StatusBadRequest)
	resp.Flush()

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}
