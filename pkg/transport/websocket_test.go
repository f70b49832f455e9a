package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWSPair(t *testing.T, handle func(c *WSConn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewWSConn(conn, r, NewMockSession("s1"), "/PUSH/main", 1024, time.Second)
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/PUSH/main?root=main"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWSConn_EchoExchange(t *testing.T) {
	client := newWSPair(t, func(c *WSConn) {
		req, resp, err := c.Next(context.Background())
		if err != nil {
			return
		}
		body, _ := io.ReadAll(req.Body())
		resp.SetContentType("application/octet-stream")
		resp.Writer().Write([]byte(req.Parameter("root") + ":" + string(body)))
		c.Send(resp)
	})

	// Text messages are ignored.
	client.WriteMessage(websocket.TextMessage, []byte("ignored"))
	if err := client.WriteMessage(websocket.BinaryMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("message type = %d", mt)
	}
	if string(data) != "main:hello" {
		t.Errorf("data = %q", data)
	}
}

func TestWSConn_JSONIsText(t *testing.T) {
	client := newWSPair(t, func(c *WSConn) {
		_, resp, err := c.Next(context.Background())
		if err != nil {
			return
		}
		resp.SetContentType("application/json; charset=UTF-8")
		resp.Writer().Write([]byte(`{"critical":{}}`))
		c.Send(resp)
	})

	client.WriteMessage(websocket.BinaryMessage, []byte{0})
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, _, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Errorf("message type = %d, want text", mt)
	}
}

func TestWSConn_ErrorStatusCloses(t *testing.T) {
	client := newWSPair(t, func(c *WSConn) {
		_, resp, err := c.Next(context.Background())
		if err != nil {
			return
		}
		resp.SetStatus(http.StatusForbidden)
		c.Send(resp)
		if err := c.Send(resp); err != ErrConnectionClosed {
			t.Errorf("Send after close: err = %v", err)
		}
	})

	client.WriteMessage(websocket.BinaryMessage, []byte{0})
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
}
