package vtest

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/protocol"
	"github.com/vango-go/terminal/pkg/server"
	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/transport"
)

// Fixture is an application with a main root and a communication manager,
// bound to an in-memory session.
type Fixture struct {
	App      *component.Application
	Root     *component.Root
	Manager  *server.CommunicationManager
	Session  *transport.MockSession
	Callback *transport.MockCallback

	syncID uint64
}

// NewFixture creates a fixture. The application is closed when the test
// ends.
func NewFixture(t testing.TB, opts ...server.ManagerOption) *Fixture {
	t.Helper()

	app := component.NewApplication("test")
	root := component.NewRoot(server.DefaultRootName)
	app.Lock()
	err := app.AddRoot(root)
	app.Unlock()
	if err != nil {
		t.Fatalf("AddRoot: %v", err)
	}

	m := server.NewCommunicationManager(app, opts...)
	sess := transport.NewMockSession("vtest")
	sess.Set(server.AppAttribute, &server.Binding{App: app, Manager: m})
	t.Cleanup(app.Close)

	return &Fixture{
		App:      app,
		Root:     root,
		Manager:  m,
		Session:  sess,
		Callback: &transport.MockCallback{},
	}
}

// Add appends c to the main root.
func (f *Fixture) Add(c component.Component) {
	f.App.Lock()
	defer f.App.Unlock()
	f.Root.Add(c)
}

// Remove removes c from the main root.
func (f *Fixture) Remove(c component.Component) {
	f.App.Lock()
	defer f.App.Unlock()
	f.Root.Remove(c)
}

// ID returns the paintable ID of c.
func (f *Fixture) ID(c component.Component) string {
	f.App.Lock()
	defer f.App.Unlock()
	return f.Manager.PaintableID(c)
}

// Change builds a variable change for c.
func (f *Fixture) Change(c component.Component, name string, value any) protocol.VariableChange {
	return protocol.VariableChange{PaintableID: f.ID(c), Name: name, Value: value}
}

// Burst builds a burst carrying the session key and the last sync ID
// received by the fixture.
func (f *Fixture) Burst(changes ...protocol.VariableChange) *protocol.Burst {
	return &protocol.Burst{
		SyncID:      f.syncID,
		SecurityKey: f.Manager.UIDLKey(),
		Changes:     changes,
	}
}

// Request encodes b as the body of a UIDL request for the main root.
func (f *Fixture) Request(t testing.TB, b *protocol.Burst) *transport.MockRequest {
	t.Helper()
	payload, err := protocol.EncodeBurst(b)
	if err != nil {
		t.Fatalf("EncodeBurst: %v", err)
	}
	body := protocol.NewFrame(protocol.FrameBurst, payload).Encode()
	return transport.NewMockRequest(server.DefaultRootName, body).WithSession(f.Session)
}

// Do sends b and returns the raw response.
func (f *Fixture) Do(t testing.TB, b *protocol.Burst) (*transport.MockResponse, server.Outcome, error) {
	t.Helper()
	resp := transport.NewMockResponse()
	outcome, err := f.Manager.HandleUIDLRequest(f.Request(t, b), resp, f.Callback, nil)
	return resp, outcome, err
}

// Send applies changes and returns the decoded response. The test fails
// unless a UIDL response was written.
func (f *Fixture) Send(t testing.TB, changes ...protocol.VariableChange) *protocol.Response {
	t.Helper()
	resp, outcome, err := f.Do(t, f.Burst(changes...))
	if err != nil {
		t.Fatalf("HandleUIDLRequest: %v", err)
	}
	if outcome != server.OutcomeCompleted {
		t.Fatalf("outcome = %v, want %v", outcome, server.OutcomeCompleted)
	}
	r := DecodeResponse(t, resp)
	f.syncID = r.SyncID
	return r
}

// Sync sends an empty burst.
func (f *Fixture) Sync(t testing.TB) *protocol.Response {
	t.Helper()
	return f.Send(t)
}

// Upload posts body to an upload URL painted by the manager.
func (f *Fixture) Upload(t testing.TB, url, contentType string, body io.Reader) (*transport.MockResponse, error) {
	t.Helper()
	path := strings.TrimPrefix(url, streamvar.URLScheme)
	req := transport.NewMockRequest(path, nil).WithSession(f.Session).WithContentType(contentType).WithBody(body)
	resp := transport.NewMockResponse()
	return resp, f.Manager.HandleFileUpload(req, resp)
}

// DecodeResponse decodes the UIDL frame written to resp.
func DecodeResponse(t testing.TB, resp *transport.MockResponse) *protocol.Response {
	t.Helper()
	frame, err := protocol.ReadFrame(bytes.NewReader(resp.Body.Bytes()), 0)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Type != protocol.FrameChanges {
		t.Fatalf("frame type = %v, want %v", frame.Type, protocol.FrameChanges)
	}
	r, err := protocol.DecodeResponse(frame.Payload)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if r.RepaintAll != frame.Flags.Has(protocol.FlagRepaintAll) {
		t.Fatalf("RepaintAll = %v but frame flags = %#x", r.RepaintAll, frame.Flags)
	}
	return r
}

// Paint returns the paint of id in r.
func Paint(r *protocol.Response, id string) (protocol.PaintChange, bool) {
	for _, pc := range r.Changes {
		if pc.PaintableID == id {
			return pc, true
		}
	}
	return protocol.PaintChange{}, false
}
