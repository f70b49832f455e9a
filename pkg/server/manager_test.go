package server_test

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/terminal/pkg/component"
	"github.com/vango-go/terminal/pkg/protocol"
	"github.com/vango-go/terminal/pkg/server"
	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/transport"
	"github.com/vango-go/terminal/pkg/vtest"
)

type recordingObserver struct {
	mu       sync.Mutex
	uidl     []string
	uploads  []string
	critical []string
}

func (o *recordingObserver) ObserveUIDL(result string, _, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uidl = append(o.uidl, result)
}

func (o *recordingObserver) ObserveUpload(result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uploads = append(o.uploads, result)
}

func (o *recordingObserver) ObserveCritical(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.critical = append(o.critical, code)
}

func ids(r *protocol.Response) []string {
	out := make([]string, 0, len(r.Changes))
	for _, pc := range r.Changes {
		out = append(out, pc.PaintableID)
	}
	sort.Strings(out)
	return out
}

func TestManager_InitialSyncPaintsTree(t *testing.T) {
	fx := vtest.NewFixture(t)
	label := component.NewLabel("hello")
	field := component.NewTextField("Name")
	fx.Add(label)
	fx.Add(field)

	resp := fx.Sync(t)

	if resp.SyncID != 1 {
		t.Errorf("SyncID = %d, want 1", resp.SyncID)
	}
	if len(resp.Changes) != 3 {
		t.Fatalf("changes = %v, want root, label and field", ids(resp))
	}
	root, ok := vtest.Paint(resp, fx.ID(fx.Root))
	if !ok {
		t.Fatal("root not painted")
	}
	if want := []string{fx.ID(label), fx.ID(field)}; !reflect.DeepEqual(root.Children, want) {
		t.Errorf("root children = %v, want %v", root.Children, want)
	}
	lp, _ := vtest.Paint(resp, fx.ID(label))
	if lp.Tag != "label" || lp.Attributes["text"] != "hello" {
		t.Errorf("label paint = %+v", lp)
	}
}

func TestManager_RepaintOnlyChanged(t *testing.T) {
	fx := vtest.NewFixture(t)
	a := component.NewLabel("a")
	b := component.NewLabel("b")
	fx.Add(a)
	fx.Add(b)
	fx.Sync(t)

	if resp := fx.Sync(t); len(resp.Changes) != 0 {
		t.Errorf("unchanged tree repainted %v", ids(resp))
	}

	fx.App.Lock()
	b.Text = "changed"
	fx.App.Unlock()

	resp := fx.Sync(t)
	if got := ids(resp); !reflect.DeepEqual(got, []string{fx.ID(b)}) {
		t.Errorf("changes = %v, want only %s", got, fx.ID(b))
	}
	if resp.RepaintAll {
		t.Error("incremental response flagged as repaint all")
	}
}

func TestManager_AppliesChangesInOrder(t *testing.T) {
	fx := vtest.NewFixture(t)
	a := vtest.NewMockComponent(nil)
	b := vtest.NewMockComponent(nil)
	fx.Add(a)
	fx.Add(b)
	fx.Sync(t)

	var order []string
	a.OnChange = func(map[string]any) { order = append(order, "a") }
	b.OnChange = func(map[string]any) { order = append(order, "b") }

	fx.Send(t,
		fx.Change(a, "x", "1"),
		fx.Change(a, "y", "2"),
		fx.Change(a, "x", "3"),
		fx.Change(b, "z", true),
		fx.Change(a, "x", "4"),
	)

	if want := []string{"a", "b", "a"}; !reflect.DeepEqual(order, want) {
		t.Errorf("delivery order = %v, want %v", order, want)
	}
	wantA := []map[string]any{
		{"x": "3", "y": "2"},
		{"x": "4"},
	}
	if got := a.Changes(); !reflect.DeepEqual(got, wantA) {
		t.Errorf("a batches = %v, want %v", got, wantA)
	}
	if got := b.Changes(); !reflect.DeepEqual(got, []map[string]any{{"z": true}}) {
		t.Errorf("b batches = %v", got)
	}
}

func TestManager_SkipsUnknownAndDisabledOwners(t *testing.T) {
	fx := vtest.NewFixture(t)
	enabled := vtest.NewMockComponent(nil)
	disabled := vtest.NewMockComponent(nil)
	fx.Add(enabled)
	fx.Add(disabled)
	fx.Sync(t)

	fx.App.Lock()
	disabled.SetEnabled(false)
	fx.App.Unlock()

	fx.Send(t,
		protocol.VariableChange{PaintableID: "PID999", Name: "x", Value: "lost"},
		fx.Change(disabled, "x", "dropped"),
		fx.Change(enabled, "x", "kept"),
	)

	if got := disabled.Changes(); len(got) != 0 {
		t.Errorf("disabled owner received %v", got)
	}
	if got := enabled.Changes(); len(got) != 1 || got[0]["x"] != "kept" {
		t.Errorf("enabled owner received %v", got)
	}
}

func TestManager_RecoversOwnerPanic(t *testing.T) {
	fx := vtest.NewFixture(t)
	bad := vtest.NewMockComponent(nil)
	bad.PanicOnChange = "owner exploded"
	good := vtest.NewMockComponent(nil)
	fx.Add(bad)
	fx.Add(good)
	fx.Sync(t)

	fx.Send(t, fx.Change(bad, "x", "1"), fx.Change(good, "x", "2"))

	if got := good.Changes(); len(got) != 1 {
		t.Errorf("changes after a panicking owner = %v", got)
	}
}

func TestManager_PaintErrorSkipsComponent(t *testing.T) {
	fx := vtest.NewFixture(t)
	broken := vtest.NewMockComponent(map[string]any{"v": "1"})
	fx.Add(broken)
	first := fx.Sync(t)
	if _, ok := vtest.Paint(first, fx.ID(broken)); !ok {
		t.Fatal("component not painted initially")
	}

	fx.App.Lock()
	broken.State["v"] = "2"
	broken.PaintErr = errors.New("paint failed")
	fx.App.Unlock()

	if resp := fx.Sync(t); len(resp.Changes) != 0 {
		t.Errorf("failed paint produced changes %v", ids(resp))
	}

	fx.App.Lock()
	broken.PaintErr = nil
	fx.App.Unlock()

	resp := fx.Sync(t)
	pc, ok := vtest.Paint(resp, fx.ID(broken))
	if !ok || pc.Attributes["v"] != "2" {
		t.Errorf("recovered paint = %+v, %v", pc, ok)
	}
}

func TestManager_RemovedComponents(t *testing.T) {
	fx := vtest.NewFixture(t)
	keep := component.NewLabel("keep")
	gone := component.NewLabel("gone")
	child := component.NewLabel("child")
	panel := component.NewPanel("p", child)
	fx.Add(keep)
	fx.Add(gone)
	fx.Add(panel)
	fx.Sync(t)
	goneID, childID := fx.ID(gone), fx.ID(child)

	// Removal from the root notifies the manager directly.
	fx.Remove(gone)
	// Removal from a panel is found by the next repaint.
	fx.App.Lock()
	panel.Remove(child)
	fx.App.Unlock()

	resp := fx.Sync(t)
	sort.Strings(resp.Removed)
	want := []string{goneID, childID}
	sort.Strings(want)
	if !reflect.DeepEqual(resp.Removed, want) {
		t.Errorf("Removed = %v, want %v", resp.Removed, want)
	}

	if resp := fx.Sync(t); len(resp.Removed) != 0 {
		t.Errorf("Removed repeated: %v", resp.Removed)
	}

	// A re-added component gets a fresh ID.
	fx.Add(gone)
	if id := fx.ID(gone); id == goneID {
		t.Errorf("re-added component reused ID %s", id)
	}
}

func TestManager_SyncMismatchForcesFullRepaint(t *testing.T) {
	fx := vtest.NewFixture(t)
	fx.Add(component.NewLabel("a"))
	fx.Sync(t)

	b := fx.Burst()
	b.SyncID = 42
	resp, outcome, err := fx.Do(t, b)
	if err != nil || outcome != server.OutcomeCompleted {
		t.Fatalf("Do = %v, %v", outcome, err)
	}
	r := vtest.DecodeResponse(t, resp)
	if !r.RepaintAll {
		t.Error("mismatched sync ID did not force a full repaint")
	}
	if len(r.Changes) != 2 {
		t.Errorf("full repaint carried %v", ids(r))
	}
	if r.SyncID != 2 {
		t.Errorf("SyncID = %d, want 2", r.SyncID)
	}
}

func TestManager_RepaintAllRequest(t *testing.T) {
	fx := vtest.NewFixture(t)
	fx.Add(component.NewLabel("a"))
	fx.Sync(t)

	b := fx.Burst()
	b.SyncID = 1
	b.RepaintAll = true
	resp, _, err := fx.Do(t, b)
	if err != nil {
		t.Fatal(err)
	}
	if r := vtest.DecodeResponse(t, resp); !r.RepaintAll || len(r.Changes) != 2 {
		t.Errorf("RepaintAll = %v, changes = %v", r.RepaintAll, ids(r))
	}
}

func TestManager_InvalidUIDLKey(t *testing.T) {
	obs := &recordingObserver{}
	fx := vtest.NewFixture(t, server.WithObserver(obs))
	field := component.NewTextField("x")
	fx.Add(field)
	fx.Sync(t)

	b := fx.Burst(fx.Change(field, "text", "hacked"))
	b.SecurityKey = "wrong"
	resp, outcome, err := fx.Do(t, b)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if outcome != server.OutcomeCriticalFailure {
		t.Errorf("outcome = %v, want critical failure", outcome)
	}
	n, ok := fx.Callback.Last()
	if !ok || n.Caption != server.DefaultSystemMessages().InvalidSecurityKey.Caption {
		t.Errorf("notification = %+v, %v", n, ok)
	}
	if n.Details != "E103" {
		t.Errorf("details = %q, want E103", n.Details)
	}
	if field.Value != "" {
		t.Errorf("change applied despite wrong key: %q", field.Value)
	}
	if resp.ContentType != server.CriticalContentType {
		t.Errorf("content type = %q", resp.ContentType)
	}
	if got := obs.critical; len(got) != 1 || got[0] != "E103" {
		t.Errorf("observed critical codes = %v", got)
	}
}

func TestManager_ExpiredSession(t *testing.T) {
	fx := vtest.NewFixture(t)
	fx.Sync(t)
	fx.App.Close()

	_, outcome, err := fx.Do(t, fx.Burst())
	if err != nil || outcome != server.OutcomeCriticalFailure {
		t.Fatalf("Do = %v, %v; want critical failure", outcome, err)
	}
	n, _ := fx.Callback.Last()
	if n.Caption != server.DefaultSystemMessages().SessionExpired.Caption {
		t.Errorf("caption = %q", n.Caption)
	}
	if n.Details != "E101" {
		t.Errorf("details = %q, want E101", n.Details)
	}
}

func TestManager_CriticalWithoutCallback(t *testing.T) {
	fx := vtest.NewFixture(t)
	req := fx.Request(t, fx.Burst())
	req.Session = transport.NewMockSession("other")
	resp := transport.NewMockResponse()

	outcome, err := fx.Manager.HandleUIDLRequest(req, resp, nil, nil)
	if err != nil || outcome != server.OutcomeCriticalFailure {
		t.Fatalf("HandleUIDLRequest = %v, %v", outcome, err)
	}
	if !strings.Contains(resp.Body.String(), `"code":"E101"`) {
		t.Errorf("body = %s", resp.Body.String())
	}
	if resp.Headers.Get(server.CriticalHeader) != "1" {
		t.Error("critical header missing")
	}
}

func TestManager_MalformedBody(t *testing.T) {
	fx := vtest.NewFixture(t)

	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"truncated header", []byte{0x01, 0x00}},
		{"wrong frame type", protocol.NewFrame(protocol.FrameChanges, nil).Encode()},
		{"bad payload", protocol.NewFrame(protocol.FrameBurst, []byte{0xff, 0xff}).Encode()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := transport.NewMockRequest("main", tt.body).WithSession(fx.Session)
			resp := transport.NewMockResponse()
			_, err := fx.Manager.HandleUIDLRequest(req, resp, fx.Callback, nil)
			if !errors.Is(err, server.ErrProtocol) {
				t.Fatalf("err = %v, want ErrProtocol", err)
			}
			if resp.Body.Len() != 0 {
				t.Errorf("body written on protocol error: %q", resp.Body.Bytes())
			}
		})
	}
}

func TestManager_OversizedFrame(t *testing.T) {
	fx := vtest.NewFixture(t, server.WithMaxUIDLSize(8))
	field := component.NewTextField("x")
	fx.Add(field)

	_, _, err := fx.Do(t, fx.Burst(fx.Change(field, "text", strings.Repeat("x", 64))))
	if !errors.Is(err, protocol.ErrFrameTooLarge) || !errors.Is(err, server.ErrProtocol) {
		t.Errorf("err = %v, want protocol error wrapping ErrFrameTooLarge", err)
	}
}

func TestManager_EncodingError(t *testing.T) {
	fx := vtest.NewFixture(t)
	fx.Add(vtest.NewMockComponent(map[string]any{"bad": make(chan int)}))

	resp, _, err := fx.Do(t, fx.Burst())
	var enc *server.EncodingError
	if !errors.As(err, &enc) {
		t.Fatalf("err = %v, want *EncodingError", err)
	}
	if server.HTTPStatus(err) != 500 {
		t.Errorf("status = %d", server.HTTPStatus(err))
	}
	if resp.Body.Len() != 0 {
		t.Error("partial body written")
	}
}

func TestManager_WriteFailureDoesNotCommit(t *testing.T) {
	fx := vtest.NewFixture(t)
	label := component.NewLabel("a")
	fx.Add(label)

	req := fx.Request(t, fx.Burst())
	resp := transport.NewMockResponse()
	resp.WriteErr = io.ErrClosedPipe
	if _, err := fx.Manager.HandleUIDLRequest(req, resp, fx.Callback, nil); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("err = %v, want ErrClosedPipe", err)
	}

	// The client never saw the first response: same sync ID, full paint.
	r := fx.Sync(t)
	if r.SyncID != 1 {
		t.Errorf("SyncID = %d, want 1", r.SyncID)
	}
	if _, ok := vtest.Paint(r, fx.ID(label)); !ok {
		t.Error("label missing after failed write")
	}
}

func TestManager_ObservesOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	fx := vtest.NewFixture(t, server.WithObserver(obs))
	fx.Sync(t)

	req := transport.NewMockRequest("main", []byte("junk")).WithSession(fx.Session)
	fx.Manager.HandleUIDLRequest(req, transport.NewMockResponse(), fx.Callback, nil)

	if want := []string{"completed", "E301"}; !reflect.DeepEqual(obs.uidl, want) {
		t.Errorf("observed = %v, want %v", obs.uidl, want)
	}
}

func uploadURL(t *testing.T, r *protocol.Response, id string) string {
	t.Helper()
	pc, ok := vtest.Paint(r, id)
	if !ok {
		t.Fatalf("%s not painted", id)
	}
	url, _ := pc.Variables["file"].(string)
	if !strings.HasPrefix(url, streamvar.URLScheme) {
		t.Fatalf("file variable = %v", pc.Variables["file"])
	}
	return url
}

func TestManager_UploadEndToEnd(t *testing.T) {
	obs := &recordingObserver{}
	fx := vtest.NewFixture(t, server.WithObserver(obs))
	rcv := vtest.NewRecordingReceiver()
	up := component.NewUpload("Attach", rcv)
	fx.Add(up)
	url := uploadURL(t, fx.Sync(t), fx.ID(up))

	resp, err := fx.Upload(t, url, "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := string(rcv.Bytes()); got != "payload" {
		t.Errorf("received %q", got)
	}
	if want := []string{vtest.EventStarted, vtest.EventFinished}; !reflect.DeepEqual(rcv.Events(), want) {
		t.Errorf("events = %v, want %v", rcv.Events(), want)
	}
	if !strings.Contains(resp.Body.String(), "download handled") {
		t.Errorf("ack = %q", resp.Body.String())
	}
	if want := []string{"ok"}; !reflect.DeepEqual(obs.uploads, want) {
		t.Errorf("observed uploads = %v", obs.uploads)
	}
}

func TestManager_UploadWrongKey(t *testing.T) {
	fx := vtest.NewFixture(t)
	rcv := vtest.NewRecordingReceiver()
	up := component.NewUpload("Attach", rcv)
	fx.Add(up)
	url := uploadURL(t, fx.Sync(t), fx.ID(up))

	tampered := url[:strings.LastIndex(url, "/")+1] + "00000000-0000-0000-0000-000000000000"
	body := &trackingReader{r: strings.NewReader("payload")}
	_, err := fx.Upload(t, tampered, "text/plain", body)

	if !errors.Is(err, server.ErrInvalidSecurityKey) {
		t.Fatalf("err = %v, want ErrInvalidSecurityKey", err)
	}
	if server.HTTPStatus(err) != 403 {
		t.Errorf("status = %d, want 403", server.HTTPStatus(err))
	}
	if body.read {
		t.Error("payload read before the key was checked")
	}
	if len(rcv.Events()) != 0 {
		t.Errorf("receiver notified: %v", rcv.Events())
	}
}

func TestManager_UploadAfterUnregister(t *testing.T) {
	fx := vtest.NewFixture(t)
	rcv := vtest.NewRecordingReceiver()
	up := component.NewUpload("Attach", rcv)
	fx.Add(up)
	url := uploadURL(t, fx.Sync(t), fx.ID(up))

	fx.Remove(up)

	_, err := fx.Upload(t, url, "text/plain", strings.NewReader("late"))
	if !errors.Is(err, server.ErrNotFound) || !errors.Is(err, streamvar.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if fx.Manager.Registry().Len() != 0 {
		t.Errorf("registry still holds %d registrations", fx.Manager.Registry().Len())
	}
}

func TestManager_UploadAfterPanelRemove(t *testing.T) {
	fx := vtest.NewFixture(t)
	rcv := vtest.NewRecordingReceiver()
	up := component.NewUpload("Attach", rcv)
	panel := component.NewPanel("Files", up)
	fx.Add(panel)
	url := uploadURL(t, fx.Sync(t), fx.ID(up))

	fx.App.Lock()
	panel.Remove(up)
	fx.App.Unlock()

	_, err := fx.Upload(t, url, "text/plain", strings.NewReader("late"))
	if !errors.Is(err, server.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(rcv.Events()) != 0 {
		t.Errorf("receiver notified: %v", rcv.Events())
	}
	if fx.Manager.Registry().Len() != 0 {
		t.Errorf("registry still holds %d registrations", fx.Manager.Registry().Len())
	}
}

func TestManager_UploadMultipartEndToEnd(t *testing.T) {
	obs := &recordingObserver{}
	fx := vtest.NewFixture(t, server.WithObserver(obs))
	rcv := vtest.NewRecordingReceiver()
	up := component.NewUpload("Attach", rcv)
	fx.Add(up)
	url := uploadURL(t, fx.Sync(t), fx.ID(up))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("comment", "ignored"); err != nil {
		t.Fatal(err)
	}
	part, err := w.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(part, "multipart payload"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	resp, err := fx.Upload(t, url, w.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := string(rcv.Bytes()); got != "multipart payload" {
		t.Errorf("received %q", got)
	}
	start := rcv.Started()
	if start.FileName != "notes.txt" || start.MimeType != "application/octet-stream" {
		t.Errorf("start event = %+v", start)
	}
	if want := []string{vtest.EventStarted, vtest.EventFinished}; !reflect.DeepEqual(rcv.Events(), want) {
		t.Errorf("events = %v, want %v", rcv.Events(), want)
	}
	if !strings.Contains(resp.Body.String(), "download handled") {
		t.Errorf("ack = %q", resp.Body.String())
	}
	if want := []string{"ok"}; !reflect.DeepEqual(obs.uploads, want) {
		t.Errorf("observed uploads = %v", obs.uploads)
	}
}

func TestManager_UploadToDisabledOwner(t *testing.T) {
	fx := vtest.NewFixture(t)
	rcv := vtest.NewRecordingReceiver()
	owner := vtest.NewMockComponent(nil)
	owner.Uploads = map[string]streamvar.StreamVariable{"file": rcv}
	fx.Add(owner)
	url := uploadURL(t, fx.Sync(t), fx.ID(owner))

	fx.App.Lock()
	owner.SetEnabled(false)
	fx.App.Unlock()

	if _, err := fx.Upload(t, url, "text/plain", strings.NewReader("x")); !errors.Is(err, server.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestManager_UploadMalformedPath(t *testing.T) {
	fx := vtest.NewFixture(t)
	_, err := fx.Upload(t, "APP/UPLOAD/PID1", "text/plain", strings.NewReader("x"))
	if !errors.Is(err, server.ErrProtocol) {
		t.Errorf("err = %v, want ErrProtocol", err)
	}
	if server.HTTPStatus(err) != 400 {
		t.Errorf("status = %d, want 400", server.HTTPStatus(err))
	}
}

func TestManager_DisposedReceiverIsCleared(t *testing.T) {
	fx := vtest.NewFixture(t)
	rcv := vtest.NewRecordingReceiver()
	rcv.Dispose = true
	up := component.NewUpload("Attach", rcv)
	fx.Add(up)
	url := uploadURL(t, fx.Sync(t), fx.ID(up))

	if _, err := fx.Upload(t, url, "text/plain", bytes.NewReader([]byte("once"))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := fx.Upload(t, url, "text/plain", bytes.NewReader([]byte("twice"))); !errors.Is(err, server.ErrNotFound) {
		t.Errorf("second upload: err = %v, want ErrNotFound", err)
	}
}

func TestManager_CleanStreamVariable(t *testing.T) {
	fx := vtest.NewFixture(t)
	up := component.NewUpload("Attach", vtest.NewRecordingReceiver())
	fx.Add(up)
	url := uploadURL(t, fx.Sync(t), fx.ID(up))

	fx.App.Lock()
	fx.Manager.CleanStreamVariable(up, "file")
	fx.App.Unlock()

	if _, err := fx.Upload(t, url, "text/plain", strings.NewReader("x")); !errors.Is(err, server.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestManager_CloseResetsRegistry(t *testing.T) {
	fx := vtest.NewFixture(t)
	fx.Add(component.NewUpload("Attach", vtest.NewRecordingReceiver()))
	fx.Sync(t)
	if fx.Manager.Registry().Len() == 0 {
		t.Fatal("upload target not registered")
	}

	fx.App.Close()

	if fx.Manager.Registry().Len() != 0 {
		t.Errorf("registry holds %d registrations after close", fx.Manager.Registry().Len())
	}
}

type trackingReader struct {
	r    io.Reader
	read bool
}

func (t *trackingReader) Read(p []byte) (int, error) {
	t.read = true
	return t.r.Read(p)
}
