package upload_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/transport"
	"github.com/vango-go/terminal/pkg/upload"
)

func TestStoreReceiver_SavesUpload(t *testing.T) {
	ctx := context.Background()
	store, err := upload.NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	rcv := upload.NewStoreReceiver(ctx, store)
	var savedID string
	var saved streamvar.StreamingEndEvent
	rcv.OnSaved = func(id string, ev streamvar.StreamingEndEvent) {
		savedID = id
		saved = ev
	}

	targets := newFakeTargets()
	path := targets.register(t, "PID1", "file", rcv)
	req := transport.NewMockRequest(path, []byte("stored payload")).WithContentType("text/plain")
	req.Params.Set("filename", "notes.txt")

	if err := newDispatcher(nil).Dispatch(req, transport.NewMockResponse(), targets); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if savedID == "" || rcv.LastID() != savedID {
		t.Fatalf("OnSaved id = %q, LastID = %q", savedID, rcv.LastID())
	}
	if saved.FileName != "notes.txt" || saved.BytesReceived != 14 {
		t.Errorf("end event = %+v", saved.StreamingEvent)
	}

	file, err := store.Claim(ctx, savedID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	defer file.Close()
	data, _ := io.ReadAll(file.Reader)
	if string(data) != "stored payload" || file.Filename != "notes.txt" || file.ContentType != "text/plain" {
		t.Errorf("stored file = %+v content=%q", file, data)
	}
}

func TestStoreReceiver_StoreLimitFailsUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := upload.NewDiskStore(dir, 4)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	rcv := upload.NewStoreReceiver(context.Background(), store)
	var failed error
	rcv.OnFailed = func(ev streamvar.StreamingErrorEvent) { failed = ev.Err }
	rcv.OnSaved = func(string, streamvar.StreamingEndEvent) { t.Error("OnSaved called") }

	targets := newFakeTargets()
	path := targets.register(t, "PID1", "file", rcv)
	err = newDispatcher(nil).Dispatch(transport.NewMockRequest(path, []byte("0123456789")), transport.NewMockResponse(), targets)

	if !errors.Is(err, upload.ErrTooLarge) {
		t.Fatalf("Dispatch() error = %v, want ErrTooLarge", err)
	}
	if !errors.Is(failed, upload.ErrTooLarge) {
		t.Errorf("OnFailed error = %v, want ErrTooLarge", failed)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("%d files left after failed upload", len(entries))
	}
}

func TestStoreReceiver_InterruptDiscardsPartialFile(t *testing.T) {
	dir := t.TempDir()
	store, err := upload.NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	rcv := upload.NewStoreReceiver(context.Background(), store)
	rcv.OnProgressFunc = func(streamvar.StreamingProgressEvent) { rcv.Interrupt() }

	targets := newFakeTargets()
	path := targets.register(t, "PID1", "file", rcv)
	cfg := &upload.Config{BufferSize: 2}
	req := transport.NewMockRequest(path, nil).WithBody(strings.NewReader("abcdefgh"))

	if err := newDispatcher(cfg).Dispatch(req, transport.NewMockResponse(), targets); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if rcv.LastID() != "" {
		t.Errorf("interrupted upload saved as %q", rcv.LastID())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("%d files left after interrupted upload", len(entries))
	}
}

func TestStoreReceiver_Dispose(t *testing.T) {
	store, err := upload.NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	rcv := upload.NewStoreReceiver(context.Background(), store)
	rcv.Dispose = true

	targets := newFakeTargets()
	path := targets.register(t, "PID1", "file", rcv)
	if err := newDispatcher(nil).Dispatch(transport.NewMockRequest(path, []byte("x")), transport.NewMockResponse(), targets); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if targets.reg.Len() != 0 {
		t.Errorf("registration survived disposal")
	}
}
