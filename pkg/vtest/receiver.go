package vtest

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/vango-go/terminal/pkg/streamvar"
)

// Receiver event names recorded by RecordingReceiver.
const (
	EventStarted  = "started"
	EventProgress = "progress"
	EventFinished = "finished"
	EventFailed   = "failed"
)

// RecordingReceiver is a stream variable that records its notifications
// and keeps the uploaded bytes in memory.
type RecordingReceiver struct {
	// Listen enables progress events.
	Listen bool

	// Dispose asks for the registration to be cleared after the upload.
	Dispose bool

	// InterruptAfter interrupts the upload once that many bytes were
	// received. Zero disables it.
	InterruptAfter int64

	// OutputErr is returned by OutputStream.
	OutputErr error

	// WriteErr is returned by every write to the output stream.
	WriteErr error

	// NilOutput makes OutputStream return a nil writer.
	NilOutput bool

	mu       sync.Mutex
	events   []string
	buf      bytes.Buffer
	start    streamvar.StreamingEvent
	end      streamvar.StreamingEvent
	progress []streamvar.StreamingProgressEvent
	failErr  error
	closed   bool
	written  int64
}

var _ streamvar.StreamVariable = (*RecordingReceiver)(nil)

// NewRecordingReceiver creates a receiver.
func NewRecordingReceiver() *RecordingReceiver {
	return &RecordingReceiver{}
}

func (r *RecordingReceiver) record(event string) {
	r.events = append(r.events, event)
}

func (r *RecordingReceiver) StreamingStarted(event *streamvar.StreamingStartEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(EventStarted)
	r.start = event.StreamingEvent
	if r.Dispose {
		event.DisposeStreamVariable()
	}
}

func (r *RecordingReceiver) OutputStream() (io.WriteCloser, error) {
	if r.OutputErr != nil {
		return nil, r.OutputErr
	}
	if r.NilOutput {
		return nil, nil
	}
	return &recordingWriter{r: r}, nil
}

func (r *RecordingReceiver) ListenProgress() bool { return r.Listen }

func (r *RecordingReceiver) OnProgress(event streamvar.StreamingProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(EventProgress)
	r.progress = append(r.progress, event)
}

func (r *RecordingReceiver) StreamingFinished(event streamvar.StreamingEndEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(EventFinished)
	r.end = event.StreamingEvent
}

func (r *RecordingReceiver) StreamingFailed(event streamvar.StreamingErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(EventFailed)
	r.end = event.StreamingEvent
	r.failErr = event.Err
}

func (r *RecordingReceiver) IsInterrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.InterruptAfter > 0 && r.written >= r.InterruptAfter
}

// Events returns the recorded notifications in order, with repeated
// progress events collapsed into one.
func (r *RecordingReceiver) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, e := range r.events {
		if e == EventProgress && len(out) > 0 && out[len(out)-1] == EventProgress {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Bytes returns the bytes written so far.
func (r *RecordingReceiver) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

// Started returns the metadata passed to StreamingStarted.
func (r *RecordingReceiver) Started() streamvar.StreamingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.start
}

// Ended returns the metadata of the terminal notification.
func (r *RecordingReceiver) Ended() streamvar.StreamingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.end
}

// Progress returns the recorded progress events.
func (r *RecordingReceiver) Progress() []streamvar.StreamingProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]streamvar.StreamingProgressEvent(nil), r.progress...)
}

// Err returns the error passed to StreamingFailed.
func (r *RecordingReceiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failErr
}

// Closed reports whether the output stream was closed.
func (r *RecordingReceiver) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var errWriteAfterClose = errors.New("vtest: write after close")

type recordingWriter struct {
	r *RecordingReceiver
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	if w.r.WriteErr != nil {
		return 0, w.r.WriteErr
	}
	if w.r.closed {
		return 0, errWriteAfterClose
	}
	w.r.written += int64(len(p))
	return w.r.buf.Write(p)
}

func (w *recordingWriter) Close() error {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	w.r.closed = true
	return nil
}
