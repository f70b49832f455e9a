package streamvar

import (
	"io"
)

// StreamVariable receives the bytes of an upload.
//
// The dispatcher calls the methods in this order:
//
//  1. StreamingStarted
//  2. OutputStream
//  3. OnProgress (repeatedly, only when ListenProgress returns true)
//  4. exactly one of StreamingFinished or StreamingFailed
//
// IsInterrupted is polled between chunks; returning true aborts the upload
// with StreamingFailed.
//
// Implementations are used as map keys and must therefore be comparable.
// Pointer receivers are the usual choice.
type StreamVariable interface {
	// OutputStream returns the sink for the upload payload. Returning a nil
	// writer without an error interrupts the upload.
	OutputStream() (io.WriteCloser, error)

	// ListenProgress reports whether OnProgress should be called.
	ListenProgress() bool

	// OnProgress is called while bytes are being received.
	OnProgress(event StreamingProgressEvent)

	// StreamingStarted is called before OutputStream.
	StreamingStarted(event *StreamingStartEvent)

	// StreamingFinished is called after the payload was fully written and
	// the output stream closed.
	StreamingFinished(event StreamingEndEvent)

	// StreamingFailed is called when the upload could not be completed.
	// Partial state should be discarded.
	StreamingFailed(event StreamingErrorEvent)

	// IsInterrupted reports whether the receiver wants to abort the upload.
	IsInterrupted() bool
}

// StreamingEvent carries the metadata common to all streaming events.
type StreamingEvent struct {
	// FileName is the client-provided file name.
	FileName string

	// MimeType is the client-provided content type of the file.
	MimeType string

	// ContentLength is the expected number of bytes, or -1 if unknown.
	ContentLength int64

	// BytesReceived is the number of bytes received so far.
	BytesReceived int64
}

// StreamingStartEvent is passed to StreamingStarted.
type StreamingStartEvent struct {
	StreamingEvent

	dispose bool
}

// DisposeStreamVariable asks the dispatcher to clear the registration of the
// stream variable once the upload has terminated.
func (e *StreamingStartEvent) DisposeStreamVariable() {
	e.dispose = true
}

// Disposed reports whether DisposeStreamVariable was called.
func (e *StreamingStartEvent) Disposed() bool {
	return e.dispose
}

// StreamingProgressEvent is passed to OnProgress.
type StreamingProgressEvent struct {
	StreamingEvent
}

// StreamingEndEvent is passed to StreamingFinished.
type StreamingEndEvent struct {
	StreamingEvent
}

// StreamingErrorEvent is passed to StreamingFailed.
type StreamingErrorEvent struct {
	StreamingEvent

	// Err describes why the upload failed.
	Err error
}
