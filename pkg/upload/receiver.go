package upload

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vango-go/terminal/pkg/streamvar"
)

// StoreReceiver is a stream variable that saves uploads into a Store.
//
// Each upload is piped into Store.Save while it is being received. Closing
// the output stream waits for the save to complete and reports its error.
type StoreReceiver struct {
	ctx   context.Context
	store Store

	// OnSaved is called with the ID of the stored file after a successful
	// upload.
	OnSaved func(id string, event streamvar.StreamingEndEvent)

	// OnFailed is called when an upload fails.
	OnFailed func(event streamvar.StreamingErrorEvent)

	// OnProgressFunc enables progress events when set.
	OnProgressFunc func(event streamvar.StreamingProgressEvent)

	// Dispose clears the upload target after one upload.
	Dispose bool

	interrupted atomic.Bool

	mu      sync.Mutex
	meta    streamvar.StreamingEvent
	pending *pipeWriter
	lastID  string
}

var _ streamvar.StreamVariable = (*StoreReceiver)(nil)

// NewStoreReceiver creates a receiver saving into store. ctx bounds the
// Save calls.
func NewStoreReceiver(ctx context.Context, store Store) *StoreReceiver {
	return &StoreReceiver{ctx: ctx, store: store}
}

// Interrupt aborts the upload in progress at the next chunk boundary.
func (r *StoreReceiver) Interrupt() { r.interrupted.Store(true) }

// LastID returns the ID of the most recently saved file.
func (r *StoreReceiver) LastID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastID
}

func (r *StoreReceiver) StreamingStarted(event *streamvar.StreamingStartEvent) {
	r.interrupted.Store(false)
	r.mu.Lock()
	r.meta = event.StreamingEvent
	r.mu.Unlock()
	if r.Dispose {
		event.DisposeStreamVariable()
	}
}

// OutputStream starts a Save in the background and returns the write end
// of the pipe feeding it.
func (r *StoreReceiver) OutputStream() (io.WriteCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return nil, errors.New("upload: receiver is busy")
	}

	pr, pw := io.Pipe()
	w := &pipeWriter{PipeWriter: pw, done: make(chan struct{})}
	meta := r.meta
	go func() {
		defer close(w.done)
		w.id, w.err = r.store.Save(r.ctx, meta.FileName, meta.MimeType, pr)
		// Unblock the writer if Save returned before draining the pipe.
		pr.CloseWithError(errSaveReturned(w.err))
	}()
	r.pending = w
	return w, nil
}

func (r *StoreReceiver) ListenProgress() bool { return r.OnProgressFunc != nil }

func (r *StoreReceiver) OnProgress(event streamvar.StreamingProgressEvent) {
	if r.OnProgressFunc != nil {
		r.OnProgressFunc(event)
	}
}

func (r *StoreReceiver) StreamingFinished(event streamvar.StreamingEndEvent) {
	w := r.take()
	if w == nil {
		return
	}
	<-w.done
	r.mu.Lock()
	r.lastID = w.id
	r.mu.Unlock()
	if r.OnSaved != nil {
		r.OnSaved(w.id, event)
	}
}

func (r *StoreReceiver) StreamingFailed(event streamvar.StreamingErrorEvent) {
	if w := r.take(); w != nil {
		w.CloseWithError(event.Err)
		<-w.done
	}
	if r.OnFailed != nil {
		r.OnFailed(event)
	}
}

func (r *StoreReceiver) IsInterrupted() bool { return r.interrupted.Load() }

func (r *StoreReceiver) take() *pipeWriter {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.pending
	r.pending = nil
	return w
}

// pipeWriter closes the pipe and waits for the Save result.
type pipeWriter struct {
	*io.PipeWriter
	done chan struct{}
	id   string
	err  error
}

func (w *pipeWriter) Close() error {
	w.PipeWriter.Close()
	<-w.done
	return w.err
}

func errSaveReturned(err error) error {
	if err != nil {
		return err
	}
	return io.ErrClosedPipe
}
