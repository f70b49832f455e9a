package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"strings"
	"time"

	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/transport"
)

// ackBody is written after an upload has been handled.
const ackBody = "<html><body>download handled</body></html>"

// DefaultFileName is used for raw posts without a filename parameter.
const DefaultFileName = "unknown"

// Targets resolves upload targets on behalf of the dispatcher. It is
// implemented by the communication manager.
type Targets interface {
	// ResolveUploadTarget returns the receiver registered for the target.
	// It fails with streamvar.ErrNotFound or
	// streamvar.ErrInvalidSecurityKey.
	ResolveUploadTarget(ctx context.Context, t Target) (streamvar.StreamVariable, error)

	// ClearUploadTarget removes the registration of a disposed receiver.
	ClearUploadTarget(t Target)

	// Sync runs fn while holding the application lock. Receiver
	// notifications are delivered through Sync.
	Sync(fn func())
}

// Dispatcher streams upload requests into their receivers.
type Dispatcher struct {
	config *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher. A nil config uses DefaultConfig and
// a nil logger uses slog.Default.
func NewDispatcher(config *Config, logger *slog.Logger) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config: config.withDefaults(),
		logger: logger.With("component", "upload"),
		now:    time.Now,
	}
}

// Prefix returns the upload URL prefix.
func (d *Dispatcher) Prefix() string {
	return d.config.Prefix
}

// Dispatch handles one upload request.
//
// Path and key errors are returned before the body is read. Once
// streaming has started the receiver gets exactly one terminal
// notification; failures other than an interruption by the receiver are
// also returned.
// On success, or when the receiver interrupted the upload, a small
// acknowledgement body is written.
func (d *Dispatcher) Dispatch(req transport.Request, resp transport.Response, targets Targets) error {
	target, err := ParsePath(req.PathInfo(), d.config.Prefix)
	if err != nil {
		return err
	}

	sv, err := targets.ResolveUploadTarget(req.Context(), target)
	if err != nil {
		return err
	}

	log := d.logger.With("request_id", req.RequestID(), "paintable", target.PaintableID, "variable", target.Name)

	contentType := req.ContentType()
	if boundary := multipartBoundary(contentType); boundary != "" {
		err = d.dispatchMultipart(req, boundary, target, sv, targets)
	} else {
		meta := streamvar.StreamingEvent{
			FileName:      req.Parameter("filename"),
			MimeType:      contentType,
			ContentLength: req.ContentLength(),
		}
		if meta.FileName == "" {
			meta.FileName = DefaultFileName
		}
		err = d.stream(req.Context(), req.Body(), meta, target, sv, targets)
	}

	switch {
	case err == nil, errors.Is(err, ErrInterrupted):
		if err != nil {
			log.Debug("upload interrupted by receiver")
		}
	case errors.Is(err, ErrClientDisconnected):
		log.Warn("upload aborted by client", "error", err)
		return err
	default:
		log.Warn("upload failed", "error", err)
		return err
	}

	resp.SetContentType("text/html; charset=UTF-8")
	if _, err := io.WriteString(resp.Writer(), ackBody); err != nil {
		log.Debug("failed to write upload acknowledgement", "error", err)
	}
	return nil
}

// dispatchMultipart streams the first file part of a multipart body.
// Other form fields are skipped.
func (d *Dispatcher) dispatchMultipart(req transport.Request, boundary string, target Target, sv streamvar.StreamVariable, targets Targets) error {
	mr := multipart.NewReader(req.Body(), boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return ErrNoFilePart
		}
		if err != nil {
			if req.Context().Err() != nil {
				return fmt.Errorf("%w: %v", ErrClientDisconnected, err)
			}
			return fmt.Errorf("%w: %v", ErrNoFilePart, err)
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}

		meta := streamvar.StreamingEvent{
			FileName:      part.FileName(),
			MimeType:      part.Header.Get("Content-Type"),
			ContentLength: -1,
		}
		err = d.stream(req.Context(), part, meta, target, sv, targets)
		part.Close()
		return err
	}
}

// stream copies in into the receiver and delivers the receiver
// notifications.
func (d *Dispatcher) stream(ctx context.Context, in io.Reader, meta streamvar.StreamingEvent, target Target, sv streamvar.StreamVariable, targets Targets) (err error) {
	start := &streamvar.StreamingStartEvent{StreamingEvent: meta}
	var out io.WriteCloser

	defer func() {
		if err != nil {
			abort(out, err)
			failed := streamvar.StreamingErrorEvent{StreamingEvent: meta, Err: err}
			targets.Sync(func() { sv.StreamingFailed(failed) })
		}
		if start.Disposed() {
			targets.ClearUploadTarget(target)
		}
	}()

	var (
		openErr error
		listen  bool
	)
	targets.Sync(func() {
		sv.StreamingStarted(start)
		out, openErr = sv.OutputStream()
		listen = sv.ListenProgress()
	})
	if openErr != nil {
		return &ReceiverFault{Err: openErr}
	}
	if out == nil {
		return ErrInterrupted
	}

	buf := make([]byte, d.config.BufferSize)
	lastProgress := d.now()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrClientDisconnected, ctxErr)
		}
		if interrupted(sv, targets) {
			return ErrInterrupted
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if limit := d.config.MaxFileSize; limit > 0 && meta.BytesReceived+int64(n) > limit {
				return ErrTooLarge
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return &ReceiverFault{Err: werr}
			}
			meta.BytesReceived += int64(n)

			if listen {
				if now := d.now(); now.Sub(lastProgress) >= d.config.ProgressInterval {
					lastProgress = now
					progress := streamvar.StreamingProgressEvent{StreamingEvent: meta}
					targets.Sync(func() { sv.OnProgress(progress) })
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("%w: %v", ErrClientDisconnected, readErr)
		}
	}

	if meta.ContentLength >= 0 && meta.BytesReceived < meta.ContentLength {
		return fmt.Errorf("%w: received %d of %d bytes", ErrClientDisconnected, meta.BytesReceived, meta.ContentLength)
	}

	closeErr := out.Close()
	out = nil
	if closeErr != nil {
		return &ReceiverFault{Err: closeErr}
	}

	end := streamvar.StreamingEndEvent{StreamingEvent: meta}
	targets.Sync(func() { sv.StreamingFinished(end) })
	return nil
}

// interrupted polls the receiver under the application lock.
func interrupted(sv streamvar.StreamVariable, targets Targets) (stop bool) {
	targets.Sync(func() { stop = sv.IsInterrupted() })
	return stop
}

// abort closes out after a failed upload. Writers that support it are
// closed with err so they can tell a failure from a complete payload.
func abort(out io.WriteCloser, err error) {
	if out == nil {
		return
	}
	if cw, ok := out.(interface{ CloseWithError(error) error }); ok {
		cw.CloseWithError(err)
		return
	}
	out.Close()
}

// multipartBoundary returns the boundary parameter of a multipart content
// type, or "" for any other content type.
func multipartBoundary(contentType string) string {
	if !strings.Contains(contentType, "boundary") {
		return ""
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return ""
	}
	return params["boundary"]
}
