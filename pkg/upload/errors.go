package upload

import "errors"

// Upload errors.
var (
	// ErrNotFound is returned when a stored file doesn't exist.
	ErrNotFound = errors.New("upload: file not found")

	// ErrTooLarge is returned when a file exceeds the size limit.
	ErrTooLarge = errors.New("upload: file too large")

	// ErrInterrupted is reported when the receiver interrupts an upload.
	ErrInterrupted = errors.New("upload: interrupted by receiver")

	// ErrClientDisconnected is reported when the request body ends early
	// or the request context is cancelled.
	ErrClientDisconnected = errors.New("upload: client disconnected")

	// ErrNoFilePart is returned when a multipart upload carries no file.
	ErrNoFilePart = errors.New("upload: multipart request without file part")
)

// ReceiverFault wraps an error returned by a receiver's output stream.
type ReceiverFault struct {
	Err error
}

func (e *ReceiverFault) Error() string {
	return "upload: receiver fault: " + e.Err.Error()
}

func (e *ReceiverFault) Unwrap() error {
	return e.Err
}
