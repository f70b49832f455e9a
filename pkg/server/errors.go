package server

import (
	"errors"
	"fmt"
	"net/http"

	terrors "github.com/vango-go/terminal/internal/errors"
	"github.com/vango-go/terminal/pkg/protocol"
	"github.com/vango-go/terminal/pkg/streamvar"
	"github.com/vango-go/terminal/pkg/upload"
)

// Sentinel errors of the communication layer.
var (
	// ErrInvalidSecurityKey is returned when a UIDL or upload security key
	// does not match.
	ErrInvalidSecurityKey = errors.New("server: invalid security key")

	// ErrSessionExpired is returned when the request's session carries no
	// running application.
	ErrSessionExpired = errors.New("server: session expired")

	// ErrWindowNotFound is returned when the requested root is unknown and
	// cannot be created.
	ErrWindowNotFound = errors.New("server: window not found")

	// ErrNotFound is returned when an upload target or resource does not
	// exist.
	ErrNotFound = errors.New("server: not found")

	// ErrProtocol is matched by every ProtocolError.
	ErrProtocol = errors.New("server: protocol error")
)

// ProtocolError reports a request that could not be decoded.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server: protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProtocol) true for every ProtocolError.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// ReceiverFault wraps an error raised by a stream receiver's output stream.
type ReceiverFault = upload.ReceiverFault

// CriticalError is a failure the client is told about through a critical
// notification.
type CriticalError struct {
	Code protocol.ErrorCode
	Err  error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("server: critical %s: %v", e.Code, e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }

// EncodingError reports a response that could not be serialized.
type EncodingError struct {
	PaintableID string
	Err         error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("server: encode paint of %s: %v", e.PaintableID, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// HTTPStatus maps an error returned by the communication manager to an HTTP
// status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrProtocol), errors.Is(err, upload.ErrMalformedPath),
		errors.Is(err, upload.ErrNoFilePart), errors.Is(err, upload.ErrClientDisconnected):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidSecurityKey), errors.Is(err, streamvar.ErrInvalidSecurityKey):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, streamvar.ErrNotFound),
		errors.Is(err, ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the wire error code of err.
func ErrorCode(err error) protocol.ErrorCode {
	var ce *CriticalError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrSessionExpired):
		return protocol.ErrSessionExpired
	case errors.Is(err, ErrWindowNotFound):
		return protocol.ErrWindowNotFound
	case errors.Is(err, ErrInvalidSecurityKey), errors.Is(err, streamvar.ErrInvalidSecurityKey):
		return protocol.ErrInvalidKey
	case errors.Is(err, ErrNotFound), errors.Is(err, streamvar.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, ErrProtocol):
		return protocol.ErrInvalidBurst
	default:
		return protocol.ErrServerError
	}
}

// CatalogueCode returns the diagnostics catalogue code of err.
func CatalogueCode(err error) string {
	var fault *ReceiverFault
	var enc *EncodingError
	switch {
	case errors.Is(err, ErrSessionExpired):
		return terrors.CodeSessionExpired
	case errors.Is(err, ErrWindowNotFound):
		return terrors.CodeWindowNotFound
	case errors.Is(err, streamvar.ErrInvalidSecurityKey):
		return terrors.CodeInvalidUploadKey
	case errors.Is(err, ErrInvalidSecurityKey):
		return terrors.CodeInvalidUIDLKey
	case errors.Is(err, streamvar.ErrNotFound), errors.Is(err, ErrNotFound):
		return terrors.CodeUploadNotFound
	case errors.Is(err, upload.ErrTooLarge):
		return terrors.CodeUploadTooLarge
	case errors.As(err, &fault):
		return terrors.CodeReceiverFault
	case errors.Is(err, upload.ErrClientDisconnected):
		return terrors.CodeClientDisconnected
	case errors.Is(err, ErrProtocol), errors.Is(err, upload.ErrMalformedPath), errors.Is(err, upload.ErrNoFilePart):
		return terrors.CodeProtocol
	case errors.As(err, &enc):
		return terrors.CodeEncoding
	default:
		return terrors.CodeInternal
	}
}
