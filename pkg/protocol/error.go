package protocol

// ErrorCode identifies the type of error.
type ErrorCode uint16

const (
	ErrUnknown        ErrorCode = 0x0000 // Unknown error
	ErrInvalidFrame   ErrorCode = 0x0001 // Malformed frame
	ErrInvalidBurst   ErrorCode = 0x0002 // Malformed variable burst
	ErrSessionExpired ErrorCode = 0x0005 // Session no longer valid
	ErrWindowNotFound ErrorCode = 0x0007 // Root cannot be resolved
	ErrInvalidKey     ErrorCode = 0x0008 // UIDL or upload security key mismatch
	ErrServerError    ErrorCode = 0x0100 // Internal server error
	ErrNotFound       ErrorCode = 0x0102 // Resource not found
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrInvalidFrame:
		return "InvalidFrame"
	case ErrInvalidBurst:
		return "InvalidBurst"
	case ErrSessionExpired:
		return "SessionExpired"
	case ErrWindowNotFound:
		return "WindowNotFound"
	case ErrInvalidKey:
		return "InvalidSecurityKey"
	case ErrServerError:
		return "ServerError"
	case ErrNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
