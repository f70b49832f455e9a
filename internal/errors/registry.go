package errors

import (
	"sort"
	"sync"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// Catalogue codes referenced from Go code.
const (
	CodeSessionExpired     = "E101"
	CodeWindowNotFound     = "E102"
	CodeInvalidUIDLKey     = "E103"
	CodeInvalidUploadKey   = "E201"
	CodeUploadNotFound     = "E202"
	CodeUploadTooLarge     = "E203"
	CodeReceiverFault      = "E204"
	CodeClientDisconnected = "E205"
	CodeProtocol           = "E301"
	CodeEncoding           = "E302"
	CodeInternal           = "E303"
	CodeConfigInvalid      = "E401"
	CodeConfigLoad         = "E402"
	CodeServe              = "E501"
)

var (
	registryMu sync.RWMutex

	// registry maps error codes to their templates.
	registry = map[string]ErrorTemplate{
		// Session and window errors (E1xx)
		CodeSessionExpired: {
			Category: CategorySession,
			Message:  "Session expired",
			Detail:   "The request carries no session bound to a running application. The session timed out or was invalidated.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E101",
		},
		CodeWindowNotFound: {
			Category: CategorySession,
			Message:  "Window not found",
			Detail:   "The requested root is not part of the application and the application cannot create it.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E102",
		},
		CodeInvalidUIDLKey: {
			Category: CategorySession,
			Message:  "Invalid UIDL security key",
			Detail:   "The burst carried a security key that differs from the key issued with the bootstrap page.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E103",
		},

		// Upload errors (E2xx)
		CodeInvalidUploadKey: {
			Category: CategoryUpload,
			Message:  "Invalid upload security key",
			Detail:   "The key in the upload URL does not match the key of the registered receiver.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E201",
		},
		CodeUploadNotFound: {
			Category: CategoryUpload,
			Message:  "Upload target not found",
			Detail:   "No receiver is registered for the paintable and variable in the upload URL. The component may have been removed.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E202",
		},
		CodeUploadTooLarge: {
			Category: CategoryUpload,
			Message:  "Upload too large",
			Detail:   "The upload exceeded the configured maximum file size.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E203",
		},
		CodeReceiverFault: {
			Category: CategoryUpload,
			Message:  "Receiver fault",
			Detail:   "The stream receiver failed to open, write or close its output stream.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E204",
		},
		CodeClientDisconnected: {
			Category: CategoryUpload,
			Message:  "Client disconnected",
			Detail:   "The request body ended before the announced length or the request was cancelled.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E205",
		},

		// Protocol errors (E3xx)
		CodeProtocol: {
			Category: CategoryProtocol,
			Message:  "Malformed request",
			Detail:   "The request could not be decoded as a UIDL burst or upload path.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E301",
		},
		CodeEncoding: {
			Category: CategoryProtocol,
			Message:  "Response encoding failed",
			Detail:   "A component painted a value that cannot be encoded.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E302",
		},
		CodeInternal: {
			Category: CategoryProtocol,
			Message:  "Internal error",
			Detail:   "The server failed while handling the request.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E303",
		},

		// Configuration errors (E4xx)
		CodeConfigInvalid: {
			Category: CategoryConfig,
			Message:  "Invalid configuration",
			Detail:   "One or more configuration values failed validation.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E401",
		},
		CodeConfigLoad: {
			Category: CategoryConfig,
			Message:  "Configuration could not be loaded",
			Detail:   "The configuration file could not be read or parsed.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E402",
		},

		// CLI errors (E5xx)
		CodeServe: {
			Category: CategoryCLI,
			Message:  "Server failed",
			Detail:   "The HTTP server stopped with an error.",
			DocURL:   "https://vango.dev/docs/terminal/errors/E501",
		},
	}
)

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registryMu.Lock()
	registry[code] = template
	registryMu.Unlock()
}
