// Package errors provides the coded error catalogue of the terminal.
//
// Every failure the server reports to a client or the CLI prints maps to a
// catalogue code:
//   - E1xx: session and window resolution
//   - E2xx: uploads
//   - E3xx: wire protocol and encoding
//   - E4xx: configuration
//   - E5xx: command line
//
// Critical notifications carry the code in their "code" field so the
// client can tell failures apart without parsing messages.
//
// # Usage
//
//	err := errors.New(errors.CodeConfigInvalid).
//	    Wrap(cause).
//	    WithSuggestion("Check server.address in terminal.yaml")
//
//	errors.PrintError(err)
//	// ERROR E401: Invalid configuration
//	//
//	//   cause: ...
//	//
//	//   One or more configuration values failed validation.
//	//
//	//   Hint: Check server.address in terminal.yaml
package errors
