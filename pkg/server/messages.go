package server

import "github.com/vango-go/terminal/pkg/protocol"

// Message is the text of one critical notification. An empty URL tells
// the client to reload the current page.
type Message struct {
	Caption string
	Message string
	URL     string
}

// SystemMessages are the notifications shown when the client cannot go on.
type SystemMessages struct {
	SessionExpired     Message
	WindowNotFound     Message
	InvalidSecurityKey Message
	CommunicationError Message
	InternalError      Message
}

// DefaultSystemMessages returns the built-in English messages.
func DefaultSystemMessages() *SystemMessages {
	return &SystemMessages{
		SessionExpired: Message{
			Caption: "Session Expired",
			Message: "Take note of any unsaved data, and click here to continue.",
		},
		WindowNotFound: Message{
			Caption: "Window Not Found",
			Message: "The requested window does not exist. Click here to return to the main window.",
		},
		InvalidSecurityKey: Message{
			Caption: "Security Key Mismatch",
			Message: "The request was not sent by this page. Click here to reload.",
		},
		CommunicationError: Message{
			Caption: "Communication Problem",
			Message: "Take note of any unsaved data, and click here to continue.",
		},
		InternalError: Message{
			Caption: "Internal Error",
			Message: "Please notify the administrator. Take note of any unsaved data, and click here to continue.",
		},
	}
}

// For returns the message for a wire error code.
func (m *SystemMessages) For(code protocol.ErrorCode) Message {
	switch code {
	case protocol.ErrSessionExpired:
		return m.SessionExpired
	case protocol.ErrWindowNotFound:
		return m.WindowNotFound
	case protocol.ErrInvalidKey:
		return m.InvalidSecurityKey
	case protocol.ErrInvalidFrame, protocol.ErrInvalidBurst:
		return m.CommunicationError
	default:
		return m.InternalError
	}
}
