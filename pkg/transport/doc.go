// Package transport hides the differences between the ways a request can
// reach the communication manager.
//
// The manager only sees Request, Response and Callback. Implementations are
// selected when the server is composed:
//
//   - HTTPRequest / HTTPResponse wrap net/http
//   - WSConn carries UIDL exchanges over a gorilla/websocket connection
//   - MockRequest / MockResponse are an in-memory harness for tests
//
// Session state is reached through the Session interface so the transport
// does not depend on a particular session container.
package transport
