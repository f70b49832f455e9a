// Package server provides the server side of the UIDL communication engine.
//
// The server package resolves requests to the root windows of a session's
// application, applies the variable changes the client sends, paints the
// component tree and answers with the paint changes the client has not seen.
// It also dispatches file uploads into the stream receivers registered while
// painting.
//
// # Architecture
//
//   - CommunicationManager: per-application state. Owns the stream-variable
//     registry, paintable IDs, paint fingerprints and sync IDs.
//   - Resolver: finds or creates the root a request addresses.
//   - Servlet: chi router serving bootstrap pages, UIDL requests, uploads,
//     UIDL over WebSocket and theme resources.
//   - Binding: the session attribute tying an application to its manager.
//     Destroying the session closes the application.
//
// # UIDL Processing
//
// For every burst:
//  1. The root is resolved; failures become critical notifications
//  2. The burst frame is decoded and its security key checked
//  3. Changes are applied in order under the application lock
//  4. The root is painted and fingerprinted with xxhash
//  5. Changed paints and removed IDs are encoded into one frame
//  6. Paint state is committed after the frame was written
//
// A client whose sync ID differs from the last one sent receives a full
// repaint.
//
// # Example Usage
//
//	sessions := session.NewContainer(nil, session.DefaultConfig(), logger)
//	s := server.NewServlet(server.DefaultConfig(), sessions, newApp)
//	if err := s.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// One request is handled per goroutine. The application lock is held while
// changes are applied and the tree is painted; uploads resolve their
// receiver under the lock and stream without it.
package server
