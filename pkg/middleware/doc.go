// Package middleware provides observability middleware for terminal servers.
//
// This package includes:
//   - OpenTelemetry HTTP tracing middleware
//   - Prometheus metrics, both as HTTP middleware and as a server.Observer
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware traces every HTTP request reaching the
// servlet. Each span carries the method, the matched chi route and the
// response status. UIDL processing spans started by the communication
// manager become children of the request span.
//
//	servlet := server.NewServlet(cfg, sessions, newApp,
//	    server.WithMiddleware(middleware.OpenTelemetry()),
//	)
//
// Configure with options:
//
//	middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-terminal"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return !strings.HasPrefix(r.URL.Path, "/THEME/")
//	    }),
//	)
//
// # Prometheus Metrics
//
// Metrics observes UIDL requests, uploads and critical notifications
// through the server.Observer hooks, and HTTP traffic through Handler:
//   - vango_terminal_uidl_requests_total: UIDL requests by result
//   - vango_terminal_paints_sent_total: component paints sent to clients
//   - vango_terminal_uploads_total: uploads by result
//   - vango_terminal_critical_notifications_total: critical notifications by code
//   - vango_terminal_active_sessions: live sessions
//
// Wire it into a servlet:
//
//	metrics := middleware.NewMetrics()
//	metrics.TrackSessions(sessions.Len)
//	servlet := server.NewServlet(cfg, sessions, newApp,
//	    server.WithMiddleware(metrics.Handler),
//	    server.WithManagerOptions(server.WithObserver(metrics)),
//	)
//
// Then expose metrics on a separate port:
//
//	http.Handle("/metrics", promhttp.Handler())
//	go http.ListenAndServe(":9090", nil)
package middleware
