// Package session provides the HTTP session container of the terminal and
// pluggable lease stores.
//
// Session state (attributes such as the bound application) lives in the
// memory of the process that created the session. Each live session also
// owns a lease in a Store, extended on every request and deleted when the
// session is destroyed:
//
//	store := session.NewMemoryStore()
//	// or
//	store := session.NewRedisStore(redisClient)
//	// or
//	store := session.NewSQLStore(db, session.WithSQLDialect(session.DialectSQLite))
//
//	sessions := session.NewContainer(store, session.DefaultConfig(), logger)
//	defer sessions.Shutdown(ctx)
//
// Sessions expire after Config.MaxInactive without a request. Attribute
// values implementing UnbindListener are notified when they are removed or
// the session is destroyed; the server uses this to close applications.
package session
