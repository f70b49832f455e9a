package session

import (
	"context"
	"errors"
	"time"
)

// Store persists session leases. A lease records that a session exists and
// when it expires; the container extends it on every access so that several
// server instances agree on which sessions are alive.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes the lease record of sessionID, replacing any previous one.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load returns the lease record of sessionID.
	// Returns (nil, nil) if the lease doesn't exist or has expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a lease. Deleting an unknown lease is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Touch moves the expiry of an existing lease without rewriting it.
	// Touching an unknown lease is not an error.
	Touch(ctx context.Context, sessionID string, expiresAt time.Time) error

	// SaveAll writes several leases, atomically where the backend allows.
	SaveAll(ctx context.Context, leases map[string]Data) error

	// Close releases resources held by the store.
	Close() error
}

// Data is a lease record with its expiry.
type Data struct {
	Data      []byte
	ExpiresAt time.Time
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("session: store is closed")
