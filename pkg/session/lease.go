package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// LeaseVersion is the version of the lease record format.
const LeaseVersion = 1

// Lease is the record a container writes to its Store for every live
// session.
type Lease struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Version    int       `json:"version"`
}

// EncodeLease serializes l with the current version.
func EncodeLease(l *Lease) ([]byte, error) {
	l.Version = LeaseVersion
	return json.Marshal(l)
}

// DecodeLease parses a lease record.
func DecodeLease(data []byte) (*Lease, error) {
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("session: decode lease: %w", err)
	}
	if l.Version > LeaseVersion {
		return nil, fmt.Errorf("session: lease version %d is newer than %d", l.Version, LeaseVersion)
	}
	return &l, nil
}
