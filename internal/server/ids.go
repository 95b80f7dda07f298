package server

import "github.com/google/uuid"

// IDGenerator names websocket clients and requests.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids, so connection logs
// sort by arrival.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// NewID panics if the system random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
