package engine

import (
	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/store"
)

// SyncDirection says which way a change travels.
type SyncDirection int

const (
	// LocalToRemote carries an edge change to the hub.
	LocalToRemote SyncDirection = iota + 1

	// RemoteToLocal carries a hub change to the edge.
	RemoteToLocal
)

// String returns a stable name for logs and reports.
func (d SyncDirection) String() string {
	switch d {
	case LocalToRemote:
		return "local_to_remote"
	case RemoteToLocal:
		return "remote_to_local"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d SyncDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DirectedChange pairs a change record with its direction and origin side.
// It lives for one sync cycle only.
type DirectedChange struct {
	Record    change.Record
	Direction SyncDirection
	Origin    *store.Store
}

func wrap(records []change.Record, dir SyncDirection, origin *store.Store) []*DirectedChange {
	out := make([]*DirectedChange, len(records))
	for i := range records {
		out[i] = &DirectedChange{
			Record:    records[i],
			Direction: dir,
			Origin:    origin,
		}
	}
	return out
}
