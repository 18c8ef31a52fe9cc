// Package checkpoint provides the storage implementations behind
// turn.CheckpointManager. The snapshot types live in internal/turn so the
// engine can depend on them without importing the storage drivers.
package checkpoint

import "github.com/mohammad-safakhou/hously/internal/turn"

type (
	Snapshot = turn.Snapshot
	Manager  = turn.CheckpointManager
)
