package turn

import (
	"context"
	"time"
)

// Snapshot is the durable record for one conversation thread: the message
// history plus the last turn state. A suspended turn resumes from this record
// alone, so everything re-entry needs must be inside it.
type Snapshot struct {
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id,omitempty"`
	Thread    Thread    `json:"thread"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointManager persists thread snapshots. Save must be atomic per
// thread: readers never observe a partially written snapshot.
type CheckpointManager interface {
	// Load returns the snapshot for a thread. The bool reports whether one
	// exists; a missing thread is not an error.
	Load(ctx context.Context, threadID string) (Snapshot, bool, error)

	// Save writes the full snapshot, replacing any previous one.
	Save(ctx context.Context, snap Snapshot) error

	// Delete removes a thread's snapshot. Deleting a missing thread is a no-op.
	Delete(ctx context.Context, threadID string) error

	// PruneBefore deletes snapshots not updated since the cutoff and reports
	// how many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
