package techpack

import "context"

// SnapshotRepository is the read-only view of the persistence layer the pipeline consumes
type SnapshotRepository interface {
	// GetDocumentSnapshot loads the current snapshot of a document.
	// Returns shared.ErrNotFound when the document does not exist.
	GetDocumentSnapshot(ctx context.Context, documentID string) (*Snapshot, error)
}

// SnapshotWriter persists snapshots. Used by seeding and tests; the
// pipeline itself never writes.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}
