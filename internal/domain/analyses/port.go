package analyses

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Insert(ctx context.Context, a *Analysis) error
	// Get returns ErrNotFound when no row matches.
	Get(ctx context.Context, id AnalysisID) (*Analysis, error)
	// ListByOwner returns newest first; limit <= 0 means no limit.
	ListByOwner(ctx context.Context, owner string, limit int) ([]*Analysis, error)
	StatsByOwner(ctx context.Context, owner string) (Stats, error)
	// PatchResult moves a PENDING record to its terminal state. No ownership check.
	PatchResult(ctx context.Context, id AnalysisID, res Result) error
	Delete(ctx context.Context, id AnalysisID) error
}

// BlobStore port (interface untuk object storage)
type BlobStore interface {
	IssueUploadTarget(ctx context.Context, owner string) (UploadTarget, error)
	// ResolveURL returns ErrNotFound when the object does not exist.
	ResolveURL(ctx context.Context, handle string) (string, error)
	Delete(ctx context.Context, handle string) error
}

// Dispatcher hands scoring tasks to the worker pool without waiting for them.
type Dispatcher interface {
	Enqueue(ctx context.Context, t Task) error
}

// Publisher pushes record changes to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
