package record

import (
	"context"
	"iter"
)

// Repository is the storage contract both backends implement.
type Repository interface {
	// Initialize acquires backend resources (connection, working tree).
	Initialize(ctx context.Context) error
	// Finalize releases them; the git backend may publish to its remote.
	Finalize(ctx context.Context) error

	// Save persists rec unless its content equals the partition's latest content,
	// in which case it returns a zero Outcome. On success rec.ID and rec.IsFirstRecord are set.
	Save(ctx context.Context, rec *Record) (Outcome, error)

	// FindLatest returns nil, nil when the partition is empty.
	FindLatest(ctx context.Context, serviceID, documentType string) (*Record, error)
	// FindByID returns nil, nil for unknown or malformed ids.
	FindByID(ctx context.Context, id string) (*Record, error)
	// FindAll returns every record in ascending fetch date order.
	FindAll(ctx context.Context, opts FindOptions) ([]*Record, error)
	Count(ctx context.Context) (int, error)
	// Iterate yields records lazily in ascending fetch date order. Each call starts over.
	Iterate(ctx context.Context, opts FindOptions) iter.Seq2[*Record, error]

	// RemoveAll clears every record and re-initializes the storage.
	RemoveAll(ctx context.Context) error
	// LoadRecordContent hydrates rec.Content for a record read with deferred content.
	LoadRecordContent(ctx context.Context, rec *Record) error
}
