package experiments

import "context"

// Store is the data access surface the saga and list operation run against.
// A Store instance is bound to one request's scoped client; it is never
// shared across requests.
type Store interface {
	// InsertExperiment inserts the primary record and returns the stored
	// representation.
	InsertExperiment(ctx context.Context, exp Experiment) (Experiment, error)

	// InsertItems batch-inserts all items in one call. The store is not
	// assumed to give the batch all-or-nothing semantics.
	InsertItems(ctx context.Context, items []Item) ([]Item, error)

	// DeleteExperiment deletes the experiment with the given ID. Dependent
	// items fall with it.
	DeleteExperiment(ctx context.Context, id string) error

	// ListByOwner returns the owner's experiments with nested items, newest
	// first.
	ListByOwner(ctx context.Context, userID string) ([]Experiment, error)
}
