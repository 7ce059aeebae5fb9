package experiments

import (
	"context"
	"fmt"

	"github.com/moeltae/sci-bom/internal/supabase"
)

const (
	experimentsTable = "experiments"
	itemsTable       = "items"

	// listColumns selects experiments with their items embedded in one
	// PostgREST query.
	listColumns = "id,name,description,status,estimatedCostUSD,userId,createdAt,updatedAt," +
		"items(id,experimentId,name,quantity,unit,estimatedCostUSD,supplier,catalog,createdAt,updatedAt)"
)

// SupabaseStore implements Store on a Supabase REST client. The client's
// privilege level decides what the store can see: handlers construct it from
// the request's scoped client so row-level ownership policy is enforced by
// the database.
type SupabaseStore struct {
	client *supabase.Client
	retry  supabase.RetryConfig
}

// NewSupabaseStore creates a store bound to the given client.
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{
		client: client,
		retry:  supabase.DefaultRetryConfig(),
	}
}

// InsertExperiment inserts the primary record.
func (s *SupabaseStore) InsertExperiment(ctx context.Context, exp Experiment) (Experiment, error) {
	resp, err := s.client.From(experimentsTable).ExecuteInsert(ctx, exp)
	if err != nil {
		return Experiment{}, fmt.Errorf("insert experiment: %w", err)
	}
	if err := resp.Error(); err != nil {
		return Experiment{}, err
	}

	var created []Experiment
	if err := resp.JSON(&created); err != nil {
		return Experiment{}, fmt.Errorf("decode experiment: %w", err)
	}
	if len(created) == 0 {
		return Experiment{}, fmt.Errorf("insert experiment: empty representation")
	}
	return created[0], nil
}

// InsertItems batch-inserts all items in a single request.
func (s *SupabaseStore) InsertItems(ctx context.Context, items []Item) ([]Item, error) {
	resp, err := s.client.From(itemsTable).ExecuteInsert(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("insert items: %w", err)
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var created []Item
	if err := resp.JSON(&created); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return created, nil
}

// DeleteExperiment deletes an experiment by ID.
func (s *SupabaseStore) DeleteExperiment(ctx context.Context, id string) error {
	resp, err := s.client.From(experimentsTable).Eq("id", id).ExecuteDelete(ctx)
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	return resp.Error()
}

// ListByOwner lists the owner's experiments newest first. Reads are
// idempotent, so transient store failures are retried.
func (s *SupabaseStore) ListByOwner(ctx context.Context, userID string) ([]Experiment, error) {
	resp, err := supabase.Retry(ctx, s.retry, func(ctx context.Context) (*supabase.Response, error) {
		return s.client.From(experimentsTable).
			Select(listColumns).
			Eq("userId", userID).
			Order("createdAt", false).
			Execute(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var experiments []Experiment
	if err := resp.JSON(&experiments); err != nil {
		return nil, fmt.Errorf("decode experiments: %w", err)
	}
	return experiments, nil
}
