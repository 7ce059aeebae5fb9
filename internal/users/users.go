// Package users provides the user profile store backing signup and the
// service-level profile upsert.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/moeltae/sci-bom/internal/supabase"
)

const usersTable = "users"

// User is a profile row in the users table; identity itself lives in the
// identity service, keyed by the same ID.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Institution string    `json:"institution,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store is the user profile data access surface.
type Store interface {
	Upsert(ctx context.Context, user User) error
}

// SupabaseStore implements Store on a Supabase REST client.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore creates a store bound to the given client. Profile writes
// run service-level, so callers pass the service client.
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{client: client}
}

// Upsert inserts or updates the user's profile row.
func (s *SupabaseStore) Upsert(ctx context.Context, user User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	resp, err := s.client.From(usersTable).ExecuteUpsert(ctx, []User{user})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return resp.Error()
}
