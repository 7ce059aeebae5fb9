package functions

import (
	"context"
	"net/http"

	"github.com/moeltae/sci-bom/internal/pipeline"
	"github.com/moeltae/sci-bom/internal/users"
)

type upsertUserRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// upsertUser creates or updates a profile row. Service-level only; the
// pipeline's service-auth stage has already vetted the caller and attached
// the service-role client the write goes through.
func (s *Server) upsertUser(ctx context.Context, rc pipeline.Context) *pipeline.Response {
	var req upsertUserRequest
	if err := rc.DecodeBody(&req); err != nil {
		return pipeline.Error(http.StatusBadRequest, "Missing required fields: id, email, name")
	}
	if req.ID == "" || req.Email == "" || req.Name == "" {
		return pipeline.Error(http.StatusBadRequest, "Missing required fields: id, email, name")
	}

	store := users.NewSupabaseStore(rc.Client)
	if err := store.Upsert(ctx, users.User{
		ID:    req.ID,
		Email: req.Email,
		Name:  req.Name,
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("user profile upsert failed")
		return pipeline.Error(http.StatusInternalServerError, "Failed to upsert user")
	}

	return pipeline.JSON(http.StatusOK, map[string]any{"success": true})
}
