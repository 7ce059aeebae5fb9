package functions

import (
	"context"
	"net/http"

	"github.com/moeltae/sci-bom/internal/experiments"
	"github.com/moeltae/sci-bom/internal/pipeline"
)

// createResponse flattens the created experiment next to the success flag,
// matching the original wire shape.
type createResponse struct {
	Success bool `json:"success"`
	experiments.Experiment
}

// createExperiment runs the creation saga with the caller's scoped client.
func (s *Server) createExperiment(ctx context.Context, rc pipeline.Context) *pipeline.Response {
	var req experiments.CreateRequest
	if err := rc.DecodeBody(&req); err != nil {
		return pipeline.Error(http.StatusBadRequest, "Invalid input. Name, description, and items array are required.")
	}

	store := experiments.NewSupabaseStore(rc.Client)
	created, serviceErr := s.experiments.Create(ctx, store, rc.Identity.ID, req)
	if serviceErr != nil {
		return pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
	}

	return pipeline.JSON(http.StatusCreated, createResponse{
		Success:    true,
		Experiment: created,
	})
}
