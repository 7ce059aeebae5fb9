package functions

import (
	"context"
	"net/http"

	"github.com/moeltae/sci-bom/internal/experiments"
	"github.com/moeltae/sci-bom/internal/pipeline"
)

// listExperiments returns the caller's experiments with nested items,
// newest first.
func (s *Server) listExperiments(ctx context.Context, rc pipeline.Context) *pipeline.Response {
	store := experiments.NewSupabaseStore(rc.Client)
	list, serviceErr := s.experiments.List(ctx, store, rc.Identity.ID)
	if serviceErr != nil {
		return pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
	}

	return pipeline.JSON(http.StatusOK, map[string]any{
		"experiments": list,
	})
}
