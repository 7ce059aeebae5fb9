// Package middleware provides the pipeline stage library and the ambient
// HTTP middleware for the functions server.
package middleware

import (
	"context"
	"net/http"

	"github.com/moeltae/sci-bom/internal/pipeline"
)

// CORS returns the preflight stage: OPTIONS requests short-circuit with a
// 200 carrying the fixed permissive headers and an empty body; everything
// else passes through untouched. This stage never reads body or identity.
func CORS() pipeline.Stage {
	return pipeline.NewStage("cors", func(_ context.Context, rc pipeline.Context) (pipeline.Context, *pipeline.Response) {
		if rc.Request.Method == http.MethodOptions {
			return rc, pipeline.Empty(http.StatusOK)
		}
		return rc, nil
	})
}
