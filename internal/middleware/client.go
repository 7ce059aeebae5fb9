package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/moeltae/sci-bom/internal/errors"
	"github.com/moeltae/sci-bom/internal/pipeline"
	"github.com/moeltae/sci-bom/internal/supabase"
)

// WithClient returns the scoped-client provisioning stage. It requires a
// bearer credential in the Authorization header; absence short-circuits with
// a 401 before any later stage runs. On success it attaches a store client
// bound to the caller's token, so row-level ownership policy applies to
// every query the handler issues. There is no fallback to the service-role
// client here or anywhere downstream of this stage.
func WithClient(base *supabase.Client) pipeline.Stage {
	return pipeline.NewStage("with-client", func(_ context.Context, rc pipeline.Context) (pipeline.Context, *pipeline.Response) {
		token := bearerToken(rc.Request)
		if token == "" {
			serviceErr := errors.Unauthorized("Unauthorized")
			return rc, pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
		}
		return rc.WithClient(base.WithToken(token)), nil
	}).Provides(pipeline.FieldClient)
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return ""
	}
	return parts[1]
}
