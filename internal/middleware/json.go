package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/moeltae/sci-bom/internal/pipeline"
)

// maxBodyBytes bounds request payloads; experiment payloads are small.
const maxBodyBytes = 1 << 20 // 1 MiB

// ParseJSON returns the body-parsing stage. For methods that conventionally
// carry a payload (POST, PUT) it reads and validates the body as JSON and
// attaches it to the Context; a malformed body short-circuits with a 400.
// Other methods pass through without setting the body.
func ParseJSON() pipeline.Stage {
	return pipeline.NewStage("parse-json", func(_ context.Context, rc pipeline.Context) (pipeline.Context, *pipeline.Response) {
		if rc.Request.Method != http.MethodPost && rc.Request.Method != http.MethodPut {
			return rc, nil
		}

		body, err := io.ReadAll(io.LimitReader(rc.Request.Body, maxBodyBytes+1))
		if err != nil || len(body) > maxBodyBytes {
			return rc, pipeline.Error(http.StatusBadRequest, "Invalid JSON")
		}
		if !json.Valid(body) {
			return rc, pipeline.Error(http.StatusBadRequest, "Invalid JSON")
		}

		return rc.WithBody(json.RawMessage(body)), nil
	}).Provides(pipeline.FieldBody)
}
