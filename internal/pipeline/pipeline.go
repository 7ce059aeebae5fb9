package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/moeltae/sci-bom/internal/logging"
)

// RunFunc is one unit of pipeline work. It returns either an extended
// Context (superset of its input) or a terminal Response, never both.
// Expected failures are signalled by a Response; panicking is reserved for
// genuinely unexpected faults, which the executor converts to a 500.
type RunFunc func(ctx context.Context, rc Context) (Context, *Response)

// Stage is a named, stateless pipeline step. Configuration is closed over
// at construction; declared field dependencies are validated when the
// pipeline is built.
type Stage struct {
	name     string
	requires []Field
	provides []Field
	run      RunFunc
}

// NewStage creates a stage.
func NewStage(name string, run RunFunc) Stage {
	return Stage{name: name, run: run}
}

// Requires declares Context fields this stage reads.
func (s Stage) Requires(fields ...Field) Stage {
	s.requires = append(s.requires, fields...)
	return s
}

// Provides declares Context fields this stage sets on success.
func (s Stage) Provides(fields ...Field) Stage {
	s.provides = append(s.provides, fields...)
	return s
}

// Name returns the stage name.
func (s Stage) Name() string { return s.name }

// Handler is the terminal function invoked once all stages have passed the
// Context through.
type Handler func(ctx context.Context, rc Context) *Response

// Pipeline is an ordered stage list bound to a terminal handler. It is built
// once per operation and is safe for concurrent use; each invocation runs on
// its own Context with no shared mutable state.
type Pipeline struct {
	name    string
	stages  []Stage
	handler Handler
	logger  *logging.Logger
	origins []string
}

// New builds a pipeline, asserting that every stage's required fields are
// provided by an earlier stage. A misordered list is a startup error, not a
// runtime one.
func New(name string, logger *logging.Logger, handler Handler, stages ...Stage) (*Pipeline, error) {
	if handler == nil {
		return nil, fmt.Errorf("pipeline %s: handler is required", name)
	}

	available := make(map[Field]string)
	for _, stage := range stages {
		for _, req := range stage.requires {
			if _, ok := available[req]; !ok {
				return nil, fmt.Errorf("pipeline %s: stage %q requires %q before any stage provides it",
					name, stage.name, req)
			}
		}
		for _, prov := range stage.provides {
			if prior, ok := available[prov]; ok {
				return nil, fmt.Errorf("pipeline %s: stage %q provides %q already provided by %q",
					name, stage.name, prov, prior)
			}
			available[prov] = stage.name
		}
	}

	return &Pipeline{
		name:    name,
		stages:  stages,
		handler: handler,
		logger:  logger,
	}, nil
}

// MustNew is New that panics; for package-level pipeline construction.
func MustNew(name string, logger *logging.Logger, handler Handler, stages ...Stage) *Pipeline {
	p, err := New(name, logger, handler, stages...)
	if err != nil {
		panic(err)
	}
	return p
}

// AllowOrigins restricts the Access-Control-Allow-Origin header on every
// response the pipeline produces. The default, and any list containing "*",
// keeps the permissive wildcard; otherwise the request's Origin is echoed
// when it matches and the header is dropped when it does not.
func (p *Pipeline) AllowOrigins(origins []string) *Pipeline {
	p.origins = origins
	return p
}

// Run executes the stage list against a fresh Context for r. The first
// terminal Response stops execution; no later stage and no handler runs.
// Panics anywhere in a stage or the handler are converted to a generic 500
// so no request can take the process down.
func (p *Pipeline) Run(ctx context.Context, r *http.Request) *Response {
	resp := p.run(ctx, r)
	p.applyOrigin(r, resp)
	return resp
}

func (p *Pipeline) run(ctx context.Context, r *http.Request) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.WithContext(ctx).
				WithField("pipeline", p.name).
				WithField("panic", fmt.Sprintf("%v", rec)).
				Error("pipeline panic recovered")
			resp = Error(http.StatusInternalServerError, "Internal server error")
		}
	}()

	rc := NewContext(r)
	for _, stage := range p.stages {
		next, terminal := stage.run(ctx, rc)
		if terminal != nil {
			p.logger.WithContext(ctx).
				WithField("pipeline", p.name).
				WithField("stage", stage.name).
				WithField("status", terminal.Status).
				Debug("pipeline short-circuit")
			return terminal
		}
		rc = next
	}

	return p.handler(ctx, rc)
}

func (p *Pipeline) applyOrigin(r *http.Request, resp *Response) {
	if resp == nil || len(p.origins) == 0 {
		return
	}
	for _, o := range p.origins {
		if o == "*" {
			return
		}
	}

	origin := r.Header.Get("Origin")
	for _, o := range p.origins {
		if origin != "" && strings.EqualFold(o, origin) {
			resp.Header.Set("Access-Control-Allow-Origin", origin)
			resp.Header.Add("Vary", "Origin")
			return
		}
	}
	resp.Header.Del("Access-Control-Allow-Origin")
}

// ServeHTTP adapts the pipeline to net/http.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := p.Run(r.Context(), r)
	if resp == nil {
		resp = Error(http.StatusInternalServerError, "Internal server error")
	}
	resp.Write(w)
}
