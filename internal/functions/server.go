// Package functions exposes the edge-function operations as HTTP endpoints,
// each behind its own explicitly ordered pipeline.
package functions

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/moeltae/sci-bom/internal/config"
	"github.com/moeltae/sci-bom/internal/experiments"
	"github.com/moeltae/sci-bom/internal/logging"
	"github.com/moeltae/sci-bom/internal/metrics"
	"github.com/moeltae/sci-bom/internal/middleware"
	"github.com/moeltae/sci-bom/internal/pipeline"
	"github.com/moeltae/sci-bom/internal/supabase"
	"github.com/moeltae/sci-bom/internal/users"
)

// Server bundles the function handlers and their dependencies.
type Server struct {
	cfg         *config.Config
	logger      *logging.Logger
	metrics     *metrics.Metrics
	base        *supabase.Client
	experiments *experiments.Service
	users       users.Store
}

// NewServer creates the functions server.
func NewServer(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics, base *supabase.Client) *Server {
	return &Server{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		base:        base,
		experiments: experiments.NewService(logger, m),
		users:       users.NewSupabaseStore(base.Service()),
	}
}

// Register mounts every operation on the router under /functions/v1, each
// with its own named stage sequence. Misordered stage lists fail here, at
// startup.
func (s *Server) Register(r *mux.Router) error {
	auth := middleware.AuthConfig{
		Resolver:  s.base.Auth(),
		JWTSecret: s.cfg.Supabase.JWTSecret,
		Logger:    s.logger,
	}

	// Authenticated operations resolve identity before the body is parsed,
	// so a missing credential never reaches the parser.
	authedStages := []pipeline.Stage{
		middleware.CORS(),
		middleware.WithClient(s.base),
		middleware.RequireAuth(auth),
		middleware.ParseJSON(),
	}

	type operation struct {
		name    string
		path    string
		method  string
		handler pipeline.Handler
		stages  []pipeline.Stage
	}

	ops := []operation{
		{
			name:    "create-experiment",
			path:    "/functions/v1/create-experiment",
			method:  http.MethodPost,
			handler: s.createExperiment,
			stages:  authedStages,
		},
		{
			name:    "list-experiments",
			path:    "/functions/v1/list-experiments",
			method:  http.MethodGet,
			handler: s.listExperiments,
			stages:  authedStages,
		},
		{
			name:    "signup",
			path:    "/functions/v1/signup",
			method:  http.MethodPost,
			handler: s.signup,
			stages: []pipeline.Stage{
				middleware.CORS(),
				middleware.ParseJSON(),
			},
		},
		{
			name:    "upsert-user",
			path:    "/functions/v1/upsert-user",
			method:  http.MethodPost,
			handler: s.upsertUser,
			stages: []pipeline.Stage{
				middleware.CORS(),
				middleware.ServiceAuth(s.base, s.cfg.Supabase.ServiceKey, s.logger),
				middleware.ParseJSON(),
			},
		},
	}

	for _, op := range ops {
		p, err := pipeline.New(op.name, s.logger, op.handler, op.stages...)
		if err != nil {
			return fmt.Errorf("register %s: %w", op.name, err)
		}
		p.AllowOrigins(s.cfg.CORS.AllowedOrigins)
		r.Handle(op.path, p).Methods(op.method, http.MethodOptions)
	}

	return nil
}
