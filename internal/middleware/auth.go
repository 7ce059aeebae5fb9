package middleware

import (
	"context"
	"crypto/subtle"

	"github.com/golang-jwt/jwt/v5"

	"github.com/moeltae/sci-bom/internal/errors"
	"github.com/moeltae/sci-bom/internal/logging"
	"github.com/moeltae/sci-bom/internal/pipeline"
	"github.com/moeltae/sci-bom/internal/supabase"
)

// IdentityResolver validates an access token with the identity service and
// resolves the principal it belongs to. *supabase.AuthClient implements it.
type IdentityResolver interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// AuthConfig configures the identity-resolution stage.
type AuthConfig struct {
	Resolver IdentityResolver
	// JWTSecret, when set, enables a local HS256 signature and expiry check
	// before the identity service is consulted. The remote resolution stays
	// authoritative; the local check only rejects garbage early.
	JWTSecret string
	Logger    *logging.Logger
}

// RequireAuth returns the identity-resolution stage. The credential itself
// was already extracted by the scoped-client stage; here it is validated with
// the identity service and the resolved principal attached to the Context.
// A missing header and an invalid token both surface as 401, with distinct
// log detail but identical wire status.
func RequireAuth(cfg AuthConfig) pipeline.Stage {
	return pipeline.NewStage("require-auth", func(ctx context.Context, rc pipeline.Context) (pipeline.Context, *pipeline.Response) {
		token := bearerToken(rc.Request)
		if token == "" {
			serviceErr := errors.Unauthorized("Unauthorized")
			return rc, pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
		}

		if cfg.JWTSecret != "" {
			if err := verifyLocal(token, cfg.JWTSecret); err != nil {
				serviceErr := errors.InvalidToken(err)
				cfg.Logger.WithContext(ctx).WithError(serviceErr).Warn("local token check failed")
				return rc, pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
			}
		}

		user, err := cfg.Resolver.GetUser(ctx, token)
		if err != nil {
			serviceErr := errors.InvalidToken(err)
			cfg.Logger.WithContext(ctx).WithError(serviceErr).Warn("token validation failed")
			return rc, pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
		}

		cfg.Logger.WithContext(ctx).
			WithField("user_id", user.ID).
			Debug("authentication successful")

		return rc.WithIdentity(user), nil
	}).Requires(pipeline.FieldClient).Provides(pipeline.FieldIdentity)
}

// verifyLocal checks the token's HS256 signature and registered claims.
func verifyLocal(token, secret string) error {
	_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	return err
}

// ServiceAuth returns the service-level authentication stage used by
// operations that are only ever invoked service-to-service. The bearer must
// equal the service-role key. On success the Context carries the
// service-role client; no user identity is resolved.
func ServiceAuth(base *supabase.Client, serviceKey string, logger *logging.Logger) pipeline.Stage {
	return pipeline.NewStage("service-auth", func(ctx context.Context, rc pipeline.Context) (pipeline.Context, *pipeline.Response) {
		token := bearerToken(rc.Request)
		if token == "" {
			serviceErr := errors.Unauthorized("Unauthorized")
			return rc, pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(serviceKey)) != 1 {
			logger.LogSecurityEvent(ctx, "service_auth_failed", map[string]interface{}{
				"path": rc.Request.URL.Path,
			})
			serviceErr := errors.InvalidToken(nil)
			return rc, pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
		}
		return rc.WithClient(base.Service()), nil
	}).Provides(pipeline.FieldClient)
}
