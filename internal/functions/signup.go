package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/moeltae/sci-bom/internal/errors"
	"github.com/moeltae/sci-bom/internal/pipeline"
	"github.com/moeltae/sci-bom/internal/users"
)

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Institution string `json:"institution"`
}

// signup registers a user with the identity service and creates the
// matching profile row. Identity-service failures pass through with their
// original status.
func (s *Server) signup(ctx context.Context, rc pipeline.Context) *pipeline.Response {
	var req signupRequest
	if err := rc.DecodeBody(&req); err != nil {
		return pipeline.Error(http.StatusBadRequest, "Missing required fields: email, password, name, institution")
	}
	if req.Email == "" || req.Password == "" || req.Name == "" || req.Institution == "" {
		return pipeline.Error(http.StatusBadRequest, "Missing required fields: email, password, name, institution")
	}

	resp, err := s.base.Auth().SignUp(ctx, req.Email, req.Password)
	if err != nil {
		serviceErr := errors.Internal(err)
		s.logger.WithContext(ctx).WithError(serviceErr).Error("signup request failed")
		return pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
	}
	if signupErr := resp.Error(); signupErr != nil {
		return pipeline.Error(resp.StatusCode, signupErr.Error())
	}

	// Autoconfirmed signups return a session wrapping the user; otherwise
	// the body is the user itself.
	body := resp.Body
	var user, session json.RawMessage
	if u := gjson.GetBytes(body, "user"); u.Exists() {
		user = json.RawMessage(u.Raw)
		session = body
	} else {
		user = body
		session = json.RawMessage("null")
	}

	userID := gjson.GetBytes(user, "id").String()
	if userID == "" {
		serviceErr := errors.Internal(fmt.Errorf("identity service returned no user id"))
		s.logger.WithContext(ctx).WithError(serviceErr).Error("signup response missing user id")
		return pipeline.Error(serviceErr.HTTPStatus, serviceErr.Message)
	}

	if err := s.users.Upsert(ctx, users.User{
		ID:          userID,
		Email:       req.Email,
		Name:        req.Name,
		Institution: req.Institution,
	}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("user profile upsert failed")
		return pipeline.Error(http.StatusInternalServerError, "Failed to create user record")
	}

	return pipeline.JSON(http.StatusOK, map[string]any{
		"user":    user,
		"session": session,
		"success": true,
	})
}
