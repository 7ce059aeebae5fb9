// Package pipeline implements the request-processing pipeline: a typed
// Context accumulated across ordered stages, short-circuiting on the first
// terminal Response.
package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/moeltae/sci-bom/internal/supabase"
)

// Field names a Context field a stage can require or provide. Requirements
// are checked at pipeline construction, not per request.
type Field string

const (
	// FieldBody is the decoded request payload.
	FieldBody Field = "body"
	// FieldIdentity is the authenticated principal.
	FieldIdentity Field = "identity"
	// FieldClient is the user-scoped data-store client.
	FieldClient Field = "client"
)

// Context carries the inbound request and the fields accumulated by stages.
// It is extended by copy, never mutated: each With method returns a new
// Context, so a field set by one stage stays visible and unchanged for every
// later stage and the handler.
type Context struct {
	Request  *http.Request
	Body     json.RawMessage
	Identity *supabase.User
	Client   *supabase.Client
}

// NewContext returns the initial Context for one pipeline invocation.
func NewContext(r *http.Request) Context {
	return Context{Request: r}
}

// WithBody returns a copy with the decoded payload attached.
func (c Context) WithBody(body json.RawMessage) Context {
	c.Body = body
	return c
}

// WithIdentity returns a copy with the resolved principal attached.
func (c Context) WithIdentity(user *supabase.User) Context {
	c.Identity = user
	return c
}

// WithClient returns a copy with the scoped store client attached.
func (c Context) WithClient(client *supabase.Client) Context {
	c.Client = client
	return c
}

// Has reports whether the named field has been set.
func (c Context) Has(field Field) bool {
	switch field {
	case FieldBody:
		return c.Body != nil
	case FieldIdentity:
		return c.Identity != nil
	case FieldClient:
		return c.Client != nil
	default:
		return false
	}
}

// DecodeBody unmarshals the parsed payload into v. Only valid after the
// body-parsing stage has run.
func (c Context) DecodeBody(v any) error {
	return json.Unmarshal(c.Body, v)
}
