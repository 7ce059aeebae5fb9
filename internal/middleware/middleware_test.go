package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moeltae/sci-bom/internal/logging"
	"github.com/moeltae/sci-bom/internal/pipeline"
	"github.com/moeltae/sci-bom/internal/supabase"
)

func testLogger() *logging.Logger {
	return logging.New("test", "error", "json")
}

func testClient(t *testing.T) *supabase.Client {
	t.Helper()
	client, err := supabase.New(supabase.Config{
		URL:        "http://localhost:54321",
		AnonKey:    "anon-key",
		ServiceKey: "service-key",
	})
	require.NoError(t, err)
	return client
}

type stubResolver struct {
	user  *supabase.User
	err   error
	calls int
	token string
}

func (r *stubResolver) GetUser(_ context.Context, token string) (*supabase.User, error) {
	r.calls++
	r.token = token
	if r.err != nil {
		return nil, r.err
	}
	return r.user, nil
}

func runStage(t *testing.T, stage pipeline.Stage, r *http.Request) (pipeline.Context, *pipeline.Response) {
	t.Helper()
	var out pipeline.Context
	var handlerRan bool

	p, err := pipeline.New("test", testLogger(), func(_ context.Context, rc pipeline.Context) *pipeline.Response {
		out = rc
		handlerRan = true
		return pipeline.Empty(http.StatusOK)
	}, stage)
	require.NoError(t, err)

	resp := p.Run(context.Background(), r)
	if handlerRan {
		return out, nil
	}
	return out, resp
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	// Preflight succeeds with or without a credential.
	for _, withAuth := range []bool{false, true} {
		req := httptest.NewRequest(http.MethodOptions, "/functions/v1/create-experiment", nil)
		if withAuth {
			req.Header.Set("Authorization", "Bearer tok")
		}

		_, resp := runStage(t, CORS(), req)

		require.NotNil(t, resp, "preflight must short-circuit")
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Empty(t, resp.Body)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	}
}

func TestCORSPassesThroughOtherMethods(t *testing.T) {
	_, resp := runStage(t, CORS(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Nil(t, resp)
}

func TestParseJSONAttachesBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"PCR"}`))

	rc, resp := runStage(t, ParseJSON(), req)

	require.Nil(t, resp)
	assert.True(t, rc.Has(pipeline.FieldBody))

	var payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, rc.DecodeBody(&payload))
	assert.Equal(t, "PCR", payload.Name)
}

func TestParseJSONRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":`))

	_, resp := runStage(t, ParseJSON(), req)

	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.JSONEq(t, `{"error":"Invalid JSON"}`, string(resp.Body))
}

func TestParseJSONSkipsBodylessMethods(t *testing.T) {
	rc, resp := runStage(t, ParseJSON(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Nil(t, resp)
	assert.False(t, rc.Has(pipeline.FieldBody))
}

func TestWithClientRequiresBearer(t *testing.T) {
	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Token abc",
		"empty":     "Bearer ",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}

			_, resp := runStage(t, WithClient(testClient(t)), req)

			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.Status)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, string(resp.Body))
		})
	}
}

func TestWithClientAttachesScopedClient(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer user-token")

	rc, resp := runStage(t, WithClient(testClient(t)), req)

	require.Nil(t, resp)
	require.True(t, rc.Has(pipeline.FieldClient))
	assert.True(t, rc.Client.IsScoped())
}

func TestMissingCredentialShortCircuitsBeforeBodyParsing(t *testing.T) {
	var parserRuns int
	countingParser := pipeline.NewStage("parse-json", func(_ context.Context, rc pipeline.Context) (pipeline.Context, *pipeline.Response) {
		parserRuns++
		return rc, nil
	})

	resolver := &stubResolver{user: &supabase.User{ID: "u1"}}
	p, err := pipeline.New("create", testLogger(), func(_ context.Context, _ pipeline.Context) *pipeline.Response {
		return pipeline.Empty(http.StatusOK)
	},
		CORS(),
		WithClient(testClient(t)),
		RequireAuth(AuthConfig{Resolver: resolver, Logger: testLogger()}),
		countingParser,
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
	resp := p.Run(context.Background(), req)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, 0, parserRuns, "body parsing must not run without a credential")
	assert.Equal(t, 0, resolver.calls)
}

func TestRequireAuthResolvesIdentity(t *testing.T) {
	resolver := &stubResolver{user: &supabase.User{ID: "user-1", Email: "a@b.c"}}

	p, err := pipeline.New("test", testLogger(), func(_ context.Context, rc pipeline.Context) *pipeline.Response {
		assert.Equal(t, "user-1", rc.Identity.ID)
		return pipeline.Empty(http.StatusOK)
	},
		WithClient(testClient(t)),
		RequireAuth(AuthConfig{Resolver: resolver, Logger: testLogger()}),
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	resp := p.Run(context.Background(), req)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "good-token", resolver.token)
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	resolver := &stubResolver{err: fmt.Errorf("expired")}

	p, err := pipeline.New("test", testLogger(), func(_ context.Context, _ pipeline.Context) *pipeline.Response {
		t.Fatal("handler must not run")
		return nil
	},
		WithClient(testClient(t)),
		RequireAuth(AuthConfig{Resolver: resolver, Logger: testLogger()}),
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer bad-token")

	resp := p.Run(context.Background(), req)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.JSONEq(t, `{"error":"Invalid token"}`, string(resp.Body))
}

func TestServiceAuth(t *testing.T) {
	stage := ServiceAuth(testClient(t), "service-key", testLogger())

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("Authorization", "Bearer wrong")

		_, resp := runStage(t, stage, req)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
	})

	t.Run("service key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("Authorization", "Bearer service-key")

		rc, resp := runStage(t, stage, req)
		require.Nil(t, resp)
		assert.True(t, rc.Has(pipeline.FieldClient))
		assert.False(t, rc.Client.IsScoped())
	})
}

func TestCleanupBoundsLimiterMap(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, testLogger())
	next := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Each distinct bearer string gets its own limiter entry.
	for i := 0; i <= maxLimiters; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", fmt.Sprintf("Bearer junk-%d", i))
		next.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Greater(t, len(rl.limiters), maxLimiters)

	rl.Cleanup()
	assert.Empty(t, rl.limiters)

	rl.getLimiter("caller")
	rl.Cleanup()
	assert.Len(t, rl.limiters, 1, "cleanup below the cap keeps entries")
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, testLogger())
	next := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer same-caller")
		rec := httptest.NewRecorder()
		next.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}
