package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		URL:        srv.URL,
		AnonKey:    "anon-key",
		ServiceKey: "service-key",
	})
	require.NoError(t, err)
	return client
}

func TestNewRequiresURLAndAnonKey(t *testing.T) {
	_, err := New(Config{AnonKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestPrivilegeLevels(t *testing.T) {
	var apikey, auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apikey = r.Header.Get("apikey")
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	})

	t.Run("base client sends anon key only", func(t *testing.T) {
		_, err := client.From("experiments").Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "anon-key", apikey)
		assert.Empty(t, auth)
		assert.False(t, client.IsScoped())
	})

	t.Run("scoped client sends anon key plus user bearer", func(t *testing.T) {
		scoped := client.WithToken("user-token")
		_, err := scoped.From("experiments").Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "anon-key", apikey)
		assert.Equal(t, "Bearer user-token", auth)
		assert.True(t, scoped.IsScoped())
	})

	t.Run("service client sends service key as both", func(t *testing.T) {
		svc := client.Service()
		_, err := svc.From("experiments").Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "service-key", apikey)
		assert.Equal(t, "Bearer service-key", auth)
		assert.False(t, svc.IsScoped())
	})
}

func TestQueryBuilderEncodesFiltersAndOrder(t *testing.T) {
	var query string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.From("experiments").
		Select("id,name").
		Eq("userId", "u1").
		Order("createdAt", false).
		Limit(5).
		Execute(context.Background())

	require.NoError(t, err)
	assert.Contains(t, query, "select=id%2Cname")
	assert.Contains(t, query, "userId=eq.u1")
	assert.Contains(t, query, "order=createdAt.desc")
	assert.Contains(t, query, "limit=5")
}

func TestExecuteDeleteRefusesUnfiltered(t *testing.T) {
	client := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request should be sent")
	})

	_, err := client.From("experiments").ExecuteDelete(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unfiltered delete")
}

func TestResponseErrorExtractsMessage(t *testing.T) {
	for name, tc := range map[string]struct {
		status int
		body   string
		want   string
	}{
		"postgrest message": {422, `{"message":"null value in column"}`, "null value in column"},
		"gotrue msg":        {400, `{"msg":"User already registered"}`, "User already registered"},
		"oauth style":       {400, `{"error_description":"Invalid credentials"}`, "Invalid credentials"},
		"opaque body":       {500, `<html>`, "status 500"},
	} {
		t.Run(name, func(t *testing.T) {
			resp := &Response{StatusCode: tc.status, Body: []byte(tc.body)}
			require.Error(t, resp.Error())
			assert.Contains(t, resp.Error().Error(), tc.want)
		})
	}

	ok := &Response{StatusCode: 200, Body: []byte(`[]`)}
	assert.NoError(t, ok.Error())
}

func TestSignUpPassesStatusThrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"msg":"Password should be at least 6 characters"}`))
	})

	resp, err := client.Auth().SignUp(context.Background(), "a@b.c", "123")

	require.NoError(t, err, "non-2xx identity status is not a transport error")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, resp.Error().Error(), "at least 6 characters")
}

func TestGetUserResolvesPrincipal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"user-1","email":"a@b.c","role":"authenticated"}`))
	})

	user, err := client.Auth().GetUser(context.Background(), "user-token")

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "a@b.c", user.Email)
}

func TestGetUserRejectsBadToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
	})

	_, err := client.Auth().GetUser(context.Background(), "bad")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JWT")
}

func TestRetryStopsOnNonRetryableStatus(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = 0

	resp, err := Retry(context.Background(), cfg, func(context.Context) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusNotFound}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 2
	cfg.InitialBackoff = 0

	resp, err := Retry(context.Background(), cfg, func(context.Context) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusServiceUnavailable}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 3, calls)
}
