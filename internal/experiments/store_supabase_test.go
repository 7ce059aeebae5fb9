package experiments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moeltae/sci-bom/internal/supabase"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	prefer string
	bearer string
	body   []byte
}

// newPostgRESTStub returns a store backed by an httptest PostgREST stand-in
// that replies with the given status and body and records each request.
func newPostgRESTStub(t *testing.T, status int, responseBody string) (*SupabaseStore, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			prefer: r.Header.Get("Prefer"),
			bearer: r.Header.Get("Authorization"),
			body:   body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(responseBody))
	}))
	t.Cleanup(srv.Close)

	client, err := supabase.New(supabase.Config{
		URL:     srv.URL,
		AnonKey: "anon-key",
	})
	require.NoError(t, err)

	return NewSupabaseStore(client.WithToken("user-token")), &seen
}

func TestInsertExperimentReturnsRepresentation(t *testing.T) {
	store, seen := newPostgRESTStub(t, http.StatusCreated,
		`[{"id":"e1","name":"CRISPR screen","status":"submitted","estimatedCostUSD":10,"userId":"user-1"}]`)

	created, err := store.InsertExperiment(context.Background(), Experiment{
		ID:     "e1",
		Name:   "CRISPR screen",
		Status: StatusSubmitted,
		UserID: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "e1", created.ID)
	assert.Equal(t, StatusSubmitted, created.Status)

	require.Len(t, *seen, 1)
	got := (*seen)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/rest/v1/experiments", got.path)
	assert.Equal(t, "return=representation", got.prefer)
	assert.Equal(t, "Bearer user-token", got.bearer)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "CRISPR screen", payload["name"])
}

func TestInsertExperimentSurfacesPostgRESTError(t *testing.T) {
	store, _ := newPostgRESTStub(t, http.StatusConflict,
		`{"message":"duplicate key value violates unique constraint"}`)

	_, err := store.InsertExperiment(context.Background(), Experiment{ID: "e1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestInsertItemsSendsBatch(t *testing.T) {
	store, seen := newPostgRESTStub(t, http.StatusCreated,
		`[{"id":"i1","experimentId":"e1","name":"A"},{"id":"i2","experimentId":"e1","name":"B"}]`)

	items, err := store.InsertItems(context.Background(), []Item{
		{ID: "i1", ExperimentID: "e1", Name: "A"},
		{ID: "i2", ExperimentID: "e1", Name: "B"},
	})

	require.NoError(t, err)
	assert.Len(t, items, 2)

	got := (*seen)[0]
	assert.Equal(t, "/rest/v1/items", got.path)

	var payload []map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Len(t, payload, 2)
}

func TestDeleteExperimentFiltersByID(t *testing.T) {
	store, seen := newPostgRESTStub(t, http.StatusOK, `[]`)

	require.NoError(t, store.DeleteExperiment(context.Background(), "e1"))

	got := (*seen)[0]
	assert.Equal(t, http.MethodDelete, got.method)
	assert.Equal(t, "/rest/v1/experiments", got.path)
	assert.Equal(t, "id=eq.e1", got.query)
}

func TestListByOwnerQueriesNewestFirst(t *testing.T) {
	store, seen := newPostgRESTStub(t, http.StatusOK,
		`[{"id":"e2","items":[{"id":"i1","experimentId":"e2"}]},{"id":"e1","items":[]}]`)

	list, err := store.ListByOwner(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e2", list[0].ID)
	assert.Len(t, list[0].Items, 1)

	got := (*seen)[0]
	assert.Equal(t, http.MethodGet, got.method)
	assert.Contains(t, got.query, "userId=eq.user-1")
	assert.Contains(t, got.query, "order=createdAt.desc")
	assert.Contains(t, got.query, "items%28")
}

func TestListByOwnerRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"e1"}]`))
	}))
	t.Cleanup(srv.Close)

	client, err := supabase.New(supabase.Config{URL: srv.URL, AnonKey: "anon-key"})
	require.NoError(t, err)
	store := NewSupabaseStore(client.WithToken("user-token"))
	store.retry.InitialBackoff = 0

	list, err := store.ListByOwner(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 2, calls)
}
