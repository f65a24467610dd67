package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	commandbus "stash-backend/application/commands/bus"
	commandhandlers "stash-backend/application/commands/handlers"
	querybus "stash-backend/application/queries/bus"
	queryhandlers "stash-backend/application/queries/handlers"
	"stash-backend/application/services"
	domainconfig "stash-backend/domain/config"
	"stash-backend/domain/core/validators"
	"stash-backend/infrastructure/persistence/memory"
	"stash-backend/pkg/observability"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.NewStore()
	recorder := memory.NewRecorder()
	logger := zap.NewNop()
	validator := validators.NewEntityValidator(domainconfig.DefaultDomainConfig())
	reconstructor := services.NewReconstructor(store.Entities(), store.History(), logger)

	cb := commandbus.NewCommandBus()
	for _, reg := range commandhandlers.Registrations(commandhandlers.Deps{
		EntityRepo:    store.Entities(),
		RelRepo:       store.Relationships(),
		UnitOfWork:    store.UnitOfWork(),
		Validator:     validator,
		Reconstructor: reconstructor,
		Publisher:     recorder,
		Logger:        logger,
	}) {
		require.NoError(t, cb.Register(reg.Command, reg.Handler))
	}

	qb := querybus.NewQueryBus()
	for _, reg := range queryhandlers.Registrations(queryhandlers.Deps{
		EntityRepo:    store.Entities(),
		HistoryRepo:   store.History(),
		RelRepo:       store.Relationships(),
		Reconstructor: reconstructor,
		Logger:        logger,
	}) {
		require.NoError(t, qb.Register(reg.Query, reg.Handler))
	}

	router := NewRouter(Deps{
		CommandBus: cb,
		QueryBus:   qb,
		Metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		Logger:     logger,
	})

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestRouter_RejectsUnauthenticatedRequests(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/notes")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_CreateAndGetRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	resp, created := doJSON(t, srv, http.MethodPost, "/api/v1/bookmarks", map[string]interface{}{
		"title":   "Go blog",
		"content": "reading list",
		"url":     "https://go.dev/blog",
		"tags":    []string{"go"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), created["version"])
	assert.Equal(t, "bookmark", created["type"])

	id := created["id"].(string)
	resp, fetched := doJSON(t, srv, http.MethodGet, "/api/v1/bookmarks/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Go blog", fetched["title"])
	assert.Equal(t, created["updated_at"], fetched["updated_at"])
}

func TestRouter_StalePatchReturnsConflictWithServerState(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, srv, http.MethodPost, "/api/v1/notes", map[string]interface{}{
		"title":   "draft",
		"content": "v1",
	})
	id := created["id"].(string)
	token := created["updated_at"].(string)

	// A second session saves first, advancing the token.
	resp, _ := doJSON(t, srv, http.MethodPatch, "/api/v1/notes/"+id, map[string]interface{}{
		"content":             "v2",
		"expected_updated_at": token,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The first session retries with its stale token.
	resp, conflict := doJSON(t, srv, http.MethodPatch, "/api/v1/notes/"+id, map[string]interface{}{
		"content":             "v2-from-stale-tab",
		"expected_updated_at": token,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", conflict["error"])

	state, ok := conflict["server_state"].(map[string]interface{})
	require.True(t, ok, "conflict body must carry server_state")
	assert.Equal(t, float64(2), state["version"])
	assert.NotEqual(t, token, state["updated_at"])
}

func TestRouter_PatchWithFreshTokenSucceeds(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, srv, http.MethodPost, "/api/v1/notes", map[string]interface{}{
		"title":   "draft",
		"content": "v1",
	})
	id := created["id"].(string)

	resp, updated := doJSON(t, srv, http.MethodPatch, "/api/v1/notes/"+id, map[string]interface{}{
		"content":             "v2",
		"expected_updated_at": created["updated_at"],
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), updated["version"])
	assert.NotEqual(t, created["updated_at"], updated["updated_at"])
}

func TestRouter_LifecycleAndStalenessProbe(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, srv, http.MethodPost, "/api/v1/prompts", map[string]interface{}{
		"title":   "summarizer",
		"content": "Summarize: {{input}}",
		"name":    "summarize-v1",
	})
	id := created["id"].(string)
	token := created["updated_at"].(string)

	resp, probe := doJSON(t, srv, http.MethodGet, "/api/v1/prompts/"+id+"/staleness?since="+token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, probe["stale"])

	resp, deleted := doJSON(t, srv, http.MethodDelete, "/api/v1/prompts/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, deleted["deleted"])
	// Audit action left the content version alone.
	assert.Equal(t, float64(1), deleted["version"])

	resp, probe = doJSON(t, srv, http.MethodGet, "/api/v1/prompts/"+id+"/staleness?since="+token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, probe["deleted"])

	resp, restored := doJSON(t, srv, http.MethodPost, "/api/v1/prompts/"+id+"/undelete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, restored["deleted"])
}

func TestRouter_HistoryDiffAndRestore(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, srv, http.MethodPost, "/api/v1/notes", map[string]interface{}{
		"title":   "essay",
		"content": "first draft",
	})
	id := created["id"].(string)

	resp, _ := doJSON(t, srv, http.MethodPatch, "/api/v1/notes/"+id, map[string]interface{}{
		"content":             "second draft",
		"expected_updated_at": created["updated_at"],
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, log := doJSON(t, srv, http.MethodGet, "/api/v1/history/note/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), log["total"])

	resp, diff := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/history/note/%s/diff?version=2", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "first draft", diff["before_content"])
	assert.Equal(t, "second draft", diff["after_content"])

	resp, restored := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/history/note/%s/restore/1", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "first draft", restored["content"])
	// A restore is a new content version, not a rewind.
	assert.Equal(t, float64(3), restored["version"])
}

func TestRouter_RelationshipLifecycle(t *testing.T) {
	srv := newTestServer(t)

	_, bookmark := doJSON(t, srv, http.MethodPost, "/api/v1/bookmarks", map[string]interface{}{
		"title": "paper", "content": "", "url": "https://example.com/paper",
	})
	_, note := doJSON(t, srv, http.MethodPost, "/api/v1/notes", map[string]interface{}{
		"title": "paper notes", "content": "highlights",
	})

	link := map[string]interface{}{
		"source_type": "bookmark",
		"source_id":   bookmark["id"],
		"target_type": "note",
		"target_id":   note["id"],
	}
	resp, edge := doJSON(t, srv, http.MethodPost, "/api/v1/relationships", link)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	edgeID := edge["id"].(string)

	// Linking the same pair again returns the existing edge.
	resp, again := doJSON(t, srv, http.MethodPost, "/api/v1/relationships", link)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, edgeID, again["id"])

	req, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/api/v1/relationships?entity_type=note&entity_id=%s", srv.URL, note["id"]), nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "user-1")
	listResp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()

	var linked []map[string]interface{}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&linked))
	require.Len(t, linked, 1)
	assert.Equal(t, "paper", linked[0]["title"])
	assert.Equal(t, "bookmark", linked[0]["type"])

	resp, _ = doJSON(t, srv, http.MethodDelete, "/api/v1/relationships/"+edgeID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRouter_HealthEndpointsNeedNoAuth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
