//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/pipeline"
	"github.com/sells-group/signal-hunter/internal/store"
)

func newTestAPI(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st := newTestStore(t)
	api := &apiServer{
		coord:  newSimulatedCoordinator(t, st),
		store:  st,
		budget: 30 * time.Second,
	}
	return newRouter(api, []string{"https://app.example.com"}), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

type fakeProviders struct {
	states map[string]string
}

func (f fakeProviders) Providers() []string { return []string{"anthropic", "perplexity"} }

func (f fakeProviders) BreakerStates() map[string]string { return f.states }

func TestRouter_HealthReportsOpenBreaker(t *testing.T) {
	st := newTestStore(t)
	api := &apiServer{
		coord:     newSimulatedCoordinator(t, st),
		store:     st,
		budget:    30 * time.Second,
		providers: fakeProviders{states: map[string]string{"anthropic": "open", "perplexity": "closed"}},
	}

	rr := doJSON(t, newRouter(api, nil), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, []string{"anthropic", "perplexity"}, body.Providers)
	assert.Equal(t, "open", body.Breakers["anthropic"])
}

func TestRouter_CORSPreflight(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/runs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateRun_Hunt(t *testing.T) {
	h, st := newTestAPI(t)
	saveUser(t, st, testUserConfig("u1"))

	rr := doJSON(t, h, http.MethodPost, "/v1/runs", runRequest{UserID: "u1", Mode: "hunt", Limit: 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res pipeline.RunResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.LessOrEqual(t, len(res.Leads), 2)
	assert.Positive(t, res.Stats.QueriesExecuted)

	rr = doJSON(t, h, http.MethodGet, "/v1/runs?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.SignalRun
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)

	rr = doJSON(t, h, http.MethodGet, "/v1/runs/"+res.RunID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateRun_DefaultsToHunt(t *testing.T) {
	h, st := newTestAPI(t)
	saveUser(t, st, testUserConfig("u1"))

	rr := doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	runs, err := st.ListRuns(context.Background(), store.RunFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.ModeHunt, runs[0].Mode)
}

func TestCreateRun_Watch(t *testing.T) {
	h, st := newTestAPI(t)
	saveUser(t, st, testUserConfig("u1"))

	rr := doJSON(t, h, http.MethodPost, "/v1/runs", runRequest{UserID: "u1", Mode: "watch", Domains: []string{"acme.io"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res pipeline.RunResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Stats.CandidatesAfterDedup)
	assert.Zero(t, res.Stats.QueriesExecuted)
}

func TestCreateRun_BadRequests(t *testing.T) {
	h, _ := newTestAPI(t)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing user", runRequest{Mode: "hunt"}, "userId is required"},
		{"bad mode", runRequest{UserID: "u1", Mode: "stalk"}, "mode must be hunt or watch"},
		{"not json", "{", "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, h, http.MethodPost, "/v1/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestCreateRun_UnknownUser(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/runs", runRequest{UserID: "ghost", Mode: "hunt"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateRun_EmptyICP(t *testing.T) {
	h, st := newTestAPI(t)
	uc := testUserConfig("u1")
	uc.ICP = model.ICP{}
	saveUser(t, st, uc)

	rr := doJSON(t, h, http.MethodPost, "/v1/runs", runRequest{UserID: "u1", Mode: "hunt"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var res pipeline.RunResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, model.RunStatusFailed, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestRunErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, runErrorStatus(eris.Wrap(store.ErrNotFound, "user")))
	assert.Equal(t, http.StatusBadRequest, runErrorStatus(&pipeline.Error{Kind: pipeline.KindInvalidConfiguration, Err: errors.New("x")}))
	assert.Equal(t, http.StatusServiceUnavailable, runErrorStatus(&pipeline.Error{Kind: pipeline.KindProviderUnavailable, Err: errors.New("x")}))
	assert.Equal(t, http.StatusInternalServerError, runErrorStatus(&pipeline.Error{Kind: pipeline.KindStorageFailure, Err: errors.New("x")}))
	assert.Equal(t, http.StatusInternalServerError, runErrorStatus(errors.New("boom")))
}

func TestListRuns_Empty(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/runs?user_id=nobody", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestGetRun_NotFound(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLeadsEndpoints(t *testing.T) {
	h, st := newTestAPI(t)
	ctx := context.Background()
	added, _, err := st.AddNewLeads(ctx, "u1", []model.LeadRecord{{
		CompanyName: "Acme",
		Domain:      "acme.io",
		Mode:        model.ModeHunt,
		Score:       80,
		Status:      model.LeadStatusNew,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, added)

	rr := doJSON(t, h, http.MethodGet, "/v1/users/u1/leads", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var leads []model.LeadRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &leads))
	require.Len(t, leads, 1)

	rr = doJSON(t, h, http.MethodPatch, "/v1/leads/"+leads[0].ID, map[string]string{"status": "saved"})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	stored, err := st.GetStoredLeads(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusSaved, stored[0].Status)

	rr = doJSON(t, h, http.MethodPatch, "/v1/leads/"+leads[0].ID, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodPatch, "/v1/leads/missing", map[string]string{"status": "skip"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListsEndpoint(t *testing.T) {
	h, st := newTestAPI(t)
	ctx := context.Background()
	_, err := st.CreateList(ctx, "u1", "Key accounts", model.ListTypeWatch)
	require.NoError(t, err)
	_, err = st.CreateList(ctx, "u1", "Customers", model.ListTypeDoNotContact)
	require.NoError(t, err)

	rr := doJSON(t, h, http.MethodGet, "/v1/users/u1/lists", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var lists []model.AccountList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lists))
	require.Len(t, lists, 1)
	assert.Equal(t, "Key accounts", lists[0].Name)

	rr = doJSON(t, h, http.MethodGet, "/v1/users/u1/lists?type=dnc", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lists))
	require.Len(t, lists, 1)
	assert.Equal(t, "Customers", lists[0].Name)

	rr = doJSON(t, h, http.MethodGet, "/v1/users/nobody/lists", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = doJSON(t, h, http.MethodGet, "/v1/users/u1/lists?type=other", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?limit=7&bad=abc&neg=-1", nil)
	assert.Equal(t, 7, queryInt(req, "limit", 50))
	assert.Equal(t, 50, queryInt(req, "bad", 50))
	assert.Equal(t, 50, queryInt(req, "neg", 50))
	assert.Equal(t, 50, queryInt(req, "missing", 50))
}
