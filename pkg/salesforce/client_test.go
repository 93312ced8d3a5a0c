package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (_m *mockClient) Query(ctx context.Context, soql string, out any) error {
	return _m.Called(ctx, soql, out).Error(0)
}

func (_m *mockClient) InsertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
	ret := _m.Called(ctx, sObjectName, records)
	res, _ := ret.Get(0).([]CollectionResult)
	return res, ret.Error(1)
}

func newTestSFClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(sf, WithRateLimit(50)), ts
}

func TestSFClient_QueryLeads(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		assert.Contains(t, r.URL.Query().Get("q"), "FROM Lead")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{{
				"attributes": map[string]any{"type": "Lead"},
				"Id":         "00Qxx",
				"Company":    "Acme Corp",
				"Website":    "acme.com",
			}},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	leads, err := FindLeadsByWebsite(context.Background(), client, []string{"acme.com"})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "00Qxx", leads[0].ID)
	assert.Equal(t, "acme.com", leads[0].Website)
}

func TestFindLeadsByWebsite_BuildsSOQL(t *testing.T) {
	c := &mockClient{}
	c.On("Query", mock.Anything, "SELECT Id, Company, Website FROM Lead WHERE Website LIKE '%acme.com%' OR Website LIKE '%o\\'neil.io%'", mock.Anything).Return(nil)

	_, err := FindLeadsByWebsite(context.Background(), c, []string{"acme.com", "o'neil.io"})
	require.NoError(t, err)
	c.AssertExpectations(t)
}

func TestFindLeadsByWebsite_Empty(t *testing.T) {
	c := &mockClient{}
	leads, err := FindLeadsByWebsite(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Nil(t, leads)
	c.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateLeads_Chunks(t *testing.T) {
	records := make([]map[string]any, 450)
	for i := range records {
		records[i] = map[string]any{"Company": "c"}
	}

	c := &mockClient{}
	for _, n := range []int{200, 200, 50} {
		n := n
		res := make([]CollectionResult, n)
		for i := range res {
			res[i] = CollectionResult{ID: "00Q", Success: true}
		}
		c.On("InsertCollection", mock.Anything, "Lead", mock.MatchedBy(func(r []map[string]any) bool { return len(r) == n })).Return(res, nil).Once()
	}

	out, err := CreateLeads(context.Background(), c, records)
	require.NoError(t, err)
	assert.Len(t, out, 450)
	c.AssertExpectations(t)
}

func TestCreateLeads_Error(t *testing.T) {
	c := &mockClient{}
	c.On("InsertCollection", mock.Anything, "Lead", mock.Anything).Return(nil, errors.New("INVALID_SESSION_ID"))

	_, err := CreateLeads(context.Background(), c, []map[string]any{{"Company": "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_SESSION_ID")
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, `o\'neil`, escapeSoql("o'neil"))
	assert.Equal(t, `a\\b`, escapeSoql(`a\b`))
}
