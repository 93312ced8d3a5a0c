package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-hunter/internal/resilience"
)

func TestTextSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.websiteUri")

		var body TextSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dental clinics Austin TX", body.TextQuery)
		assert.Equal(t, 5, body.PageSize)

		_ = json.NewEncoder(w).Encode(TextSearchResponse{
			Places: []Place{{
				DisplayName:      LocalizedText{Text: "Bright Smiles"},
				WebsiteURI:       "https://brightsmiles.com/",
				FormattedAddress: "100 Main St, Austin, TX",
			}},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := c.TextSearch(context.Background(), TextSearchRequest{TextQuery: "dental clinics Austin TX", PageSize: 5})
	require.NoError(t, err)
	require.Len(t, got.Places, 1)
	assert.Equal(t, "Bright Smiles", got.Places[0].DisplayName.Text)
	assert.Equal(t, "https://brightsmiles.com/", got.Places[0].WebsiteURI)
}

func TestTextSearch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, true},
		{"forbidden", http.StatusForbidden, `{"error":"key"}`, false},
		{"bad json", http.StatusOK, `{`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("k", WithBaseURL(srv.URL)).TextSearch(context.Background(), TextSearchRequest{TextQuery: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}
