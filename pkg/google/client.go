// Package google wraps the Places API (New) text search.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

const fieldMask = "places.displayName,places.websiteUri,places.formattedAddress,places.primaryTypeDisplayName,places.rating,places.userRatingCount"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// TextSearchRequest is the Places Text Search body.
type TextSearchRequest struct {
	TextQuery           string `json:"textQuery"`
	PageSize            int    `json:"pageSize,omitempty"`
	IncludedType        string `json:"includedType,omitempty"`
	LanguageCode        string `json:"languageCode,omitempty"`
	RegionCode          string `json:"regionCode,omitempty"`
	StrictTypeFiltering bool   `json:"strictTypeFiltering,omitempty"`
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places []Place `json:"places"`
}

// Place is one business returned by the API.
type Place struct {
	DisplayName            LocalizedText `json:"displayName"`
	WebsiteURI             string        `json:"websiteUri"`
	FormattedAddress       string        `json:"formattedAddress"`
	PrimaryTypeDisplayName LocalizedText `json:"primaryTypeDisplayName"`
	Rating                 float64       `json:"rating"`
	UserRatingCount        int           `json:"userRatingCount"`
}

// LocalizedText is a Places text value.
type LocalizedText struct {
	Text string `json:"text"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, in TextSearchRequest) (*TextSearchResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPError("google: text search", resp.StatusCode, string(respBody))
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}
	return &result, nil
}
