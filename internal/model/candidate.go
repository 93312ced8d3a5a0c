package model

import "time"

// SearchQuery is one planned web search.
type SearchQuery struct {
	Query               string       `json:"query"`
	TargetSignals       []string     `json:"targetSignals"`
	ExpectedSourceTypes []SourceType `json:"expectedSourceTypes"`
	Rationale           string       `json:"rationale"`
}

// QueryPlan is the bounded set of searches for a hunt run.
type QueryPlan struct {
	Queries        []SearchQuery `json:"queries"`
	ICPSummary     string        `json:"icpSummary"`
	SignalsSummary string        `json:"signalsSummary"`
}

// SearchHit is a single result returned by a search provider.
type SearchHit struct {
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Snippet       string     `json:"snippet"`
	PublishedDate *time.Time `json:"publishedDate,omitempty"`
}

// QueryResults pairs an executed query with its results.
type QueryResults struct {
	Query   SearchQuery `json:"query"`
	Results []SearchHit `json:"results"`
}

// CandidateCompany is a company extracted from a search result.
type CandidateCompany struct {
	CompanyName string  `json:"companyName"`
	Domain      string  `json:"domain"`
	SourceURL   string  `json:"sourceUrl"`
	Snippet     string  `json:"snippet"`
	Confidence  float64 `json:"confidence"`
}
