package model

import "time"

// SourceType classifies where a piece of evidence came from.
type SourceType string

const (
	SourceWebsite SourceType = "website"
	SourceAbout   SourceType = "about"
	SourceBlog    SourceType = "blog"
	SourceCareers SourceType = "careers"
	SourceNews    SourceType = "news"
	SourceSearch  SourceType = "search"
)

// EvidenceChunk is one piece of cited web content.
type EvidenceChunk struct {
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	SourceType SourceType `json:"sourceType"`
	FetchedAt  time.Time  `json:"fetchedAt"`
	Hash       string     `json:"hash"`
}
