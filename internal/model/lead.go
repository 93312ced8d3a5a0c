package model

import "time"

// LeadStatus is owned by downstream UI; the pipeline only ever writes "new".
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusSaved     LeadStatus = "saved"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusSkip      LeadStatus = "skip"
)

// TriggeredSignal is a "yes" match that cleared the trigger floor.
type TriggeredSignal struct {
	SignalID     string         `json:"signalId"`
	Name         string         `json:"name"`
	Category     SignalCategory `json:"category"`
	Weight       float64        `json:"weight"`
	Confidence   float64        `json:"confidence"`
	EvidenceURLs []string       `json:"evidenceUrls"`
	Reasoning    string         `json:"reasoning,omitempty"`
}

// Angle is a conversation starter tied to a piece of evidence.
type Angle struct {
	Text        string `json:"text"`
	EvidenceURL string `json:"evidenceUrl"`
	SignalID    string `json:"signalId"`
}

// LeadRecord is the final pipeline output for one company.
type LeadRecord struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"userId"`
	RunID               string            `json:"runId"`
	Mode                RunModeKind       `json:"mode"`
	CompanyName         string            `json:"companyName"`
	Domain              string            `json:"domain"`
	SourceURL           string            `json:"sourceUrl,omitempty"`
	Score               int               `json:"score"`
	OverallConfidence   float64           `json:"overallConfidence"`
	TriggeredSignals    []TriggeredSignal `json:"triggeredSignals"`
	Matches             []SignalMatch     `json:"matches,omitempty"`
	WhyNow              string            `json:"whyNow"`
	Narrative           []string          `json:"narrative"`
	Angles              []Angle           `json:"angles"`
	OpenerShort         string            `json:"openerShort"`
	OpenerMedium        string            `json:"openerMedium"`
	EvidenceURLs        []string          `json:"evidenceUrls"`
	EvidenceSnippets    []string          `json:"evidenceSnippets"`
	LinkedInSearchHints []string          `json:"linkedinSearchHints"`
	Status              LeadStatus        `json:"status"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}
