// Package sink pushes stored leads to downstream systems.
package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/resilience"
	"github.com/sells-group/signal-hunter/pkg/salesforce"
)

// maxDescription keeps the Lead description under the Salesforce long text limit.
const maxDescription = 32000

// Salesforce creates a Lead for every new company. Companies that already
// have a Lead with a matching Website are left alone.
type Salesforce struct {
	client     salesforce.Client
	leadSource string
	retry      resilience.RetryPolicy
}

// NewSalesforce returns a Salesforce sink.
func NewSalesforce(client salesforce.Client, leadSource string, retry resilience.RetryPolicy) *Salesforce {
	return &Salesforce{client: client, leadSource: leadSource, retry: retry}
}

func (s *Salesforce) Name() string { return "salesforce" }

// Push creates Leads and returns how many were created. Records rejected by
// Salesforce are logged; the call only fails when nothing could be written.
func (s *Salesforce) Push(ctx context.Context, leads []model.LeadRecord) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	domains := make([]string, 0, len(leads))
	for _, l := range leads {
		domains = append(domains, l.Domain)
	}
	existing, err := resilience.RetryVal(ctx, s.retry.WithLogger("salesforce", "find_leads"), func(ctx context.Context) ([]salesforce.Lead, error) {
		return salesforce.FindLeadsByWebsite(ctx, s.client, domains)
	})
	if err != nil {
		return 0, eris.Wrap(err, "sink: salesforce lookup")
	}

	var records []map[string]any
	var pending []model.LeadRecord
	for _, l := range leads {
		if known(existing, l.Domain) {
			zap.L().Debug("sink: lead already in salesforce", zap.String("domain", l.Domain))
			continue
		}
		records = append(records, s.record(l))
		pending = append(pending, l)
	}
	if len(records) == 0 {
		return 0, nil
	}

	results, err := salesforce.CreateLeads(ctx, s.client, records)
	created := 0
	for i, r := range results {
		if r.Success {
			created++
			continue
		}
		zap.L().Warn("sink: salesforce rejected lead",
			zap.String("domain", pending[i].Domain),
			zap.Strings("errors", r.Errors),
		)
	}
	if err != nil {
		if created > 0 {
			zap.L().Error("sink: salesforce push incomplete", zap.Int("created", created), zap.Error(err))
			return created, nil
		}
		return 0, eris.Wrap(err, "sink: salesforce create")
	}
	if created == 0 {
		return 0, eris.Errorf("sink: salesforce rejected all %d leads", len(records))
	}
	return created, nil
}

func (s *Salesforce) record(l model.LeadRecord) map[string]any {
	rec := map[string]any{
		"Company":           l.CompanyName,
		"LastName":          "Unknown",
		"Website":           l.Domain,
		"Status":            "Open - Not Contacted",
		"Description":       description(l),
		"Signal_Score__c":   l.Score,
		"Signal_Run_Id__c":  l.RunID,
		"Signal_Why_Now__c": l.WhyNow,
	}
	if s.leadSource != "" {
		rec["LeadSource"] = s.leadSource
	}
	return rec
}

func description(l model.LeadRecord) string {
	var b strings.Builder
	b.WriteString(l.WhyNow)
	b.WriteString("\n\n")
	for _, line := range l.Narrative {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	if len(l.EvidenceURLs) > 0 {
		b.WriteString("\nEvidence:\n")
		for _, u := range l.EvidenceURLs {
			fmt.Fprintf(&b, "%s\n", u)
		}
	}
	if l.OpenerShort != "" {
		fmt.Fprintf(&b, "\nOpener: %s\n", l.OpenerShort)
	}
	out := b.String()
	if len(out) > maxDescription {
		out = out[:maxDescription]
	}
	return out
}

func known(existing []salesforce.Lead, domain string) bool {
	for _, e := range existing {
		if model.DomainMatches(e.Website, domain) {
			return true
		}
	}
	return false
}
