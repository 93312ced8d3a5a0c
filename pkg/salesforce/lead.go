package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead is the subset of the Salesforce Lead object we read back.
type Lead struct {
	ID      string `json:"Id" salesforce:"Id"`
	Company string `json:"Company" salesforce:"Company"`
	Website string `json:"Website" salesforce:"Website"`
}

// FindLeadsByWebsite returns existing Leads whose Website matches any of the
// given domains.
func FindLeadsByWebsite(ctx context.Context, c Client, domains []string) ([]Lead, error) {
	if len(domains) == 0 {
		return nil, nil
	}
	clauses := make([]string, len(domains))
	for i, d := range domains {
		clauses[i] = fmt.Sprintf("Website LIKE '%%%s%%'", escapeSoql(d))
	}
	soql := "SELECT Id, Company, Website FROM Lead WHERE " + strings.Join(clauses, " OR ")

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, "sf: find leads by website")
	}
	return leads, nil
}

// CreateLeads inserts Lead records in collection-sized chunks. It returns the
// per-record results in input order; a chunk failure aborts the rest.
func CreateLeads(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	out := make([]CollectionResult, 0, len(records))
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		res, err := c.InsertCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return out, eris.Wrapf(err, "sf: create leads %d-%d", start, end)
		}
		out = append(out, res...)
	}
	return out, nil
}

// escapeSoql escapes SOQL string-literal metacharacters.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
