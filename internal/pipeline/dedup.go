package pipeline

import (
	"context"
	"sort"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/store"
)

// dedupeByDomain normalizes domains and keeps one candidate per domain: the
// highest confidence wins and ties keep the first seen. Output order is the
// order in which each domain was first seen.
func dedupeByDomain(cands []model.CandidateCompany) []model.CandidateCompany {
	index := make(map[string]int, len(cands))
	out := make([]model.CandidateCompany, 0, len(cands))
	for _, cand := range cands {
		cand.Domain = model.NormalizeDomain(cand.Domain)
		if cand.Domain == "" {
			continue
		}
		i, seen := index[cand.Domain]
		if !seen {
			index[cand.Domain] = len(out)
			out = append(out, cand)
			continue
		}
		if cand.Confidence > out[i].Confidence {
			out[i] = cand
		}
	}
	return out
}

// domainFilter drops domains the user must not see again.
type domainFilter struct {
	excluded  []string
	blocklist []string
	stored    map[string]bool
	isDNC     func(ctx context.Context, domain string) (bool, error)
}

// keep reports whether domain survives the filter.
func (f domainFilter) keep(ctx context.Context, domain string) (bool, error) {
	for _, d := range f.excluded {
		if model.DomainMatches(domain, d) {
			return false, nil
		}
	}
	for _, d := range f.blocklist {
		if model.DomainMatches(domain, d) {
			return false, nil
		}
	}
	if f.stored[domain] {
		return false, nil
	}
	if f.isDNC != nil {
		return f.isDNC(ctx, domain)
	}
	return true, nil
}

// dedupCandidates removes in-run duplicates, then drops ICP exclusions,
// directory domains, do-not-contact domains and (when checkStored is set)
// domains the user already has as leads. Survivors are ranked by
// confidence and capped at limit.
func (c *Coordinator) dedupCandidates(ctx context.Context, userID string, icp model.ICP, cands []model.CandidateCompany, limit int, checkStored bool, st *runState) ([]model.CandidateCompany, error) {
	unique := dedupeByDomain(cands)

	f := domainFilter{
		excluded:  icp.ExcludeDomains,
		blocklist: c.settings.DirectoryBlocklist,
		isDNC: func(ctx context.Context, domain string) (bool, error) {
			dnc, err := c.deps.Store.IsDoNotContact(ctx, userID, domain)
			return !dnc, err
		},
	}
	if checkStored {
		stored, err := c.deps.Store.GetStoredLeads(ctx, userID, store.DefaultMaxLeads)
		if err != nil {
			return nil, newError(KindStorageFailure, "stored leads", err)
		}
		f.stored = make(map[string]bool, len(stored))
		for _, l := range stored {
			f.stored[model.NormalizeDomain(l.Domain)] = true
		}
	}

	out := make([]model.CandidateCompany, 0, len(unique))
	skipped := 0
	for _, cand := range unique {
		ok, err := f.keep(ctx, cand.Domain)
		if err != nil {
			return nil, newError(KindStorageFailure, cand.Domain, err)
		}
		if !ok {
			skipped++
			continue
		}
		out = append(out, cand)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	st.update(func(s *model.SignalRunStats) {
		s.DuplicatesSkipped += skipped
		s.CandidatesAfterDedup = len(out)
	})
	return out, nil
}
