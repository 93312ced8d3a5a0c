package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-hunter/internal/model"
)

// maxQueries is the hard ceiling on a QueryPlan.
const maxQueries = 50

const defaultQueryTemplate = "{industry} company {signal} {geo}"

// discoveryQueryTemplate finds ICP companies when no signal is searchable.
const discoveryQueryTemplate = "{industry} companies {geo}"

var defaultQuerySources = []model.SourceType{model.SourceNews, model.SourceSearch}

// PlanQueries turns an ICP and the enabled signals into at most limit
// search queries. Every enabled non-disqualifier signal gets its first
// query before any signal gets a second; extra queries are then added in
// priority order, so a tight limit drops the lowest-priority queries first.
// Disqualifiers are evaluated per candidate but never searched for; with
// only disqualifiers enabled the plan is plain ICP discovery.
func PlanQueries(icp model.ICP, signals []model.SignalDefinition, limit int) (*model.QueryPlan, error) {
	if icp.IsEmpty() {
		return nil, newError(KindInvalidConfiguration, "icp",
			eris.New("icp has no target industries and no target geos"))
	}
	if limit <= 0 || limit > maxQueries {
		limit = maxQueries
	}

	enabled := model.EnabledSignals(signals)
	var searchable, disqualifiers []model.SignalDefinition
	for _, s := range enabled {
		if s.IsDisqualifier {
			disqualifiers = append(disqualifiers, s)
		} else {
			searchable = append(searchable, s)
		}
	}
	sort.SliceStable(searchable, func(i, j int) bool {
		return searchable[i].Priority.Rank() > searchable[j].Priority.Rank()
	})

	perSignal := make([][]model.SearchQuery, len(searchable))
	for i, s := range searchable {
		perSignal[i] = expandSignal(icp, s)
	}

	plan := &model.QueryPlan{
		ICPSummary:     icp.Summary(),
		SignalsSummary: signalsSummary(searchable, disqualifiers),
	}
	index := make(map[string]int)
	add := func(q model.SearchQuery) {
		key := strings.ToLower(q.Query)
		if i, ok := index[key]; ok {
			plan.Queries[i].TargetSignals = appendUnique(plan.Queries[i].TargetSignals, q.TargetSignals...)
			return
		}
		if len(plan.Queries) >= limit {
			return
		}
		index[key] = len(plan.Queries)
		plan.Queries = append(plan.Queries, q)
	}

	for _, qs := range perSignal {
		if len(qs) > 0 {
			add(qs[0])
		}
	}
	for _, qs := range perSignal {
		for _, q := range qs[min(1, len(qs)):] {
			add(q)
		}
	}
	if len(searchable) == 0 {
		for _, q := range discoveryQueries(icp) {
			add(q)
		}
	}
	if len(plan.Queries) == 0 {
		return nil, newError(KindInvalidConfiguration, "query_plan",
			eris.New("no search queries could be built from the icp and signals"))
	}
	return plan, nil
}

// discoveryQueries searches for ICP companies without targeting a signal.
func discoveryQueries(icp model.ICP) []model.SearchQuery {
	var out []model.SearchQuery
	for _, ind := range orBlank(model.NonBlank(icp.Industries)) {
		for _, geo := range orBlank(model.NonBlank(icp.Geos)) {
			if ind == "" && geo == "" {
				continue
			}
			q := fillTemplate(discoveryQueryTemplate, map[string]string{"{industry}": ind, "{geo}": geo})
			out = append(out, model.SearchQuery{
				Query:               q,
				ExpectedSourceTypes: defaultQuerySources,
				Rationale:           "ICP discovery in " + strings.TrimSpace(ind+" "+geo),
			})
		}
	}
	return out
}

// expandSignal fills every template of s with each industry/geo pair.
func expandSignal(icp model.ICP, s model.SignalDefinition) []model.SearchQuery {
	templates := s.QueryTemplates
	if len(templates) == 0 {
		templates = []string{defaultQueryTemplate}
	}
	industries := orBlank(model.NonBlank(icp.Industries))
	geos := orBlank(model.NonBlank(icp.Geos))
	roles := model.NonBlank(icp.Roles)
	size := icp.CompanySize.String()

	sources := s.AcceptedSources
	if len(sources) == 0 {
		sources = defaultQuerySources
	}

	var out []model.SearchQuery
	n := 0
	for _, tmpl := range templates {
		for _, ind := range industries {
			for _, geo := range geos {
				role := ""
				if len(roles) > 0 {
					role = roles[n%len(roles)]
				}
				n++
				q := fillTemplate(tmpl, map[string]string{
					"{industry}": ind,
					"{geo}":      geo,
					"{role}":     role,
					"{size}":     size,
					"{signal}":   strings.ToLower(s.Name),
					"{account}":  "",
				})
				if q == "" {
					continue
				}
				out = append(out, model.SearchQuery{
					Query:               q,
					TargetSignals:       []string{s.ID},
					ExpectedSourceTypes: sources,
					Rationale:           fmt.Sprintf("%s (%s priority) in %s", s.Name, s.Priority, strings.TrimSpace(ind+" "+geo)),
				})
			}
		}
	}
	return out
}

func fillTemplate(tmpl string, vars map[string]string) string {
	for k, v := range vars {
		tmpl = strings.ReplaceAll(tmpl, k, v)
	}
	return strings.Join(strings.Fields(tmpl), " ")
}

func orBlank(v []string) []string {
	if len(v) == 0 {
		return []string{""}
	}
	return v
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func signalsSummary(searchable, disqualifiers []model.SignalDefinition) string {
	parts := make([]string, 0, len(searchable))
	for _, s := range searchable {
		parts = append(parts, fmt.Sprintf("%s (%s, weight %g)", s.Name, s.Priority, s.Weight))
	}
	out := fmt.Sprintf("%d signals: %s", len(searchable), strings.Join(parts, ", "))
	if len(disqualifiers) > 0 {
		names := make([]string, len(disqualifiers))
		for i, d := range disqualifiers {
			names[i] = d.Name
		}
		out += "; disqualifiers: " + strings.Join(names, ", ")
	}
	return out
}
